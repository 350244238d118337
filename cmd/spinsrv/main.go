package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	"github.com/magis-tdaq/camrig/camera"
	"github.com/magis-tdaq/camrig/spinnaker"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "spinsrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(defaults(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `spinsrv exposes the GenICam node maps of a FLIR camera over HTTP
for inspection and tuning on the bench, and grabs frames on demand.

Usage:
	spinsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `spinsrv is amenable to configuration via its .yml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.
The command mkconf generates the configuration file with the default values.

Serial 'auto' picks the first camera found.  Otherwise the camera with that
DeviceSerialNumber is used.  Simulate serves a simulated camera instead.

BootupArgs are node values written to the camera before serving, e.g.
	BootupArgs:
	  ExposureAuto: "Off"
	  ExposureTime: 5000
If a node is not supported by the camera, the error names it; remove it from
the list.

Routes, under Root:
	/device/nodes/{node}       GET value, POST {"int"|"f64"|"bool"|"str": value}
	/device/commands/{node}    POST to execute
	/device/access/{node}      GET access flags
	/device/entries/{node}     GET enumeration entries
	/tldevice/...  /stream/... the same for the transport layer maps
	/camera/acquisition        GET/POST {"bool": true} to stream
	/camera/frame?fmt=jpg      GET one frame, jpg png or fits
	/camera/lock               GET/POST; settings are locked while streaming
Every router answers GET /endpoints with its routes.`
	fmt.Println(str)
}

func mkconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	err = yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("spinsrv version %v\n", Version)
}

func run() {
	cfg := config{}
	if err := k.Unmarshal("", &cfg); err != nil {
		log.Fatal(err)
	}
	var (
		sys camera.System
		err error
	)
	if cfg.Simulate {
		sys = spinnaker.NewMockSystem(spinnaker.NewMockCamera(spinnaker.MockCameraConfig{Serial: "19000000"}))
	} else {
		sys, err = spinnaker.Open()
		if err != nil {
			log.Fatal(err)
		}
	}
	srv, err := newServer(sys, cfg)
	if err != nil {
		sys.Release()
		log.Fatal(err)
	}
	defer srv.Close()
	log.Println("now listening for requests at ", cfg.Addr+cfg.Root)
	log.Fatal(http.ListenAndServe(cfg.Addr, srv.Handler))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
