package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/pkg/errors"

	"github.com/magis-tdaq/camrig/camera"
	"github.com/magis-tdaq/camrig/generichttp"
	cam "github.com/magis-tdaq/camrig/generichttp/camera"
	"github.com/magis-tdaq/camrig/genicam"
	"github.com/magis-tdaq/camrig/imgrec"
	"github.com/magis-tdaq/camrig/server/middleware/locker"
)

type recorder struct {
	// Root is the root folder to write to, empty disables writing
	Root string `yaml:"Root" koanf:"Root"`

	// Prefix is the filename prefix to use
	Prefix string `yaml:"Prefix" koanf:"Prefix"`

	// Format is jpg or fits
	Format string `yaml:"Format" koanf:"Format"`
}

type config struct {
	Addr       string                 `yaml:"Addr" koanf:"Addr"`
	Root       string                 `yaml:"Root" koanf:"Root"`
	Serial     string                 `yaml:"Serial" koanf:"Serial"`
	Simulate   bool                   `yaml:"Simulate" koanf:"Simulate"`
	Recorder   recorder               `yaml:"Recorder" koanf:"Recorder"`
	BootupArgs map[string]interface{} `yaml:"BootupArgs" koanf:"BootupArgs"`
}

func defaults() config {
	return config{
		Addr:   ":8000",
		Root:   "/",
		Serial: "auto",
		Recorder: recorder{
			Prefix: imgrec.DefaultPrefix,
			Format: imgrec.JPEG,
		},
		BootupArgs: map[string]interface{}{
			"AcquisitionMode": "Continuous",
			"ExposureAuto":    "Off",
		},
	}
}

// server is a camera served over HTTP and the handles that own it
type server struct {
	Handler http.Handler

	sys  camera.System
	list camera.CameraList
	cam  camera.Camera
	hc   *cam.HTTPCamera
}

// pick returns the camera with the given serial number, or the first one
// for "auto"
func pick(list camera.CameraList, serial string) (camera.Camera, error) {
	if list.Len() == 0 {
		return nil, errors.New("no cameras found")
	}
	if serial == "" || serial == "auto" {
		return list.At(0), nil
	}
	for i := 0; i < list.Len(); i++ {
		c := list.At(i)
		s, err := genicam.GetString(c.TLDeviceNodeMap(), "DeviceSerialNumber")
		if err == nil && s == serial {
			return c, nil
		}
	}
	return nil, fmt.Errorf("camera %s not found among %d cameras", serial, list.Len())
}

// newServer initializes the configured camera of sys, writes the bootup
// arguments, and builds the routes.  On error the camera list is cleared
// and the system is left for the caller.
func newServer(sys camera.System, cfg config) (*server, error) {
	list, err := sys.Cameras()
	if err != nil {
		return nil, err
	}
	c, err := pick(list, cfg.Serial)
	if err != nil {
		list.Clear()
		return nil, err
	}
	if err = c.Init(); err != nil {
		list.Clear()
		return nil, errors.Wrap(err, "initializing camera")
	}
	if err = genicam.Configure(c.NodeMap(), cfg.BootupArgs); err != nil {
		c.DeInit()
		list.Clear()
		return nil, errors.Wrap(err, "writing bootup arguments")
	}
	if model, err := genicam.GetString(c.NodeMap(), "DeviceModelName"); err == nil {
		log.Printf("serving %s\n", model)
	}

	var rec *imgrec.Recorder
	if cfg.Recorder.Root != "" {
		rec = imgrec.NewRecorder(cfg.Recorder.Root, cfg.Recorder.Format, "")
		if cfg.Recorder.Prefix != "" {
			rec.Prefix = cfg.Recorder.Prefix
		}
	}

	lock := locker.New()
	lock.ReadsPass = true
	lock.DoNotProtect = append(lock.DoNotProtect, "acquisition", "frame", "files")

	hc := cam.NewHTTPCamera(c, rec)
	hc.OnAcquire = func(on bool) {
		if on {
			lock.Lock()
		} else {
			lock.Unlock()
		}
	}
	locker.Inject(hc, lock)

	mux := chi.NewRouter()
	mux.Use(lock.Check)
	maps := []struct {
		path string
		nm   camera.NodeMap
	}{
		{"/device", c.NodeMap()},
		{"/tldevice", c.TLDeviceNodeMap()},
		{"/stream", c.TLStreamNodeMap()},
	}
	for _, m := range maps {
		r := chi.NewRouter()
		generichttp.NewNodeMapHTTP(m.nm).RT().Bind(r)
		mux.Mount(m.path, r)
	}
	r := chi.NewRouter()
	hc.RT().Bind(r)
	mux.Mount("/camera", r)

	root := chi.NewRouter()
	root.Mount(generichttp.SubMuxSanitize(cfg.Root), mux)
	return &server{Handler: root, sys: sys, list: list, cam: c, hc: hc}, nil
}

// Close stops streaming, deinitializes the camera, and releases the system
func (s *server) Close() error {
	var first error
	keep := func(err error) {
		if err != nil {
			log.Println(err)
			if first == nil {
				first = err
			}
		}
	}
	keep(s.hc.Stop())
	keep(s.cam.DeInit())
	keep(s.list.Clear())
	keep(s.sys.Release())
	return first
}
