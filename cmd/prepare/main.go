// prepare applies the per-camera settings of a JSON file to every connected
// camera and saves them to the camera's user set, so they survive a power
// cycle.
//
// Usage:
//
//	prepare [prepare.json]
package main

import (
	"log"
	"os"

	"github.com/magis-tdaq/camrig/camera"
	"github.com/magis-tdaq/camrig/config"
	"github.com/magis-tdaq/camrig/prepare"
	"github.com/magis-tdaq/camrig/spinnaker"
)

// DefaultPath is the settings file used when none is given
const DefaultPath = "prepare.json"

// run prepares every camera of sys and returns the exit code: 0 when every
// camera in use was prepared cleanly, 2 when any setting failed
func run(sys camera.System, cfg config.PrepConfig) int {
	defer func() {
		if err := sys.Release(); err != nil {
			log.Println(err)
		}
	}()
	results, err := prepare.Prepare(sys, cfg)
	if err != nil {
		log.Println(err)
		return 1
	}
	code := 0
	prepared := 0
	for _, r := range results {
		switch {
		case !r.OK():
			log.Println(r.Err())
			code = 2
		case !r.Skipped:
			prepared++
		}
	}
	log.Printf("%d of %d cameras prepared\n", prepared, len(results))
	return code
}

func main() {
	path := DefaultPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.LoadPrep(path)
	if err != nil {
		log.Fatal(err)
	}
	sys, err := spinnaker.Open()
	if err != nil {
		log.Fatal(err)
	}
	v := sys.LibraryVersion()
	log.Printf("Spinnaker library version: %d.%d.%d.%d\n", v.Major, v.Minor, v.Type, v.Build)
	os.Exit(run(sys, cfg))
}
