// acquire configures the trigger of every connected camera and saves one
// frame per camera per trigger until the run length elapses, an error stops
// the run, or it is interrupted.
//
// Usage:
//
//	acquire [config.json]
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/magis-tdaq/camrig/acquire"
	"github.com/magis-tdaq/camrig/camera"
	"github.com/magis-tdaq/camrig/config"
	"github.com/magis-tdaq/camrig/imgrec"
	"github.com/magis-tdaq/camrig/spinnaker"
	"github.com/magis-tdaq/camrig/trigger"
)

// openSystem returns the simulated system when the configuration asks for
// it, and the SDK otherwise
func openSystem(cfg config.RunConfig) (camera.System, error) {
	if cfg.Simulate {
		log.Printf("simulating %d cameras\n", cfg.SimCameras)
		return spinnaker.NewSimulatedSystem(cfg.SimCameras), nil
	}
	return spinnaker.Open()
}

// run is the program minus the process exit, it returns the exit code
func run(ctx context.Context, path string, stdin io.Reader, stdout io.Writer) int {
	cfg, err := config.LoadRun(path)
	if err != nil {
		log.Println(err)
		return 1
	}
	runID := uuid.New().String()
	log.Printf("run %s, trigger %s from %s\n", runID, cfg.TriggerName, cfg.TriggerSource)

	sys, err := openSystem(cfg)
	if err != nil {
		log.Println(err)
		return 1
	}
	v := sys.LibraryVersion()
	log.Printf("Spinnaker library version: %d.%d.%d.%d\n", v.Major, v.Minor, v.Type, v.Build)

	rig, err := acquire.Setup(ctx, sys, cfg)
	if err != nil {
		log.Println(err)
		if rerr := sys.Release(); rerr != nil {
			log.Println(rerr)
		}
		return 1
	}

	var ack <-chan struct{}
	if cfg.TriggerSource == config.Software {
		ack = trigger.ConsoleAck(stdin, stdout)
	}
	loop := acquire.Loop{
		Rig:         rig,
		Waiter:      trigger.NewWaiter(cfg.TriggerSource, ack, cfg.AckWait()),
		Drainer:     acquire.Drainer{Timeout: cfg.GrabWait(), Rec: imgrec.NewRecorder(cfg.OutputDir, cfg.OutputFormat, runID)},
		Period:      cfg.Period(),
		RunUntil:    cfg.Deadline(),
		ExitOnError: cfg.ExitOnError,
	}
	st := loop.Run(ctx)
	return st.State.ExitCode()
}

func main() {
	path := config.DefaultPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, path, os.Stdin, os.Stdout)
	stop()
	os.Exit(code)
}
