// emulatetrigger drives a GPIO pin through the trigger pulse train a run
// expects, PulseCount cycles at TriggerTiming ms.  It is meant for bench
// testing the hardware trigger path without the real trigger source.
//
// Usage:
//
//	emulatetrigger [config.json]
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/theckman/yacspin"

	"github.com/magis-tdaq/camrig/config"
	"github.com/magis-tdaq/camrig/pulse"
)

func spinner(total int) (*yacspin.Spinner, error) {
	return yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " pulsing",
		SuffixAutoColon:   true,
		Message:           fmt.Sprintf("0/%d", total),
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
}

// run sends the pulse train on pin and returns the exit code: 0 when every
// pulse was sent or the train was interrupted, 1 when the pin failed
func run(ctx context.Context, pin pulse.Pin, cfg config.RunConfig) int {
	log.Printf("sending %d pulses of %d ms on %s\n", cfg.PulseCount, cfg.TriggerTiming, pin)
	spin, err := spinner(cfg.PulseCount)
	if err != nil {
		log.Println(err)
		return 1
	}
	e := pulse.Emitter{
		Pin:    pin,
		Count:  cfg.PulseCount,
		Period: cfg.Period(),
		OnPulse: func(n int) {
			spin.Message(fmt.Sprintf("%d/%d", n, cfg.PulseCount))
		},
	}
	spin.Start()
	n, err := e.Emit(ctx)
	switch {
	case err == nil:
		spin.StopMessage(fmt.Sprintf("%d pulses sent", n))
		spin.Stop()
		return 0
	case errors.Is(err, context.Canceled):
		spin.StopFailMessage(fmt.Sprintf("interrupted after %d pulses", n))
		spin.StopFail()
		return 0
	}
	spin.StopFailMessage(fmt.Sprintf("stopped after %d pulses: %s", n, err))
	spin.StopFail()
	return 1
}

func main() {
	path := config.DefaultPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.LoadRun(path)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.TriggerTiming <= 0 {
		log.Fatalf("TriggerTiming must be > 0 to emulate a trigger, got %d", cfg.TriggerTiming)
	}
	pin, err := pulse.Open(cfg.PulsePin)
	if err != nil {
		log.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, pin, cfg)
	stop()
	os.Exit(code)
}
