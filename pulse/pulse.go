// Package pulse drives a GPIO pin through a train of trigger pulses
package pulse

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// ErrNoPin is returned when the named pin does not exist on the host
var ErrNoPin = errors.New("no such GPIO pin")

// Pin is the part of a gpio.PinIO the emitter uses
type Pin interface {
	Out(l gpio.Level) error
	Halt() error
	String() string
}

// Open initializes the host drivers and returns the named pin, e.g. GPIO18
func Open(name string) (Pin, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "initializing host drivers")
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Wrapf(ErrNoPin, "%s", name)
	}
	return p, nil
}

// Emitter sends Count cycles of {high, Period/2, low, Period/2} on Pin.
// Nothing acknowledges the pulses.
type Emitter struct {
	Pin    Pin
	Count  int
	Period time.Duration

	// OnPulse is called after each completed cycle with its 1-based index
	OnPulse func(n int)
}

// wait sleeps d or until ctx is done
func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Emit sends the pulse train and returns the number of completed cycles.
// The pin is driven low and halted when Emit returns, including on
// cancellation.
func (e Emitter) Emit(ctx context.Context) (n int, err error) {
	half := e.Period / 2
	defer func() {
		if lerr := e.Pin.Out(gpio.Low); lerr != nil && err == nil {
			err = errors.Wrapf(lerr, "driving %s low", e.Pin)
		}
		if herr := e.Pin.Halt(); herr != nil && err == nil {
			err = errors.Wrapf(herr, "halting %s", e.Pin)
		}
	}()
	for n < e.Count {
		if err = e.Pin.Out(gpio.High); err != nil {
			return n, errors.Wrapf(err, "driving %s high", e.Pin)
		}
		if err = wait(ctx, half); err != nil {
			return n, err
		}
		if err = e.Pin.Out(gpio.Low); err != nil {
			return n, errors.Wrapf(err, "driving %s low", e.Pin)
		}
		if err = wait(ctx, half); err != nil {
			return n, err
		}
		n++
		if e.OnPulse != nil {
			e.OnPulse(n)
		}
	}
	log.Printf("sent %d pulses on %s\n", n, e.Pin)
	return n, nil
}
