// Package trigger configures camera triggering and waits for trigger events.
package trigger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/magis-tdaq/camrig/camera"
	"github.com/magis-tdaq/camrig/config"
	"github.com/magis-tdaq/camrig/genicam"
)

var (
	// ErrInvalidTriggerSource is returned for a source other than Software
	// or Hardware.  It is a configuration error and is never retried.
	ErrInvalidTriggerSource = errors.New("trigger source is neither Software nor Hardware")

	// ErrAckTimeout is returned when no acknowledgement arrived within the
	// acknowledgement timeout
	ErrAckTimeout = errors.New("timed out waiting for a software trigger acknowledgement")

	// ErrAckClosed is returned when the acknowledgement channel was closed,
	// e.g. when the console reached EOF
	ErrAckClosed = errors.New("software trigger acknowledgement channel closed")
)

// Configure sets up the trigger of a camera: trigger mode off, selector,
// source, activation (hardware only), trigger mode on.  The hardware source
// is cfg.TriggerLine.  Every step checks the node first and the first
// failure is returned.
func Configure(nm camera.NodeMap, cfg config.RunConfig) error {
	if err := genicam.SetEnum(nm, "TriggerMode", "Off"); err != nil {
		return errors.Wrap(err, "disabling trigger mode")
	}
	log.Println("trigger mode disabled")

	if err := genicam.SetEnum(nm, "TriggerSelector", cfg.TriggerSelector); err != nil {
		return errors.Wrap(err, "setting trigger selector")
	}
	log.Printf("trigger selector set to %s\n", cfg.TriggerSelector)

	switch cfg.TriggerSource {
	case config.Hardware:
		if err := genicam.SetEnum(nm, "TriggerSource", cfg.TriggerLine); err != nil {
			return errors.Wrap(err, "setting hardware trigger source")
		}
		log.Printf("trigger source set to hardware (%s)\n", cfg.TriggerLine)

		if err := genicam.SetEnum(nm, "TriggerActivation", cfg.TriggerActivationType); err != nil {
			return errors.Wrap(err, "setting trigger activation")
		}
		log.Printf("trigger activation set to %s\n", cfg.TriggerActivationType)
	case config.Software:
		if err := genicam.SetEnum(nm, "TriggerSource", "Software"); err != nil {
			return errors.Wrap(err, "setting software trigger source")
		}
		log.Println("trigger source set to software")
	default:
		return ErrInvalidTriggerSource
	}

	if err := genicam.SetEnum(nm, "TriggerMode", "On"); err != nil {
		return errors.Wrap(err, "enabling trigger mode")
	}
	log.Println("trigger mode enabled")
	return nil
}

// Waiter blocks until a trigger is believed to have reached a camera
type Waiter interface {
	Wait(ctx context.Context, cam camera.Camera) error
}

// HardwareWaiter is the external line trigger path.  The line is wired to
// the camera, so there is nothing to do.
type HardwareWaiter struct{}

// Wait returns immediately
func (HardwareWaiter) Wait(ctx context.Context, cam camera.Camera) error {
	return nil
}

// SoftwareWaiter waits for an acknowledgement, then executes TriggerSoftware
type SoftwareWaiter struct {
	// Ack delivers one value per trigger to send
	Ack <-chan struct{}

	// Timeout bounds the wait, zero waits until ctx is done
	Timeout time.Duration
}

// Wait implements Waiter
func (w SoftwareWaiter) Wait(ctx context.Context, cam camera.Camera) error {
	var expired <-chan time.Time
	if w.Timeout > 0 {
		t := time.NewTimer(w.Timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case _, ok := <-w.Ack:
		if !ok {
			return ErrAckClosed
		}
	case <-expired:
		return ErrAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
	return genicam.Execute(cam.NodeMap(), "TriggerSoftware")
}

// InvalidWaiter fails every wait without touching the camera
type InvalidWaiter struct {
	Source string
}

// Wait implements Waiter
func (w InvalidWaiter) Wait(ctx context.Context, cam camera.Camera) error {
	return errors.Wrapf(ErrInvalidTriggerSource, "source %q", w.Source)
}

// NewWaiter returns the waiter for a trigger source.  ack and timeout are
// used only on the software path.
func NewWaiter(source string, ack <-chan struct{}, timeout time.Duration) Waiter {
	switch source {
	case config.Software:
		return SoftwareWaiter{Ack: ack, Timeout: timeout}
	case config.Hardware:
		return HardwareWaiter{}
	default:
		return InvalidWaiter{Source: source}
	}
}

// ConsoleAck sends one acknowledgement on the returned channel per line read
// from r.  The channel is closed at EOF.  If w is non-nil, a prompt is
// written to it before each line is read.
func ConsoleAck(r io.Reader, w io.Writer) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		scan := bufio.NewScanner(r)
		for {
			if w != nil {
				fmt.Fprintln(w, "Press the Enter key to initiate software trigger.")
			}
			if !scan.Scan() {
				return
			}
			ch <- struct{}{}
		}
	}()
	return ch
}
