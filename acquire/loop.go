package acquire

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/magis-tdaq/camrig/camera"
	"github.com/magis-tdaq/camrig/trigger"
)

// State is the state of an acquisition loop
type State int

const (
	// Running is the state of a loop between iterations
	Running State = iota

	// StoppingOnError is entered when an iteration recorded an error and
	// the loop exits on error
	StoppingOnError

	// StoppingOnDeadline is entered when the run length has elapsed
	StoppingOnDeadline

	// StoppingOnCancel is entered when the context is cancelled or the
	// trigger acknowledgement input is closed
	StoppingOnCancel
)

var stateNames = map[State]string{
	Running:            "running",
	StoppingOnError:    "stopping on error",
	StoppingOnDeadline: "stopping on deadline",
	StoppingOnCancel:   "stopping on cancel",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ExitCode is the process exit code of a loop that stopped in state s
func (s State) ExitCode() int {
	if s == StoppingOnError {
		return 2
	}
	return 0
}

// LoopState is the bookkeeping of a loop
type LoopState struct {
	// ImageCount is the number of frames written
	ImageCount int

	// ErrorFlag is the bitwise OR of every error code recorded
	ErrorFlag int

	// StartTime is when the loop began, recorded once
	StartTime time.Time

	// Seq is the sequence number of the current iteration, from 1
	Seq int

	State State
}

// Loop repeats trigger, drain, and stop check on every camera of a rig
type Loop struct {
	Rig     *Rig
	Waiter  trigger.Waiter
	Drainer Drainer

	// Period is slept at the start of every iteration
	Period time.Duration

	// RunUntil is the run length measured from the start time
	RunUntil time.Duration

	// ExitOnError stops the loop after the first iteration with an error
	ExitOnError bool

	// Now is the clock, time.Now when nil
	Now func() time.Time

	// OnFrame is called with every frame record, if not nil
	OnFrame func(FrameRecord)
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// sleep waits d or until ctx is done, reporting if d elapsed
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// stopped reports if a waiter error means the operator stopped the run
// rather than a trigger failing
func stopped(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, trigger.ErrAckClosed)
}

// service triggers one camera and drains its frame.  It returns the error
// code of the attempt, and true if the run was stopped while waiting.
func (l *Loop) service(ctx context.Context, cam camera.Camera, st *LoopState) (int, bool) {
	if err := l.Waiter.Wait(ctx, cam); err != nil {
		if stopped(err) {
			log.Printf("trigger wait ended: %s\n", err)
			return 0, true
		}
		log.Printf("trigger on camera %s failed: %s\n", Serial(cam), err)
		return CodeTrigger, false
	}
	rec, err := l.Drainer.Drain(cam, st.Seq)
	if l.OnFrame != nil {
		l.OnFrame(rec)
	}
	if err != nil {
		log.Println(err)
		var de *DrainError
		if errors.As(err, &de) {
			return de.Kind.Code(), false
		}
		return CodeHardware, false
	}
	if rec.Path != "" {
		st.ImageCount++
	}
	return 0, false
}

// Run runs the loop until it stops, then tears the rig down.  The final
// state is returned.
func (l *Loop) Run(ctx context.Context) LoopState {
	st := LoopState{StartTime: l.now(), Seq: 1, State: Running}
	defer func() {
		log.Printf("%s after %d iterations, %d images, error flag %d\n", st.State, st.Seq, st.ImageCount, st.ErrorFlag)
		if err := l.Rig.Teardown(); err != nil {
			log.Printf("teardown: %s\n", err)
		}
	}()
	deadline := st.StartTime.Add(l.RunUntil)
	for {
		if !sleep(ctx, l.Period) {
			st.State = StoppingOnCancel
			return st
		}
		for _, cam := range l.Rig.Cameras {
			code, stop := l.service(ctx, cam, &st)
			if stop {
				st.State = StoppingOnCancel
				return st
			}
			st.ErrorFlag |= code
		}
		if st.ErrorFlag != 0 && l.ExitOnError {
			st.State = StoppingOnError
			return st
		}
		if !l.now().Before(deadline) {
			st.State = StoppingOnDeadline
			return st
		}
		st.Seq++
	}
}
