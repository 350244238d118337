package pulse_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/magis-tdaq/camrig/pulse"
)

type fakePin struct {
	sync.Mutex
	levels []gpio.Level
	halts  int
	fail   error
}

func (p *fakePin) Out(l gpio.Level) error {
	p.Lock()
	defer p.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.levels = append(p.levels, l)
	return nil
}

func (p *fakePin) Halt() error {
	p.Lock()
	defer p.Unlock()
	p.halts++
	return nil
}

func (p *fakePin) String() string { return "FAKE0" }

func TestEmitExactCycles(t *testing.T) {
	p := &fakePin{}
	seen := 0
	e := pulse.Emitter{Pin: p, Count: 10, Period: 2 * time.Millisecond, OnPulse: func(n int) { seen = n }}
	start := time.Now()
	n, err := e.Emit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 || seen != 10 {
		t.Errorf("expected 10 cycles got %d (last callback %d)", n, seen)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("expected at least 20ms for 10 cycles of 2ms got %s", elapsed)
	}
	// 10 high/low pairs then the final low
	if len(p.levels) != 21 {
		t.Fatalf("expected 21 writes got %d", len(p.levels))
	}
	for i := 0; i < 20; i++ {
		want := gpio.Level(i%2 == 0)
		if p.levels[i] != want {
			t.Errorf("write %d: expected %s got %s", i, want, p.levels[i])
		}
	}
	if p.levels[20] != gpio.Low || p.halts != 1 {
		t.Errorf("expected the pin left low and halted once, got %s and %d halts", p.levels[20], p.halts)
	}
}

func TestEmitZero(t *testing.T) {
	p := &fakePin{}
	n, err := pulse.Emitter{Pin: p, Count: 0, Period: time.Second}.Emit(context.Background())
	if err != nil || n != 0 {
		t.Errorf("expected no cycles got %d, %v", n, err)
	}
	if len(p.levels) != 1 || p.levels[0] != gpio.Low {
		t.Errorf("expected a single low write got %v", p.levels)
	}
}

func TestEmitCancel(t *testing.T) {
	p := &fakePin{}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	n, err := pulse.Emitter{Pin: p, Count: 1000, Period: 20 * time.Millisecond}.Emit(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded got %v", err)
	}
	if n >= 1000 {
		t.Errorf("expected the train cut short got %d cycles", n)
	}
	if last := p.levels[len(p.levels)-1]; last != gpio.Low || p.halts != 1 {
		t.Errorf("expected the pin left low and halted got %s, %d halts", last, p.halts)
	}
}

func TestEmitPinFailure(t *testing.T) {
	boom := errors.New("boom")
	p := &fakePin{fail: boom}
	_, err := pulse.Emitter{Pin: p, Count: 3, Period: time.Millisecond}.Emit(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("expected boom got %v", err)
	}
	if p.halts != 1 {
		t.Errorf("expected the pin halted got %d", p.halts)
	}
}
