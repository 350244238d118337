package trigger_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/magis-tdaq/camrig/config"
	"github.com/magis-tdaq/camrig/genicam"
	"github.com/magis-tdaq/camrig/spinnaker"
	"github.com/magis-tdaq/camrig/trigger"
)

func mockCam(t *testing.T) *spinnaker.MockCamera {
	t.Helper()
	c := spinnaker.NewMockCamera(spinnaker.MockCameraConfig{Serial: "7", Width: 32, Height: 8})
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestConfigureHardware(t *testing.T) {
	c := mockCam(t)
	cfg := config.DefaultRunConfig()
	cfg.TriggerSource = config.Hardware
	cfg.TriggerActivationType = "FallingEdge"
	if err := trigger.Configure(c.NodeMap(), cfg); err != nil {
		t.Fatal(err)
	}
	nm := c.NodeMap()
	expected := map[string]string{
		"TriggerMode":       "On",
		"TriggerSelector":   "FrameStart",
		"TriggerSource":     "Line3",
		"TriggerActivation": "FallingEdge",
	}
	for node, want := range expected {
		got, err := nm.GetEnum(node)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("expected %s=%s got %s", node, want, got)
		}
	}
}

func TestConfigureSoftwareLeavesActivation(t *testing.T) {
	c := mockCam(t)
	cfg := config.DefaultRunConfig()
	cfg.TriggerActivationType = "FallingEdge"
	if err := trigger.Configure(c.NodeMap(), cfg); err != nil {
		t.Fatal(err)
	}
	if src, _ := c.NodeMap().GetEnum("TriggerSource"); src != "Software" {
		t.Errorf("expected Software got %s", src)
	}
	if act, _ := c.NodeMap().GetEnum("TriggerActivation"); act != "RisingEdge" {
		t.Errorf("expected activation untouched (RisingEdge) got %s", act)
	}
}

func TestConfigureMissingNode(t *testing.T) {
	c := mockCam(t)
	c.Nodes().Remove("TriggerSelector")
	err := trigger.Configure(c.NodeMap(), config.DefaultRunConfig())
	if !genicam.IsAccessError(err) {
		t.Errorf("expected access error got %v", err)
	}
}

func TestConfigureReconfiguresArmedCamera(t *testing.T) {
	c := mockCam(t)
	cfg := config.DefaultRunConfig()
	if err := trigger.Configure(c.NodeMap(), cfg); err != nil {
		t.Fatal(err)
	}
	cfg.TriggerSource = config.Hardware
	if err := trigger.Configure(c.NodeMap(), cfg); err != nil {
		t.Errorf("expected reconfiguration of an armed trigger to succeed, got %v", err)
	}
}

func TestInvalidSourceNoHardwareAction(t *testing.T) {
	for _, src := range []string{"", "software", "Line3", "Laser"} {
		w := trigger.NewWaiter(src, nil, 0)
		// a nil camera panics if touched
		err := w.Wait(context.Background(), nil)
		if !errors.Is(err, trigger.ErrInvalidTriggerSource) {
			t.Errorf("source %q: expected ErrInvalidTriggerSource got %v", src, err)
		}
	}
}

func TestHardwareWaiterReturnsImmediately(t *testing.T) {
	w := trigger.NewWaiter(config.Hardware, nil, 0)
	if err := w.Wait(context.Background(), nil); err != nil {
		t.Errorf("expected nil got %v", err)
	}
}

func TestSoftwareWaiterExecutesOnAck(t *testing.T) {
	c := mockCam(t)
	if err := trigger.Configure(c.NodeMap(), config.DefaultRunConfig()); err != nil {
		t.Fatal(err)
	}
	c.BeginAcquisition()
	ack := make(chan struct{}, 1)
	ack <- struct{}{}
	w := trigger.NewWaiter(config.Software, ack, time.Second)
	if err := w.Wait(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	if n := c.Stats().SoftwareTriggers; n != 1 {
		t.Errorf("expected 1 software trigger got %d", n)
	}
	if q := c.Queued(); q != 1 {
		t.Errorf("expected 1 queued frame got %d", q)
	}
}

func TestSoftwareWaiterTimeout(t *testing.T) {
	c := mockCam(t)
	w := trigger.NewWaiter(config.Software, make(chan struct{}), 5*time.Millisecond)
	err := w.Wait(context.Background(), c)
	if !errors.Is(err, trigger.ErrAckTimeout) {
		t.Errorf("expected ErrAckTimeout got %v", err)
	}
	if n := c.Stats().SoftwareTriggers; n != 0 {
		t.Errorf("expected no software trigger got %d", n)
	}
}

func TestSoftwareWaiterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := trigger.NewWaiter(config.Software, make(chan struct{}), 0)
	if err := w.Wait(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled got %v", err)
	}
}

func TestConsoleAck(t *testing.T) {
	ch := trigger.ConsoleAck(strings.NewReader("\n\n"), nil)
	n := 0
	for range ch {
		n++
	}
	if n != 2 {
		t.Errorf("expected 2 acknowledgements got %d", n)
	}
}

func TestSoftwareWaiterClosedAck(t *testing.T) {
	ch := trigger.ConsoleAck(strings.NewReader(""), nil)
	w := trigger.NewWaiter(config.Software, ch, time.Second)
	if err := w.Wait(context.Background(), nil); !errors.Is(err, trigger.ErrAckClosed) {
		t.Errorf("expected ErrAckClosed got %v", err)
	}
}
