package spinnaker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/magis-tdaq/camrig/camera"
	"github.com/magis-tdaq/camrig/spinnaker"
)

func TestErrorNilOnSuccess(t *testing.T) {
	if err := spinnaker.Error(0); err != nil {
		t.Errorf("expected nil got %v", err)
	}
}

func TestErrorKnownCode(t *testing.T) {
	err := spinnaker.Error(-1011)
	expected := "-1011 - SPINNAKER_ERR_TIMEOUT"
	if err.Error() != expected {
		t.Errorf("expected %s got %s", expected, err.Error())
	}
	if !spinnaker.IsTimeout(err) {
		t.Error("expected -1011 to be a timeout")
	}
}

func TestErrorUnknownCode(t *testing.T) {
	err := spinnaker.Error(-42)
	expected := "-42 - UNKNOWN_ERROR_CODE"
	if err.Error() != expected {
		t.Errorf("expected %s got %s", expected, err.Error())
	}
}

func TestImageStatusName(t *testing.T) {
	if s := spinnaker.ImageStatusName(3); s != "IMAGE_MISSING_PACKETS" {
		t.Errorf("expected IMAGE_MISSING_PACKETS got %s", s)
	}
	if s := spinnaker.ImageStatusName(99); s != "IMAGE_STATUS_99" {
		t.Errorf("expected IMAGE_STATUS_99 got %s", s)
	}
}

func armed(t *testing.T, source string) *spinnaker.MockCamera {
	t.Helper()
	c := spinnaker.NewMockCamera(spinnaker.MockCameraConfig{Serial: "123", Width: 64, Height: 32})
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	nm := c.NodeMap()
	if err := nm.SetEnum("TriggerSource", source); err != nil {
		t.Fatal(err)
	}
	if err := nm.SetEnum("TriggerMode", "On"); err != nil {
		t.Fatal(err)
	}
	if err := c.BeginAcquisition(); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestMockNodeMapHiddenBeforeInit(t *testing.T) {
	c := spinnaker.NewMockCamera(spinnaker.MockCameraConfig{Serial: "123"})
	_, err := c.NodeMap().GetEnum("TriggerMode")
	var nae *camera.NodeAccessError
	if !errors.As(err, &nae) {
		t.Errorf("expected NodeAccessError before Init got %v", err)
	}
	s, err := c.TLDeviceNodeMap().GetString("DeviceSerialNumber")
	if err != nil || s != "123" {
		t.Errorf("expected serial 123 readable before Init, got %q, %v", s, err)
	}
}

func TestMockTriggerSourceLockedWhileModeOn(t *testing.T) {
	c := armed(t, "Software")
	err := c.NodeMap().SetEnum("TriggerSource", "Line3")
	var nae *camera.NodeAccessError
	if !errors.As(err, &nae) {
		t.Errorf("expected NodeAccessError got %v", err)
	}
}

func TestMockNoFrameWithoutTrigger(t *testing.T) {
	c := armed(t, "Software")
	_, err := c.NextImage(time.Millisecond)
	if !spinnaker.IsTimeout(err) {
		t.Errorf("expected timeout got %v", err)
	}
}

func TestMockOneFramePerTrigger(t *testing.T) {
	c := armed(t, "Software")
	if err := c.NodeMap().Execute("TriggerSoftware"); err != nil {
		t.Fatal(err)
	}
	img, err := c.NextImage(time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if img.Width() != 64 || img.Height() != 32 {
		t.Errorf("expected 64x32 got %dx%d", img.Width(), img.Height())
	}
	if len(img.Data()) != 64*32 {
		t.Errorf("expected %d bytes got %d", 64*32, len(img.Data()))
	}
	img.Release()
	_, err = c.NextImage(time.Millisecond)
	if !spinnaker.IsTimeout(err) {
		t.Errorf("expected second request after one trigger to time out, got %v", err)
	}
}

func TestMockLinePulse(t *testing.T) {
	c := armed(t, "Line3")
	c.Pulse("Line0")
	if c.Queued() != 0 {
		t.Errorf("expected a pulse on another line to be ignored")
	}
	c.Pulse("Line3")
	if c.Queued() != 1 {
		t.Errorf("expected 1 queued frame got %d", c.Queued())
	}
}

func TestMockNewestOnly(t *testing.T) {
	c := armed(t, "Line3")
	if err := c.TLStreamNodeMap().SetEnum("StreamBufferHandlingMode", "NewestOnly"); err != nil {
		t.Fatal(err)
	}
	c.Pulse("Line3")
	c.Pulse("Line3")
	c.Pulse("Line3")
	if c.Queued() != 1 {
		t.Errorf("expected 1 queued frame got %d", c.Queued())
	}
	if d := c.Stats().Dropped; d != 2 {
		t.Errorf("expected 2 dropped frames got %d", d)
	}
}

func TestMockReleaseCounts(t *testing.T) {
	c := armed(t, "Line3")
	c.Pulse("Line3")
	img, err := c.NextImage(time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if err = img.Release(); err != nil {
		t.Fatal(err)
	}
	if err = img.Release(); err == nil {
		t.Error("expected an error releasing twice")
	}
	st := c.Stats()
	if st.Acquired != 1 || st.Released != 1 {
		t.Errorf("expected 1 acquired 1 released got %d %d", st.Acquired, st.Released)
	}
}

func TestMockInjected(t *testing.T) {
	c := armed(t, "Line3")
	c.InjectError(spinnaker.ErrIO)
	if _, err := c.NextImage(time.Millisecond); err != spinnaker.ErrIO {
		t.Errorf("expected injected ErrIO got %v", err)
	}
	c.InjectIncomplete(spinnaker.StatusMissingPackets)
	c.Pulse("Line3")
	img, err := c.NextImage(time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer img.Release()
	if !img.Incomplete() || img.Status() != spinnaker.StatusMissingPackets {
		t.Errorf("expected incomplete frame with status 3 got %v %d", img.Incomplete(), img.Status())
	}
}

func TestMockChunks(t *testing.T) {
	c := spinnaker.NewMockCamera(spinnaker.MockCameraConfig{Serial: "1", Width: 16, Height: 2, FreeRun: true})
	c.Init()
	nm := c.NodeMap()
	if err := nm.SetBool("ChunkEnable", true); err == nil {
		t.Error("expected ChunkEnable to be read only for the Image selector")
	}
	nm.SetBool("ChunkModeActive", true)
	nm.SetEnum("ChunkSelector", "ExposureTime")
	if err := nm.SetBool("ChunkEnable", true); err != nil {
		t.Fatal(err)
	}
	c.BeginAcquisition()
	img, err := c.NextImage(time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer img.Release()
	ch := img.Chunks()
	if ch["ExposureTime"] != 10000 {
		t.Errorf("expected ExposureTime chunk 10000 got %v", ch["ExposureTime"])
	}
	if _, ok := ch["Gain"]; ok {
		t.Error("expected the Gain chunk to be absent")
	}
}

func TestMockSystemRelease(t *testing.T) {
	sys := spinnaker.NewSimulatedSystem(2)
	l, err := sys.Cameras()
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 2 {
		t.Errorf("expected 2 cameras got %d", l.Len())
	}
	l.Clear()
	if err = sys.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err = sys.Cameras(); err == nil {
		t.Error("expected enumeration on a released system to fail")
	}
	if sys.Releases() != 1 || sys.Clears() != 1 {
		t.Errorf("expected 1 release 1 clear got %d %d", sys.Releases(), sys.Clears())
	}
}
