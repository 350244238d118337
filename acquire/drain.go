package acquire

import (
	"fmt"
	"log"
	"time"

	"github.com/magis-tdaq/camrig/camera"
	"github.com/magis-tdaq/camrig/genicam"
	"github.com/magis-tdaq/camrig/imgrec"
	"github.com/magis-tdaq/camrig/spinnaker"
)

// Error code bits, OR'd into LoopState.ErrorFlag
const (
	// CodeTrigger is set when a trigger could not be sent
	CodeTrigger = 1 << iota

	// CodeTimeout is set when no frame arrived within the grab timeout
	CodeTimeout

	// CodeHardware is set when the device failed a frame request
	CodeHardware

	// CodeSave is set when a frame could not be converted or written
	CodeSave
)

// DrainKind classifies a failed drain
type DrainKind int

const (
	// TimedOut means the frame request waited out its timeout
	TimedOut DrainKind = iota + 1

	// HardwareFault means the device failed the frame request
	HardwareFault

	// SaveFailed means the frame was acquired but not persisted
	SaveFailed
)

func (k DrainKind) String() string {
	switch k {
	case TimedOut:
		return "timed out"
	case HardwareFault:
		return "hardware fault"
	case SaveFailed:
		return "save failed"
	}
	return fmt.Sprintf("DrainKind(%d)", int(k))
}

// Code is the error code bit of the kind
func (k DrainKind) Code() int {
	switch k {
	case TimedOut:
		return CodeTimeout
	case HardwareFault:
		return CodeHardware
	case SaveFailed:
		return CodeSave
	}
	return 0
}

// DrainError is returned by Drainer.Drain
type DrainError struct {
	Kind   DrainKind
	Serial string
	Seq    int
	Err    error
}

func (e *DrainError) Error() string {
	return fmt.Sprintf("camera %s frame %d: %s: %v", e.Serial, e.Seq, e.Kind, e.Err)
}

// Unwrap returns the underlying SDK or filesystem error
func (e *DrainError) Unwrap() error {
	return e.Err
}

// FrameRecord describes one drained frame
type FrameRecord struct {
	CameraSerial   string
	SequenceNumber int
	Width, Height  int

	// Status is the image status reported by the hardware, 0 for a
	// complete frame
	Status int

	Chunks map[string]float64

	// Path is where the frame was written, empty for incomplete frames
	Path string
}

// Complete reports if the hardware marked the frame complete
func (f FrameRecord) Complete() bool {
	return f.Status == 0
}

// Drainer pulls one frame out of a camera's buffer and persists it
type Drainer struct {
	// Timeout bounds the frame request
	Timeout time.Duration

	Rec *imgrec.Recorder
}

// Serial reads DeviceSerialNumber from the transport layer device node map.
// It is empty when the node is not readable.
func Serial(cam camera.Camera) string {
	s, err := genicam.GetString(cam.TLDeviceNodeMap(), "DeviceSerialNumber")
	if err != nil {
		return ""
	}
	return s
}

// Drain requests one frame from cam and writes it to disk as frame seq.
// An incomplete frame is logged and recorded, it is not an error.  The
// frame is released exactly once on every path.
func (d Drainer) Drain(cam camera.Camera, seq int) (FrameRecord, error) {
	serial := Serial(cam)
	rec := FrameRecord{CameraSerial: serial, SequenceNumber: seq}

	img, err := cam.NextImage(d.Timeout)
	if err != nil {
		kind := HardwareFault
		if spinnaker.IsTimeout(err) {
			kind = TimedOut
		}
		return rec, &DrainError{Kind: kind, Serial: serial, Seq: seq, Err: err}
	}
	defer func() {
		if err := img.Release(); err != nil {
			log.Printf("releasing frame %d of camera %s failed: %s\n", seq, serial, err)
		}
	}()

	rec.Width, rec.Height = img.Width(), img.Height()
	rec.Status = img.Status()
	if img.Incomplete() {
		log.Printf("image incomplete with image status %d (%s)\n", rec.Status, spinnaker.ImageStatusName(rec.Status))
		return rec, nil
	}
	rec.Chunks = img.Chunks()
	log.Printf("grabbed image %d, width = %d, height = %d\n", seq, rec.Width, rec.Height)

	path, err := d.Rec.Save(imgrec.Frame{
		Serial:      serial,
		Seq:         seq,
		Width:       rec.Width,
		Height:      rec.Height,
		PixelFormat: img.PixelFormat(),
		Data:        img.Data(),
		Chunks:      rec.Chunks,
	})
	if err != nil {
		return rec, &DrainError{Kind: SaveFailed, Serial: serial, Seq: seq, Err: err}
	}
	rec.Path = path
	log.Printf("image saved at %s\n", path)
	return rec, nil
}
