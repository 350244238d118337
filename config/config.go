// Package config loads the JSON run and preparation configuration files.
//
// Defaults are loaded from a struct and the file is overlaid on top of them,
// so keys absent from the file keep their default values.  Keys are case
// sensitive and match the field names, e.g. TriggerSource.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/pkg/errors"
)

// DefaultPath is the configuration file used when none is given on the
// command line
const DefaultPath = "config.json"

const (
	// Software is the TriggerSource of the software trigger path
	Software = "Software"

	// Hardware is the TriggerSource of the external line trigger path
	Hardware = "Hardware"

	// FormatJPEG writes frames as 8-bit JPEG files
	FormatJPEG = "jpg"

	// FormatFITS writes frames as FITS files with chunk data header cards
	FormatFITS = "fits"
)

// ErrConfig is the cause of every configuration failure.  Test for it with
// errors.Is.
var ErrConfig = errors.New("invalid configuration")

// RunConfig is the configuration of the acquisition and emulator programs.
// It is read once at startup and never modified.
type RunConfig struct {
	// TriggerName is a label used in log messages
	TriggerName string `json:"TriggerName"`

	// TriggerSource is Software or Hardware
	TriggerSource string `json:"TriggerSource"`

	// TriggerSelector is the trigger selector entry, e.g. FrameStart
	TriggerSelector string `json:"TriggerSelector"`

	// TriggerActivationType is the edge or level that fires a hardware
	// trigger, e.g. RisingEdge.  Ignored for software triggers.
	TriggerActivationType string `json:"TriggerActivationType"`

	// TriggerTiming is the period of the trigger pulse train in ms.  The
	// acquisition loop sleeps this long every iteration.
	TriggerTiming int `json:"TriggerTiming"`

	// RunUntil is the run length in minutes
	RunUntil int `json:"RunUntil"`

	// ExitOnError stops the loop at the first iteration with an error
	ExitOnError bool `json:"ExitOnError"`

	// TriggerLine is the TriggerSource entry used for hardware triggers
	TriggerLine string `json:"TriggerLine"`

	// GrabTimeout bounds each frame request, in ms
	GrabTimeout int `json:"GrabTimeout"`

	// AckTimeout bounds the wait for a software trigger acknowledgement,
	// in ms.  Zero waits forever.
	AckTimeout int `json:"AckTimeout"`

	// OutputDir is the folder frames are written to
	OutputDir string `json:"OutputDir"`

	// OutputFormat is jpg or fits
	OutputFormat string `json:"OutputFormat"`

	// Simulate runs against SimCameras simulated cameras instead of the SDK
	Simulate   bool `json:"Simulate"`
	SimCameras int  `json:"SimCameras"`

	// DiscoveryTimeout bounds the retries of camera enumeration, in ms
	DiscoveryTimeout int `json:"DiscoveryTimeout"`

	// PulseCount is the number of pulses sent by the trigger emulator
	PulseCount int `json:"PulseCount"`

	// PulsePin is the GPIO pin driven by the trigger emulator
	PulsePin string `json:"PulsePin"`
}

// DefaultRunConfig holds the values used for keys not present in the file
func DefaultRunConfig() RunConfig {
	return RunConfig{
		TriggerName:           "trigger",
		TriggerSource:         Software,
		TriggerSelector:       "FrameStart",
		TriggerActivationType: "RisingEdge",
		TriggerLine:           "Line3",
		GrabTimeout:           1,
		AckTimeout:            60000,
		OutputDir:             ".",
		OutputFormat:          FormatJPEG,
		SimCameras:            1,
		DiscoveryTimeout:      3000,
		PulseCount:            10,
		PulsePin:              "GPIO18",
	}
}

// Period is TriggerTiming as a Duration
func (c RunConfig) Period() time.Duration {
	return time.Duration(c.TriggerTiming) * time.Millisecond
}

// Deadline is RunUntil as a Duration
func (c RunConfig) Deadline() time.Duration {
	return time.Duration(c.RunUntil) * time.Minute
}

// GrabWait is GrabTimeout as a Duration
func (c RunConfig) GrabWait() time.Duration {
	return time.Duration(c.GrabTimeout) * time.Millisecond
}

// AckWait is AckTimeout as a Duration, zero meaning no bound
func (c RunConfig) AckWait() time.Duration {
	return time.Duration(c.AckTimeout) * time.Millisecond
}

// Validate checks the values that would otherwise fail deep inside the loop
func (c RunConfig) Validate() error {
	switch c.TriggerSource {
	case Software, Hardware:
	default:
		return errors.Wrapf(ErrConfig, "TriggerSource %q is neither %s nor %s", c.TriggerSource, Software, Hardware)
	}
	switch c.OutputFormat {
	case FormatJPEG, FormatFITS:
	default:
		return errors.Wrapf(ErrConfig, "OutputFormat %q is neither %s nor %s", c.OutputFormat, FormatJPEG, FormatFITS)
	}
	nonneg := []struct {
		name string
		v    int
	}{
		{"TriggerTiming", c.TriggerTiming},
		{"RunUntil", c.RunUntil},
		{"GrabTimeout", c.GrabTimeout},
		{"AckTimeout", c.AckTimeout},
		{"DiscoveryTimeout", c.DiscoveryTimeout},
		{"PulseCount", c.PulseCount},
	}
	for _, f := range nonneg {
		if f.v < 0 {
			return errors.Wrapf(ErrConfig, "%s must be >= 0, got %d", f.name, f.v)
		}
	}
	if c.Simulate && c.SimCameras < 1 {
		return errors.Wrapf(ErrConfig, "SimCameras must be >= 1 when Simulate is set, got %d", c.SimCameras)
	}
	return nil
}

// load overlays the JSON file at path onto defaults and decodes into out
func load(path string, defaults interface{}, out interface{}) error {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaults, "json"), nil); err != nil {
		return errors.Wrap(err, "loading defaults")
	}
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return errors.Wrapf(ErrConfig, "loading %s: %v", path, err)
	}
	err := k.UnmarshalWithConf("", out, koanf.UnmarshalConf{Tag: "json"})
	if err != nil {
		return errors.Wrapf(ErrConfig, "decoding %s: %v", path, err)
	}
	return nil
}

// LoadRun reads a RunConfig from the JSON file at path.  A missing or
// malformed file, or an invalid value, is an ErrConfig.
func LoadRun(path string) (RunConfig, error) {
	cfg := RunConfig{}
	if err := load(path, DefaultRunConfig(), &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// CameraSettings is the parameter set applied to one camera by the preparer.
// Pointer and interface fields are nil when the key is absent from the file,
// and the setting is then left untouched on the device.
type CameraSettings struct {
	// DeviceID is the serial number of the camera
	DeviceID string `json:"DeviceID"`

	// InUse must be the boolean true for the camera to be prepared.  Any
	// other value, including a non-boolean, skips it.
	InUse interface{} `json:"InUse"`

	AcquisitionMode string `json:"AcquisitionMode"`

	// Exposure is a number of microseconds or Auto
	Exposure interface{} `json:"Exposure"`

	// Gain is a number of dB or Auto
	Gain interface{} `json:"Gain"`

	PixelFormat       string `json:"PixelFormat"`
	OffsetX           *int64 `json:"OffsetX"`
	OffsetY           *int64 `json:"OffsetY"`
	Width             *int64 `json:"Width"`
	Height            *int64 `json:"Height"`
	AdcBitDepth       string `json:"AdcBitDepth"`
	SensorShutterMode string `json:"SensorShutterMode"`

	// TriggerSource is Software, Hardware (Line0), or a line name
	TriggerSource     string   `json:"TriggerSource"`
	TriggerSelector   string   `json:"TriggerSelector"`
	TriggerActivation string   `json:"TriggerActivation"`
	TriggerOverlap    string   `json:"TriggerOverlap"`
	TriggerDelay      *float64 `json:"TriggerDelay"`

	StreamBufferHandlingMode string `json:"StreamBufferHandlingMode"`

	// LUT is the LUTSelector entry to load with a linear table and enable
	LUT string `json:"LUT"`

	// UserSet is the user set the settings are saved to
	UserSet string `json:"UserSet"`
}

// Active reports if InUse is the boolean true.  ok is false when InUse is
// absent or not a boolean.
func (s CameraSettings) Active() (active, ok bool) {
	b, ok := s.InUse.(bool)
	return b, ok
}

// Auto decodes an Exposure or Gain value.  set is false when the key is
// absent; auto is true when the value is anything other than a number.
func Auto(v interface{}) (value float64, auto, set bool) {
	switch x := v.(type) {
	case nil:
		return 0, false, false
	case float64:
		return x, false, true
	case int:
		return float64(x), false, true
	case int64:
		return float64(x), false, true
	}
	return 0, true, true
}

// PrepConfig is the configuration of the preparation program
type PrepConfig struct {
	// Cameras maps a label, or the serial number, to the camera's settings
	Cameras map[string]CameraSettings `json:"Cameras"`
}

// Find returns the settings for the camera with the given serial number.
// Entries match on DeviceID, or on their key when DeviceID is empty.  The
// label of the match is returned alongside it.
func (p PrepConfig) Find(serial string) (CameraSettings, string, bool) {
	for label, s := range p.Cameras {
		id := s.DeviceID
		if id == "" {
			id = label
		}
		if id == serial {
			return s, label, true
		}
	}
	return CameraSettings{}, "", false
}

// LoadPrep reads a PrepConfig from the JSON file at path
func LoadPrep(path string) (PrepConfig, error) {
	cfg := PrepConfig{}
	if err := load(path, PrepConfig{Cameras: map[string]CameraSettings{}}, &cfg); err != nil {
		return cfg, err
	}
	for label, s := range cfg.Cameras {
		if s.UserSet == "" {
			s.UserSet = "UserSet0"
		}
		if s.AcquisitionMode == "" {
			s.AcquisitionMode = "Continuous"
		}
		if strings.TrimSpace(s.DeviceID) == "" {
			s.DeviceID = label
		}
		cfg.Cameras[label] = s
	}
	return cfg, nil
}

// String renders the run configuration for the startup log
func (c RunConfig) String() string {
	return fmt.Sprintf("%s: source=%s selector=%s activation=%s timing=%dms runUntil=%dmin exitOnError=%v",
		c.TriggerName, c.TriggerSource, c.TriggerSelector, c.TriggerActivationType,
		c.TriggerTiming, c.RunUntil, c.ExitOnError)
}
