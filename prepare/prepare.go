// Package prepare applies per-camera parameter sets and saves them to the
// camera's user set, so they are loaded at power on.
//
// Every setting is checked for availability and write access before it is
// written.  A setting that fails is logged and collected, and the remaining
// settings are still applied.
package prepare

import (
	"fmt"
	"log"
	"strings"

	"github.com/pkg/errors"

	"github.com/magis-tdaq/camrig/camera"
	"github.com/magis-tdaq/camrig/config"
	"github.com/magis-tdaq/camrig/genicam"
)

// ErrNoSerial is returned for a camera whose serial number cannot be read
var ErrNoSerial = errors.New("camera serial number is not readable")

// Result is the outcome of preparing one camera
type Result struct {
	// Index is the position of the camera in the enumeration
	Index int

	Serial string

	// Label is the key of the matching settings in the configuration
	Label string

	// Skipped is true when there were no settings or the camera is not in use
	Skipped bool

	// Errors holds every failed setting, in the order they were applied
	Errors []error
}

// OK reports if the camera was prepared without any failure
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Err joins the failures into one error, nil if there were none
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	strs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		strs[i] = e.Error()
	}
	return fmt.Errorf("camera %s: %d settings failed:\n%s", r.Serial, len(r.Errors), strings.Join(strs, "\n"))
}

// step logs and records the failure of one setting
func (r *Result) step(what string, err error) {
	if err == nil {
		return
	}
	err = errors.Wrap(err, what)
	log.Println(err)
	r.Errors = append(r.Errors, err)
}

// Prepare enumerates the cameras of sys and prepares each one.  The list is
// cleared before returning; the system is left for the caller to release.
func Prepare(sys camera.System, cfg config.PrepConfig) ([]Result, error) {
	list, err := sys.Cameras()
	if err != nil {
		return nil, errors.Wrap(err, "enumerating cameras")
	}
	defer list.Clear()
	log.Printf("number of cameras detected: %d\n", list.Len())
	out := make([]Result, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		res := Camera(list.At(i), cfg)
		res.Index = i
		out = append(out, res)
	}
	return out, nil
}

// Camera initializes cam, applies the settings that match its serial
// number, saves them to the user set, and deinitializes it
func Camera(cam camera.Camera, cfg config.PrepConfig) (res Result) {
	if err := cam.Init(); err != nil {
		res.step("initializing camera", err)
		return res
	}
	defer func() {
		res.step("deinitializing camera", cam.DeInit())
	}()

	serial, err := genicam.GetString(cam.TLDeviceNodeMap(), "DeviceSerialNumber")
	if err != nil {
		res.step("reading serial number", errors.Wrap(ErrNoSerial, err.Error()))
		return res
	}
	res.Serial = serial

	s, label, ok := cfg.Find(serial)
	if !ok {
		log.Printf("no settings for camera %s, skipping\n", serial)
		res.Skipped = true
		return res
	}
	res.Label = label
	active, isBool := s.Active()
	if !isBool {
		log.Printf("InUse of camera %s (%s) is not a boolean, skipping\n", label, serial)
		res.Skipped = true
		return res
	}
	if !active {
		log.Printf("camera %s (%s) is not in use, skipping\n", label, serial)
		res.Skipped = true
		return res
	}

	log.Printf("preparing camera %s (%s)\n", label, serial)
	Apply(cam, s, &res)
	return res
}

// Apply writes every setting of s to cam, in order, then saves the user set
func Apply(cam camera.Camera, s config.CameraSettings, res *Result) {
	nm := cam.NodeMap()

	if s.AcquisitionMode != "" {
		res.step("AcquisitionMode", genicam.SetEnum(nm, "AcquisitionMode", s.AcquisitionMode))
	}
	auto(nm, "Exposure", "ExposureAuto", "ExposureTime", s.Exposure, res)
	auto(nm, "Gain", "GainAuto", "Gain", s.Gain, res)
	if s.PixelFormat != "" {
		res.step("PixelFormat", genicam.SetEnum(nm, "PixelFormat", s.PixelFormat))
	}
	roi := []struct {
		name string
		v    *int64
	}{
		{"OffsetX", s.OffsetX},
		{"OffsetY", s.OffsetY},
		{"Width", s.Width},
		{"Height", s.Height},
	}
	for _, r := range roi {
		if r.v == nil {
			continue
		}
		got, err := genicam.SetIntAligned(nm, r.name, *r.v)
		res.step(r.name, err)
		if err == nil && got != *r.v {
			log.Printf("%s %d is out of range or off the increment, set to %d\n", r.name, *r.v, got)
		}
	}
	if s.AdcBitDepth != "" {
		res.step("AdcBitDepth", genicam.SetEnum(nm, "AdcBitDepth", s.AdcBitDepth))
	}
	if s.SensorShutterMode != "" {
		res.step("SensorShutterMode", genicam.SetEnum(nm, "SensorShutterMode", s.SensorShutterMode))
	}
	Trigger(nm, s, res)
	res.step("chunk data", EnableChunks(nm))
	if s.LUT != "" {
		res.step("LUT", LinearLUT(nm, s.LUT))
	}
	if s.StreamBufferHandlingMode != "" {
		res.step("StreamBufferHandlingMode",
			genicam.SetEnum(cam.TLStreamNodeMap(), "StreamBufferHandlingMode", s.StreamBufferHandlingMode))
	}
	res.step("saving user set", SaveUserSet(nm, s.UserSet))
}

// auto applies a number-or-Auto setting.  A number turns the auto node off
// and writes the value clamped to the node's range; anything else turns
// the auto node to Continuous.
func auto(nm camera.NodeMap, what, autoNode, valueNode string, v interface{}, res *Result) {
	value, isAuto, set := config.Auto(v)
	if !set {
		return
	}
	if isAuto {
		res.step(what, genicam.SetEnum(nm, autoNode, "Continuous"))
		return
	}
	if err := genicam.SetEnum(nm, autoNode, "Off"); err != nil {
		res.step(what, err)
		return
	}
	got, err := genicam.SetFloatClamped(nm, valueNode, value)
	res.step(what, err)
	if err == nil && got != value {
		log.Printf("%s %g is out of range, set to %g\n", valueNode, value, got)
	}
}

// TriggerSourceEntry maps a configured trigger source to a TriggerSource
// entry: Software, Hardware (Line0), or a line name used as is
func TriggerSourceEntry(src string) string {
	switch src {
	case config.Software:
		return "Software"
	case config.Hardware:
		return "Line0"
	}
	return src
}

// Trigger applies the trigger block: mode off, source, selector, overlap,
// delay, activation, mode on.  Nothing is done without a TriggerSource.
func Trigger(nm camera.NodeMap, s config.CameraSettings, res *Result) {
	if s.TriggerSource == "" {
		if s.TriggerSelector != "" || s.TriggerActivation != "" || s.TriggerOverlap != "" || s.TriggerDelay != nil {
			log.Println("trigger settings without a TriggerSource are ignored")
		}
		return
	}
	if err := genicam.SetEnum(nm, "TriggerMode", "Off"); err != nil {
		res.step("TriggerMode", err)
		return
	}
	res.step("TriggerSource", genicam.SetEnum(nm, "TriggerSource", TriggerSourceEntry(s.TriggerSource)))
	if s.TriggerSelector != "" {
		res.step("TriggerSelector", genicam.SetEnum(nm, "TriggerSelector", s.TriggerSelector))
	}
	if s.TriggerOverlap != "" {
		res.step("TriggerOverlap", genicam.SetEnum(nm, "TriggerOverlap", s.TriggerOverlap))
	}
	if s.TriggerDelay != nil && *s.TriggerDelay >= 0 {
		res.step("TriggerDelay", genicam.SetFloatChecked(nm, "TriggerDelay", *s.TriggerDelay))
	}
	if s.TriggerActivation != "" {
		res.step("TriggerActivation", genicam.SetEnum(nm, "TriggerActivation", s.TriggerActivation))
	}
	res.step("TriggerMode", genicam.SetEnum(nm, "TriggerMode", "On"))
}

// EnableChunks activates chunk mode and enables every chunk the camera
// offers.  Chunks which are already enabled and cannot be written, such as
// the image itself, are fine.
func EnableChunks(nm camera.NodeMap) error {
	if err := genicam.SetBool(nm, "ChunkModeActive", true); err != nil {
		return err
	}
	entries, err := nm.EnumEntries("ChunkSelector")
	if err != nil {
		return errors.Wrap(err, "listing chunk selectors")
	}
	failed := []string{}
	for _, e := range entries {
		if err := genicam.SetEnum(nm, "ChunkSelector", e); err != nil {
			failed = append(failed, err.Error())
			continue
		}
		if nm.Access("ChunkEnable").Has(genicam.ReadOnly) {
			if on, err := nm.GetBool("ChunkEnable"); err == nil && on {
				continue
			}
		}
		if err := genicam.SetBool(nm, "ChunkEnable", true); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %s", e, err))
			continue
		}
		log.Printf("%s chunk enabled\n", e)
	}
	if len(failed) > 0 {
		return errors.New(strings.Join(failed, "; "))
	}
	return nil
}

// LinearLUT loads a linear lookup table on the selector entry and enables
// it.  The step is the maximum value over the maximum index.
func LinearLUT(nm camera.NodeMap, selector string) error {
	if err := genicam.SetEnum(nm, "LUTSelector", selector); err != nil {
		return err
	}
	if err := genicam.Require(nm, "LUTIndex", genicam.WriteOnly); err != nil {
		return err
	}
	if err := genicam.Require(nm, "LUTValue", genicam.WriteOnly); err != nil {
		return err
	}
	_, idxMax, _, err := nm.IntRange("LUTIndex")
	if err != nil {
		return err
	}
	_, valMax, _, err := nm.IntRange("LUTValue")
	if err != nil {
		return err
	}
	if idxMax <= 0 {
		return fmt.Errorf("LUTIndex maximum %d leaves no table", idxMax)
	}
	inc := valMax / idxMax
	for i := int64(0); i <= idxMax; i++ {
		if err := nm.SetInt("LUTIndex", i); err != nil {
			return errors.Wrapf(err, "selecting LUT index %d", i)
		}
		if err := nm.SetInt("LUTValue", i*inc); err != nil {
			return errors.Wrapf(err, "writing LUT index %d", i)
		}
	}
	log.Printf("linear LUT loaded on %s, step %d\n", selector, inc)
	return genicam.SetBool(nm, "LUTEnable", true)
}

// SaveUserSet saves the current settings to the user set and makes it the
// set loaded at power on
func SaveUserSet(nm camera.NodeMap, userSet string) error {
	if userSet == "" {
		userSet = "UserSet0"
	}
	if err := genicam.SetEnum(nm, "UserSetSelector", userSet); err != nil {
		return err
	}
	if err := genicam.Execute(nm, "UserSetSave"); err != nil {
		return errors.Wrapf(err, "saving %s", userSet)
	}
	if err := genicam.SetEnum(nm, "UserSetDefault", userSet); err != nil {
		return err
	}
	log.Printf("settings saved to %s\n", userSet)
	return nil
}
