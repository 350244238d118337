// Package genicam contains capability-checked accessors for GenICam node maps.
//
// Every helper queries the access mode of a node before touching it and
// returns a *camera.NodeAccessError when the node is missing, unreadable, or
// unwritable, so callers can log and move on to the next setting.
package genicam

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/magis-tdaq/camrig/camera"
)

const (
	// ReadOnly is the access needed to read a node
	ReadOnly = camera.Available | camera.Readable

	// WriteOnly is the access needed to write a node or execute a command
	WriteOnly = camera.Available | camera.Writable
)

// Require returns a *camera.NodeAccessError if the node lacks want access
func Require(nm camera.NodeMap, name string, want camera.Access) error {
	have := nm.Access(name)
	if !have.Has(want) {
		return &camera.NodeAccessError{Node: name, Want: want, Have: have}
	}
	return nil
}

// IsAccessError reports if err is, or wraps, a *camera.NodeAccessError
func IsAccessError(err error) bool {
	var nae *camera.NodeAccessError
	return errors.As(err, &nae)
}

// SetEnum selects entry on an enumeration node.  The node must be writable
// and the entry readable.
func SetEnum(nm camera.NodeMap, name, entry string) error {
	if err := Require(nm, name, WriteOnly); err != nil {
		return err
	}
	have := nm.EntryAccess(name, entry)
	if !have.Has(ReadOnly) {
		return &camera.NodeAccessError{Node: name, Entry: entry, Want: ReadOnly, Have: have}
	}
	return errors.Wrapf(nm.SetEnum(name, entry), "setting %s to %s", name, entry)
}

// GetEnum returns the current entry of a readable enumeration node
func GetEnum(nm camera.NodeMap, name string) (string, error) {
	if err := Require(nm, name, ReadOnly); err != nil {
		return "", err
	}
	return nm.GetEnum(name)
}

// SetBool writes a boolean node
func SetBool(nm camera.NodeMap, name string, b bool) error {
	if err := Require(nm, name, WriteOnly); err != nil {
		return err
	}
	return errors.Wrapf(nm.SetBool(name, b), "setting %s to %v", name, b)
}

// Execute runs a command node
func Execute(nm camera.NodeMap, name string) error {
	if err := Require(nm, name, WriteOnly); err != nil {
		return err
	}
	return errors.Wrapf(nm.Execute(name), "executing %s", name)
}

// GetString reads a string node
func GetString(nm camera.NodeMap, name string) (string, error) {
	if err := Require(nm, name, ReadOnly); err != nil {
		return "", err
	}
	return nm.GetString(name)
}

// SetFloatClamped writes v to a float node after clamping it to the node's
// range, and returns the value written
func SetFloatClamped(nm camera.NodeMap, name string, v float64) (float64, error) {
	if err := Require(nm, name, WriteOnly|camera.Readable); err != nil {
		return 0, err
	}
	min, max, err := nm.FloatRange(name)
	if err != nil {
		return 0, errors.Wrapf(err, "reading the range of %s", name)
	}
	v = math.Max(min, math.Min(max, v))
	return v, errors.Wrapf(nm.SetFloat(name, v), "setting %s to %f", name, v)
}

// SetFloatChecked writes v to a float node, failing with an error naming the
// range when v is outside it
func SetFloatChecked(nm camera.NodeMap, name string, v float64) error {
	if err := Require(nm, name, WriteOnly|camera.Readable); err != nil {
		return err
	}
	min, max, err := nm.FloatRange(name)
	if err != nil {
		return errors.Wrapf(err, "reading the range of %s", name)
	}
	if v < min || v > max {
		return fmt.Errorf("%s value %f outside [%f, %f]", name, v, min, max)
	}
	return errors.Wrapf(nm.SetFloat(name, v), "setting %s to %f", name, v)
}

// Align clamps v to [min, max] and rounds it down onto the grid
// min + k*inc
func Align(v, min, max, inc int64) int64 {
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	if inc > 1 {
		v = min + ((v-min)/inc)*inc
	}
	return v
}

// SetIntAligned writes v to an integer node after clamping it to the node's
// range and aligning it to the increment, and returns the value written
func SetIntAligned(nm camera.NodeMap, name string, v int64) (int64, error) {
	if err := Require(nm, name, WriteOnly|camera.Readable); err != nil {
		return 0, err
	}
	min, max, inc, err := nm.IntRange(name)
	if err != nil {
		return 0, errors.Wrapf(err, "reading the range of %s", name)
	}
	v = Align(v, min, max, inc)
	return v, errors.Wrapf(nm.SetInt(name, v), "setting %s to %d", name, v)
}

// Get reads a node of any value kind
func Get(nm camera.NodeMap, name string) (interface{}, error) {
	if err := Require(nm, name, ReadOnly); err != nil {
		return nil, err
	}
	switch k := nm.Kind(name); k {
	case camera.KindInt:
		return nm.GetInt(name)
	case camera.KindFloat:
		return nm.GetFloat(name)
	case camera.KindBool:
		return nm.GetBool(name)
	case camera.KindEnum:
		return nm.GetEnum(name)
	case camera.KindString:
		return nm.GetString(name)
	default:
		return nil, fmt.Errorf("node %s of kind %s has no value", name, k)
	}
}

// Set writes a node of any value kind.  Numbers are accepted as any Go
// numeric type, so values decoded from JSON can be passed straight through.
func Set(nm camera.NodeMap, name string, v interface{}) error {
	if err := Require(nm, name, WriteOnly); err != nil {
		return err
	}
	k := nm.Kind(name)
	switch k {
	case camera.KindInt:
		f, ok := number(v)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("value %v for int node %s is not an integer", v, name)
		}
		return errors.Wrapf(nm.SetInt(name, int64(f)), "setting %s", name)
	case camera.KindFloat:
		f, ok := number(v)
		if !ok {
			return fmt.Errorf("value %v for float node %s is not a number", v, name)
		}
		return errors.Wrapf(nm.SetFloat(name, f), "setting %s", name)
	case camera.KindBool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("value %v for bool node %s is not a bool", v, name)
		}
		return errors.Wrapf(nm.SetBool(name, b), "setting %s", name)
	case camera.KindEnum:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("value %v for enum node %s is not a string", v, name)
		}
		return SetEnum(nm, name, s)
	default:
		return fmt.Errorf("node %s of kind %s cannot be set", name, k)
	}
}

func number(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}

// Configure writes every node in settings.  All settings are attempted; the
// failures are returned together, in node name order.
func Configure(nm camera.NodeMap, settings map[string]interface{}) error {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	strs := []string{}
	for _, k := range keys {
		if err := Set(nm, k, settings[k]); err != nil {
			strs = append(strs, err.Error())
		}
	}
	if len(strs) == 0 {
		return nil
	}
	return errors.New(strings.Join(strs, "\n"))
}

// Snapshot reads every readable node in names, skipping the rest
func Snapshot(nm camera.NodeMap, names []string) map[string]interface{} {
	out := make(map[string]interface{}, len(names))
	for _, n := range names {
		if v, err := Get(nm, n); err == nil {
			out[n] = v
		}
	}
	return out
}
