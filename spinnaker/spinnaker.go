//go:build spinnaker

package spinnaker

import (
	"time"
	"unsafe"

	"github.com/magis-tdaq/camrig/camera"
)

/*
#cgo CFLAGS: -I/opt/spinnaker/include/spinc
#cgo LDFLAGS: -L/opt/spinnaker/lib -lSpinnaker_C
#include <stdlib.h>
#include <SpinnakerC.h>

*/
import "C"

// LengthOfUndefinedBuffers is the size of buffers allocated for strings
// whose length is not known ahead of time
const LengthOfUndefinedBuffers = 256

var chunkIntNames = []string{"FrameID", "OffsetX", "OffsetY", "Width", "Height", "Timestamp"}

var chunkFloatNames = []string{"ExposureTime", "Gain", "BlackLevel"}

func boolToSpin(b bool) C.bool8_t {
	if b {
		return C.True
	}
	return C.False
}

func spinToBool(b C.bool8_t) bool {
	return b != C.False
}

// System wraps the process-wide spinSystem handle
type System struct {
	h C.spinSystem
}

// Open acquires the Spinnaker system instance.  It must be released exactly
// once with Release.
func Open() (camera.System, error) {
	s := &System{}
	if err := Error(int(C.spinSystemGetInstance(&s.h))); err != nil {
		return nil, err
	}
	return s, nil
}

// LibraryVersion implements camera.System
func (s *System) LibraryVersion() camera.Version {
	var v C.spinLibraryVersion
	C.spinSystemGetLibraryVersion(s.h, &v)
	return camera.Version{Major: int(v.major), Minor: int(v.minor), Type: int(v._type), Build: int(v.build)}
}

// Cameras implements camera.System
func (s *System) Cameras() (camera.CameraList, error) {
	l := &CameraList{}
	if err := Error(int(C.spinCameraListCreateEmpty(&l.h))); err != nil {
		return nil, err
	}
	if err := Error(int(C.spinSystemGetCameras(s.h, l.h))); err != nil {
		C.spinCameraListDestroy(l.h)
		return nil, err
	}
	var n C.size_t
	if err := Error(int(C.spinCameraListGetSize(l.h, &n))); err != nil {
		C.spinCameraListDestroy(l.h)
		return nil, err
	}
	l.cams = make([]*Camera, int(n))
	for i := range l.cams {
		c := &Camera{}
		if err := Error(int(C.spinCameraListGet(l.h, C.size_t(i), &c.h))); err != nil {
			l.Clear()
			return nil, err
		}
		l.cams[i] = c
	}
	return l, nil
}

// Release implements camera.System
func (s *System) Release() error {
	return Error(int(C.spinSystemReleaseInstance(s.h)))
}

// CameraList wraps a spinCameraList
type CameraList struct {
	h    C.spinCameraList
	cams []*Camera
}

// Len implements camera.CameraList
func (l *CameraList) Len() int { return len(l.cams) }

// At implements camera.CameraList
func (l *CameraList) At(i int) camera.Camera { return l.cams[i] }

// Clear releases every camera reference then destroys the list
func (l *CameraList) Clear() error {
	var first error
	for _, c := range l.cams {
		if err := Error(int(C.spinCameraRelease(c.h))); err != nil && first == nil {
			first = err
		}
	}
	l.cams = nil
	if err := Error(int(C.spinCameraListClear(l.h))); err != nil && first == nil {
		first = err
	}
	if err := Error(int(C.spinCameraListDestroy(l.h))); err != nil && first == nil {
		first = err
	}
	return first
}

// Camera wraps a spinCamera
type Camera struct {
	h C.spinCamera
}

// Init implements camera.Camera
func (c *Camera) Init() error {
	return Error(int(C.spinCameraInit(c.h)))
}

// DeInit implements camera.Camera
func (c *Camera) DeInit() error {
	return Error(int(C.spinCameraDeInit(c.h)))
}

// NodeMap implements camera.Camera
func (c *Camera) NodeMap() camera.NodeMap {
	m := &NodeMap{}
	m.err = Error(int(C.spinCameraGetNodeMap(c.h, &m.h)))
	return m
}

// TLDeviceNodeMap implements camera.Camera
func (c *Camera) TLDeviceNodeMap() camera.NodeMap {
	m := &NodeMap{}
	m.err = Error(int(C.spinCameraGetTLDeviceNodeMap(c.h, &m.h)))
	return m
}

// TLStreamNodeMap implements camera.Camera
func (c *Camera) TLStreamNodeMap() camera.NodeMap {
	m := &NodeMap{}
	m.err = Error(int(C.spinCameraGetTLStreamNodeMap(c.h, &m.h)))
	return m
}

// BeginAcquisition implements camera.Camera
func (c *Camera) BeginAcquisition() error {
	return Error(int(C.spinCameraBeginAcquisition(c.h)))
}

// EndAcquisition implements camera.Camera
func (c *Camera) EndAcquisition() error {
	return Error(int(C.spinCameraEndAcquisition(c.h)))
}

// NextImage implements camera.Camera
func (c *Camera) NextImage(timeout time.Duration) (camera.Image, error) {
	img := &Image{}
	ms := C.uint64_t(timeout / time.Millisecond)
	if err := Error(int(C.spinCameraGetNextImageEx(c.h, ms, 0, &img.h))); err != nil {
		return nil, err
	}
	return img, nil
}

// NodeMap wraps a spinNodeMapHandle.  If the handle could not be obtained
// every call fails with that error.
type NodeMap struct {
	h   C.spinNodeMapHandle
	err error
}

func (m *NodeMap) node(name string) (C.spinNodeHandle, error) {
	var h C.spinNodeHandle
	if m.err != nil {
		return h, m.err
	}
	cstr := C.CString(name)
	defer C.free(unsafe.Pointer(cstr))
	err := Error(int(C.spinNodeMapGetNode(m.h, cstr, &h)))
	return h, err
}

func access(h C.spinNodeHandle) camera.Access {
	var a camera.Access
	var b C.bool8_t
	if C.spinNodeIsAvailable(h, &b) != C.SPINNAKER_ERR_SUCCESS || !spinToBool(b) {
		return a
	}
	a |= camera.Available
	if C.spinNodeIsReadable(h, &b) == C.SPINNAKER_ERR_SUCCESS && spinToBool(b) {
		a |= camera.Readable
	}
	if C.spinNodeIsWritable(h, &b) == C.SPINNAKER_ERR_SUCCESS && spinToBool(b) {
		a |= camera.Writable
	}
	return a
}

// checked looks up a node and verifies it has want access
func (m *NodeMap) checked(name string, want camera.Access) (C.spinNodeHandle, error) {
	h, err := m.node(name)
	if err != nil {
		return h, &camera.NodeAccessError{Node: name, Want: want}
	}
	if have := access(h); !have.Has(want) {
		return h, &camera.NodeAccessError{Node: name, Want: want, Have: have}
	}
	return h, nil
}

// Kind implements camera.NodeMap
func (m *NodeMap) Kind(name string) camera.Kind {
	h, err := m.node(name)
	if err != nil {
		return camera.KindUnknown
	}
	var t C.spinNodeType
	if C.spinNodeGetType(h, &t) != C.SPINNAKER_ERR_SUCCESS {
		return camera.KindUnknown
	}
	switch t {
	case C.IntegerNode:
		return camera.KindInt
	case C.FloatNode:
		return camera.KindFloat
	case C.BooleanNode:
		return camera.KindBool
	case C.EnumerationNode:
		return camera.KindEnum
	case C.StringNode:
		return camera.KindString
	case C.CommandNode:
		return camera.KindCommand
	}
	return camera.KindUnknown
}

// Access implements camera.NodeMap
func (m *NodeMap) Access(name string) camera.Access {
	h, err := m.node(name)
	if err != nil {
		return 0
	}
	return access(h)
}

// GetInt implements camera.NodeMap
func (m *NodeMap) GetInt(name string) (int64, error) {
	h, err := m.checked(name, wantRead)
	if err != nil {
		return 0, err
	}
	var out C.int64_t
	errCode := int(C.spinIntegerGetValue(h, &out))
	return int64(out), Error(errCode)
}

// SetInt implements camera.NodeMap
func (m *NodeMap) SetInt(name string, v int64) error {
	h, err := m.checked(name, wantWrite)
	if err != nil {
		return err
	}
	return Error(int(C.spinIntegerSetValue(h, C.int64_t(v))))
}

// IntRange implements camera.NodeMap
func (m *NodeMap) IntRange(name string) (int64, int64, int64, error) {
	h, err := m.checked(name, wantRead)
	if err != nil {
		return 0, 0, 0, err
	}
	var min, max, inc C.int64_t
	if err = Error(int(C.spinIntegerGetMin(h, &min))); err != nil {
		return 0, 0, 0, err
	}
	if err = Error(int(C.spinIntegerGetMax(h, &max))); err != nil {
		return 0, 0, 0, err
	}
	if err = Error(int(C.spinIntegerGetInc(h, &inc))); err != nil {
		return 0, 0, 0, err
	}
	return int64(min), int64(max), int64(inc), nil
}

// GetFloat implements camera.NodeMap
func (m *NodeMap) GetFloat(name string) (float64, error) {
	h, err := m.checked(name, wantRead)
	if err != nil {
		return 0, err
	}
	var out C.double
	errCode := int(C.spinFloatGetValue(h, &out))
	return float64(out), Error(errCode)
}

// SetFloat implements camera.NodeMap
func (m *NodeMap) SetFloat(name string, v float64) error {
	h, err := m.checked(name, wantWrite)
	if err != nil {
		return err
	}
	return Error(int(C.spinFloatSetValue(h, C.double(v))))
}

// FloatRange implements camera.NodeMap
func (m *NodeMap) FloatRange(name string) (float64, float64, error) {
	h, err := m.checked(name, wantRead)
	if err != nil {
		return 0, 0, err
	}
	var min, max C.double
	if err = Error(int(C.spinFloatGetMin(h, &min))); err != nil {
		return 0, 0, err
	}
	if err = Error(int(C.spinFloatGetMax(h, &max))); err != nil {
		return 0, 0, err
	}
	return float64(min), float64(max), nil
}

// GetBool implements camera.NodeMap
func (m *NodeMap) GetBool(name string) (bool, error) {
	h, err := m.checked(name, wantRead)
	if err != nil {
		return false, err
	}
	var out C.bool8_t
	errCode := int(C.spinBooleanGetValue(h, &out))
	return spinToBool(out), Error(errCode)
}

// SetBool implements camera.NodeMap
func (m *NodeMap) SetBool(name string, v bool) error {
	h, err := m.checked(name, wantWrite)
	if err != nil {
		return err
	}
	return Error(int(C.spinBooleanSetValue(h, boolToSpin(v))))
}

func symbolic(entry C.spinNodeHandle) (string, error) {
	buf := (*C.char)(C.malloc(LengthOfUndefinedBuffers))
	defer C.free(unsafe.Pointer(buf))
	n := C.size_t(LengthOfUndefinedBuffers)
	if err := Error(int(C.spinEnumerationEntryGetSymbolic(entry, buf, &n))); err != nil {
		return "", err
	}
	return C.GoString(buf), nil
}

// GetEnum implements camera.NodeMap
func (m *NodeMap) GetEnum(name string) (string, error) {
	h, err := m.checked(name, wantRead)
	if err != nil {
		return "", err
	}
	var entry C.spinNodeHandle
	if err = Error(int(C.spinEnumerationGetCurrentEntry(h, &entry))); err != nil {
		return "", err
	}
	return symbolic(entry)
}

// SetEnum implements camera.NodeMap.  The entry is looked up by name and
// checked readable before its integer value is written to the node.
func (m *NodeMap) SetEnum(name, entry string) error {
	h, err := m.checked(name, wantWrite)
	if err != nil {
		return err
	}
	cstr := C.CString(entry)
	defer C.free(unsafe.Pointer(cstr))
	var eh C.spinNodeHandle
	if err = Error(int(C.spinEnumerationGetEntryByName(h, cstr, &eh))); err != nil {
		return &camera.NodeAccessError{Node: name, Entry: entry, Want: wantRead}
	}
	if have := access(eh); !have.Has(wantRead) {
		return &camera.NodeAccessError{Node: name, Entry: entry, Want: wantRead, Have: have}
	}
	var v C.int64_t
	if err = Error(int(C.spinEnumerationEntryGetIntValue(eh, &v))); err != nil {
		return err
	}
	return Error(int(C.spinEnumerationSetIntValue(h, v)))
}

// EnumEntries implements camera.NodeMap
func (m *NodeMap) EnumEntries(name string) ([]string, error) {
	h, err := m.checked(name, wantRead)
	if err != nil {
		return nil, err
	}
	var n C.size_t
	if err = Error(int(C.spinEnumerationGetNumEntries(h, &n))); err != nil {
		return nil, err
	}
	out := []string{}
	for i := C.size_t(0); i < n; i++ {
		var eh C.spinNodeHandle
		if C.spinEnumerationGetEntryByIndex(h, i, &eh) != C.SPINNAKER_ERR_SUCCESS {
			continue
		}
		if !access(eh).Has(wantRead) {
			continue
		}
		s, err := symbolic(eh)
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
	return out, nil
}

// EntryAccess implements camera.NodeMap
func (m *NodeMap) EntryAccess(name, entry string) camera.Access {
	h, err := m.node(name)
	if err != nil {
		return 0
	}
	cstr := C.CString(entry)
	defer C.free(unsafe.Pointer(cstr))
	var eh C.spinNodeHandle
	if C.spinEnumerationGetEntryByName(h, cstr, &eh) != C.SPINNAKER_ERR_SUCCESS {
		return 0
	}
	return access(eh)
}

// GetString implements camera.NodeMap
func (m *NodeMap) GetString(name string) (string, error) {
	h, err := m.checked(name, wantRead)
	if err != nil {
		return "", err
	}
	buf := (*C.char)(C.malloc(LengthOfUndefinedBuffers))
	defer C.free(unsafe.Pointer(buf))
	n := C.size_t(LengthOfUndefinedBuffers)
	if err = Error(int(C.spinStringGetValue(h, buf, &n))); err != nil {
		return "", err
	}
	return C.GoString(buf), nil
}

// Execute implements camera.NodeMap
func (m *NodeMap) Execute(name string) error {
	h, err := m.checked(name, wantWrite)
	if err != nil {
		return err
	}
	return Error(int(C.spinCommandExecute(h)))
}

// Image wraps a spinImage taken from the stream
type Image struct {
	h C.spinImage
}

// Incomplete implements camera.Image
func (i *Image) Incomplete() bool {
	var b C.bool8_t
	C.spinImageIsIncomplete(i.h, &b)
	return spinToBool(b)
}

// Status implements camera.Image
func (i *Image) Status() int {
	var s C.spinImageStatus
	C.spinImageGetStatus(i.h, &s)
	return int(s)
}

// Width implements camera.Image
func (i *Image) Width() int {
	var w C.size_t
	C.spinImageGetWidth(i.h, &w)
	return int(w)
}

// Height implements camera.Image
func (i *Image) Height() int {
	var h C.size_t
	C.spinImageGetHeight(i.h, &h)
	return int(h)
}

// PixelFormat implements camera.Image
func (i *Image) PixelFormat() string {
	buf := (*C.char)(C.malloc(LengthOfUndefinedBuffers))
	defer C.free(unsafe.Pointer(buf))
	n := C.size_t(LengthOfUndefinedBuffers)
	if C.spinImageGetPixelFormatName(i.h, buf, &n) != C.SPINNAKER_ERR_SUCCESS {
		return ""
	}
	return C.GoString(buf)
}

// Data implements camera.Image.  The slice aliases the SDK buffer and is
// invalid after Release.
func (i *Image) Data() []byte {
	var p unsafe.Pointer
	var n C.size_t
	if C.spinImageGetData(i.h, &p) != C.SPINNAKER_ERR_SUCCESS {
		return nil
	}
	if C.spinImageGetBufferSize(i.h, &n) != C.SPINNAKER_ERR_SUCCESS {
		return nil
	}
	return unsafe.Slice((*byte)(p), int(n))
}

// Chunks implements camera.Image
func (i *Image) Chunks() map[string]float64 {
	out := make(map[string]float64)
	for _, name := range chunkIntNames {
		cstr := C.CString("Chunk" + name)
		var v C.int64_t
		if C.spinImageChunkDataGetIntValue(i.h, cstr, &v) == C.SPINNAKER_ERR_SUCCESS {
			out[name] = float64(v)
		}
		C.free(unsafe.Pointer(cstr))
	}
	for _, name := range chunkFloatNames {
		cstr := C.CString("Chunk" + name)
		var v C.double
		if C.spinImageChunkDataGetFloatValue(i.h, cstr, &v) == C.SPINNAKER_ERR_SUCCESS {
			out[name] = float64(v)
		}
		C.free(unsafe.Pointer(cstr))
	}
	return out
}

// Release implements camera.Image
func (i *Image) Release() error {
	return Error(int(C.spinImageRelease(i.h)))
}
