/*Package camera describes a standard set of interfaces for control of
GenICam machine-vision cameras behind a vendor SDK

System is the process-wide handle to the device-enumeration subsystem.  It is
acquired once at startup, passed to every component that needs it, and
released exactly once at shutdown.

Every property of a device lives in a NodeMap and is addressed by name.  No
node is assumed to be present: Access reports whether it is available,
readable, and writable, and every getter or setter returns an error
(usually a *NodeAccessError) when it is not.

*/
package camera

import (
	"time"
)

// Version is the version of the vendor library
type Version struct {
	Major, Minor, Type, Build int
}

// System is the root handle of the vendor SDK
type System interface {
	// LibraryVersion returns the version of the loaded vendor library
	LibraryVersion() Version

	// Cameras enumerates the devices currently attached
	Cameras() (CameraList, error)

	// Release releases the system handle.  No other call may be made
	// on the System afterwards.
	Release() error
}

// CameraList is an ordered list of cameras produced by System.Cameras
type CameraList interface {
	// Len is the number of cameras in the list
	Len() int

	// At returns the camera at index i, 0 <= i < Len()
	At(i int) Camera

	// Clear releases every camera reference held by the list
	Clear() error
}

// Camera is a single device
type Camera interface {
	// Init connects to the device and populates its node maps
	Init() error

	// DeInit disconnects from the device
	DeInit() error

	// NodeMap is the GenICam node map of the device itself
	NodeMap() NodeMap

	// TLDeviceNodeMap is the transport layer device node map, which holds
	// information such as DeviceSerialNumber and is readable before Init
	TLDeviceNodeMap() NodeMap

	// TLStreamNodeMap is the transport layer stream node map, which holds
	// host side buffer handling settings
	TLStreamNodeMap() NodeMap

	// BeginAcquisition starts streaming into the device buffer
	BeginAcquisition() error

	// EndAcquisition stops streaming
	EndAcquisition() error

	// NextImage takes the next frame out of the device buffer, waiting at
	// most timeout for one to become available.  The returned Image must be
	// released exactly once.
	NextImage(timeout time.Duration) (Image, error)
}

// Image is a frame owned by software until it is released back to the
// device buffer
type Image interface {
	// Incomplete reports if the hardware marked the frame as incomplete
	Incomplete() bool

	// Status is the image status code reported by the hardware, 0 when complete
	Status() int

	// Width is the width of the frame in pixels
	Width() int

	// Height is the height of the frame in pixels
	Height() int

	// PixelFormat is the symbolic PixelFormat the frame was captured with,
	// e.g. Mono8 or Mono16
	PixelFormat() string

	// Data is the raw pixel buffer.  It is invalid after Release.
	Data() []byte

	// Chunks returns the chunk data embedded in the frame, keyed by the
	// chunk selector name (e.g. ExposureTime, Timestamp).  Chunks that
	// are not present are omitted.
	Chunks() map[string]float64

	// Release hands the buffer slot back to the device
	Release() error
}
