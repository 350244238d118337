package spinnaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/magis-tdaq/camrig/camera"
)

const (
	// MockSensorWidth is the default sensor width of a simulated camera
	MockSensorWidth = 1440

	// MockSensorHeight is the default sensor height of a simulated camera
	MockSensorHeight = 1080

	mockWidthInc  = 16
	mockHeightInc = 2
	mockOffsetInc = 4

	// StatusMissingPackets is the image status injected by default for
	// incomplete frames
	StatusMissingPackets = 3
)

var (
	// MockVersion is the library version reported by a MockSystem
	MockVersion = camera.Version{Major: 2, Minor: 7, Type: 0, Build: 128}

	chunkSelectors = []string{
		"Image", "CRC", "FrameID", "OffsetX", "OffsetY", "Width", "Height",
		"ExposureTime", "Gain", "BlackLevel", "PixelFormat", "Timestamp"}

	// chunks without a numeric value are not reported by Image.Chunks
	nonNumericChunks = map[string]bool{"Image": true, "CRC": true, "PixelFormat": true}
)

// MockStats are the call counters of a MockCamera
type MockStats struct {
	Inits, DeInits     int
	Begins, Ends       int
	Acquired, Released int
	SoftwareTriggers   int
	LinePulses         int
	Dropped            int
}

// MockCameraConfig holds the initial state of a simulated camera
type MockCameraConfig struct {
	// Serial is the DeviceSerialNumber
	Serial string

	// Model is the DeviceModelName, defaults to "Blackfly S BFS-U3-16S2M"
	Model string

	// Width and Height are the initial ROI, default to the full sensor
	Width, Height int

	// PixelFormat is the initial pixel format, defaults to Mono8
	PixelFormat string

	// FreeRun makes every frame request succeed with a fresh complete frame,
	// as if a trigger had arrived just before it
	FreeRun bool
}

// MockCamera is a simulated camera.  Triggers (software, line pulses, or
// FreeRun) queue frames into a bounded FIFO which NextImage drains according
// to StreamBufferHandlingMode.
type MockCamera struct {
	sync.Mutex

	cfg MockCameraConfig

	dev, tlDev, tlStream *MockNodeMap

	initialized bool
	acquiring   bool
	initTime    time.Time

	fifo    []*mockImage
	frameID int64

	injectedErrs   []error
	injectedStatus []int

	chunkEnabled map[string]bool
	lut          []int64
	userSets     map[string]map[string]interface{}

	stats MockStats
}

// NewMockCamera returns a simulated camera with the node table of a
// Blackfly S
func NewMockCamera(cfg MockCameraConfig) *MockCamera {
	if cfg.Model == "" {
		cfg.Model = "Blackfly S BFS-U3-16S2M"
	}
	if cfg.Width == 0 {
		cfg.Width = MockSensorWidth
	}
	if cfg.Height == 0 {
		cfg.Height = MockSensorHeight
	}
	if cfg.PixelFormat == "" {
		cfg.PixelFormat = "Mono8"
	}
	c := &MockCamera{
		cfg:          cfg,
		chunkEnabled: map[string]bool{"Image": true},
		lut:          make([]int64, 512),
		userSets:     make(map[string]map[string]interface{}),
	}
	for i := range c.lut {
		c.lut[i] = int64(i * 8)
	}
	c.dev = newMockNodeMap(&c.Mutex)
	c.dev.ready = func() bool { return c.initialized }
	c.tlDev = newMockNodeMap(&c.Mutex)
	c.tlStream = newMockNodeMap(&c.Mutex)
	c.populate()
	return c
}

func (c *MockCamera) populate() {
	ro := camera.Available | camera.Readable
	rw := camera.ReadWrite

	td := c.tlDev
	td.addString("DeviceSerialNumber", c.cfg.Serial, ro)
	td.addString("DeviceModelName", c.cfg.Model, ro)
	td.addString("DeviceVendorName", "FLIR", ro)

	ts := c.tlStream
	ts.addEnum("StreamBufferHandlingMode", "OldestFirst",
		[]string{"OldestFirst", "OldestFirstOverwrite", "NewestOnly", "NewestFirst"}, rw)
	ts.addInt("StreamBufferCountManual", 10, 1, 100, 1, rw)

	d := c.dev
	d.addString("DeviceSerialNumber", c.cfg.Serial, ro)
	d.addString("DeviceModelName", c.cfg.Model, ro)

	// while streaming the image format cannot change
	idle := func() camera.Access {
		if c.acquiring {
			return ro
		}
		return rw
	}

	d.addEnum("AcquisitionMode", "Continuous", []string{"Continuous", "SingleFrame", "MultiFrame"}, rw)

	expAuto := d.addEnum("ExposureAuto", "Continuous", []string{"Off", "Once", "Continuous"}, rw)
	d.addFloat("ExposureTime", 10000, 6, 30000000, rw).accessFn = func() camera.Access {
		if expAuto.s == "Off" {
			return rw
		}
		return ro
	}
	gainAuto := d.addEnum("GainAuto", "Continuous", []string{"Off", "Once", "Continuous"}, rw)
	d.addFloat("Gain", 0, 0, 47.99, rw).accessFn = func() camera.Access {
		if gainAuto.s == "Off" {
			return rw
		}
		return ro
	}
	d.addFloat("BlackLevel", 1.37, 0, 31.25, rw)

	d.addEnum("PixelFormat", c.cfg.PixelFormat, []string{"Mono8", "Mono16", "BayerRG8", "BayerRG16"}, rw).accessFn = idle
	d.addInt("SensorWidth", MockSensorWidth, MockSensorWidth, MockSensorWidth, 1, ro)
	d.addInt("SensorHeight", MockSensorHeight, MockSensorHeight, MockSensorHeight, 1, ro)
	d.addInt("Width", int64(c.cfg.Width), mockWidthInc, MockSensorWidth, mockWidthInc, rw).accessFn = idle
	d.addInt("Height", int64(c.cfg.Height), mockHeightInc, MockSensorHeight, mockHeightInc, rw).accessFn = idle
	d.addInt("OffsetX", 0, 0, MockSensorWidth-mockWidthInc, mockOffsetInc, rw).accessFn = idle
	d.addInt("OffsetY", 0, 0, MockSensorHeight-mockHeightInc, mockHeightInc, rw).accessFn = idle
	d.addEnum("AdcBitDepth", "Bit10", []string{"Bit8", "Bit10", "Bit12"}, rw).accessFn = idle
	d.addEnum("SensorShutterMode", "Global", []string{"Global", "Rolling", "GlobalReset"}, rw).accessFn = idle

	// trigger block, the routing nodes are locked while TriggerMode is On
	mode := d.addEnum("TriggerMode", "Off", []string{"Off", "On"}, rw)
	routing := func() camera.Access {
		if mode.s == "Off" {
			return rw
		}
		return ro
	}
	d.addEnum("TriggerSelector", "FrameStart", []string{"FrameStart", "FrameBurstStart"}, rw).accessFn = routing
	src := d.addEnum("TriggerSource", "Software", []string{"Software", "Line0", "Line1", "Line2", "Line3"}, rw)
	src.accessFn = routing
	d.addEnum("TriggerActivation", "RisingEdge",
		[]string{"RisingEdge", "FallingEdge", "AnyEdge", "LevelHigh", "LevelLow"}, rw).accessFn = routing
	d.addEnum("TriggerOverlap", "Off", []string{"Off", "ReadOut"}, rw)
	d.addFloat("TriggerDelay", 177, 177, 65520, rw)
	d.addCommand("TriggerSoftware", func() error {
		c.stats.SoftwareTriggers++
		c.trigger("Software")
		return nil
	}).accessFn = func() camera.Access {
		if src.s == "Software" {
			return camera.Available | camera.Writable
		}
		return camera.Available
	}

	// chunk data
	active := d.addBool("ChunkModeActive", false, rw)
	csel := d.addEnum("ChunkSelector", "Image", chunkSelectors, rw)
	ce := d.addBool("ChunkEnable", true, rw)
	ce.getBool = func() bool { return c.chunkEnabled[csel.s] }
	ce.setBool = func(b bool) { c.chunkEnabled[csel.s] = b }
	ce.accessFn = func() camera.Access {
		if csel.s == "Image" || !active.b {
			return ro
		}
		return rw
	}

	// lookup table
	d.addEnum("LUTSelector", "LUT1", []string{"LUT1"}, rw)
	d.addBool("LUTEnable", false, rw)
	idx := d.addInt("LUTIndex", 0, 0, int64(len(c.lut)-1), 1, rw)
	lv := d.addInt("LUTValue", 0, 0, 4095, 1, rw)
	lv.getInt = func() int64 { return c.lut[idx.i] }
	lv.setInt = func(v int64) { c.lut[idx.i] = v }

	// user sets
	usel := d.addEnum("UserSetSelector", "Default", []string{"Default", "UserSet0", "UserSet1"}, rw)
	d.addEnum("UserSetDefault", "Default", []string{"Default", "UserSet0", "UserSet1"}, rw)
	d.addCommand("UserSetSave", func() error {
		if usel.s == "Default" {
			return ErrAccessDenied
		}
		snap := make(map[string]interface{})
		for name, n := range d.nodes {
			if v := n.value(); v != nil && n.acc().Has(rw) {
				snap[name] = v
			}
		}
		c.userSets[usel.s] = snap
		return nil
	})
	d.addCommand("UserSetLoad", func() error {
		snap, ok := c.userSets[usel.s]
		if !ok {
			return ErrNoData
		}
		for name, v := range snap {
			n, ok := d.nodes[name]
			if !ok {
				continue
			}
			switch x := v.(type) {
			case int64:
				n.i = x
			case float64:
				n.f = x
			case bool:
				n.b = x
			case string:
				n.s = x
			}
		}
		return nil
	})
}

// trigger queues one frame if the camera is armed for source.  The caller
// must hold the lock.
func (c *MockCamera) trigger(source string) {
	if !c.acquiring {
		return
	}
	d := c.dev.nodes
	if d["TriggerMode"].s != "On" || d["TriggerSource"].s != source {
		return
	}
	c.enqueue(c.expose())
}

func (c *MockCamera) enqueue(img *mockImage) {
	capacity := int(c.tlStream.nodes["StreamBufferCountManual"].i)
	mode := c.tlStream.nodes["StreamBufferHandlingMode"].s
	if mode == "NewestOnly" {
		capacity = 1
	}
	if len(c.fifo) < capacity {
		c.fifo = append(c.fifo, img)
		return
	}
	c.stats.Dropped++
	switch mode {
	case "OldestFirst":
		// the new frame is lost
	default:
		c.fifo = append(c.fifo[1:], img)
	}
}

// expose synthesizes a frame from the current node values.  The caller must
// hold the lock.
func (c *MockCamera) expose() *mockImage {
	d := c.dev.nodes
	c.frameID++
	w, h := int(d["Width"].i), int(d["Height"].i)
	pf := d["PixelFormat"].s
	img := &mockImage{
		cam:         c,
		width:       w,
		height:      h,
		pixelFormat: pf,
		chunks:      make(map[string]float64),
	}
	if len(c.injectedStatus) > 0 {
		img.status = c.injectedStatus[0]
		c.injectedStatus = c.injectedStatus[1:]
	}

	wide := pf == "Mono16" || pf == "BayerRG16"
	bpp := 1
	if wide {
		bpp = 2
	}
	img.data = make([]byte, w*h*bpp)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := (x + y + int(c.frameID)) % 256
			i := (y*w + x) * bpp
			if wide {
				v16 := uint16(v) << 8
				img.data[i] = byte(v16)
				img.data[i+1] = byte(v16 >> 8)
			} else {
				img.data[i] = byte(v)
			}
		}
	}

	if d["ChunkModeActive"].b {
		vals := map[string]float64{
			"FrameID":      float64(c.frameID),
			"OffsetX":      float64(d["OffsetX"].i),
			"OffsetY":      float64(d["OffsetY"].i),
			"Width":        float64(w),
			"Height":       float64(h),
			"ExposureTime": d["ExposureTime"].f,
			"Gain":         d["Gain"].f,
			"BlackLevel":   d["BlackLevel"].f,
			"Timestamp":    float64(time.Since(c.initTime).Nanoseconds()),
		}
		for k, v := range vals {
			if c.chunkEnabled[k] && !nonNumericChunks[k] {
				img.chunks[k] = v
			}
		}
	}
	return img
}

// Pulse emulates an electrical edge on a GPIO line of the camera, e.g. Line3
func (c *MockCamera) Pulse(line string) {
	c.Lock()
	defer c.Unlock()
	c.stats.LinePulses++
	c.trigger(line)
}

// InjectError causes the next frame request to fail with err
func (c *MockCamera) InjectError(err error) {
	c.Lock()
	defer c.Unlock()
	c.injectedErrs = append(c.injectedErrs, err)
}

// InjectIncomplete marks the next exposed frame incomplete with status
func (c *MockCamera) InjectIncomplete(status int) {
	c.Lock()
	defer c.Unlock()
	c.injectedStatus = append(c.injectedStatus, status)
}

// Stats returns a copy of the call counters
func (c *MockCamera) Stats() MockStats {
	c.Lock()
	defer c.Unlock()
	return c.stats
}

// Queued is the number of frames waiting in the FIFO
func (c *MockCamera) Queued() int {
	c.Lock()
	defer c.Unlock()
	return len(c.fifo)
}

// Acquiring reports if the camera is streaming
func (c *MockCamera) Acquiring() bool {
	c.Lock()
	defer c.Unlock()
	return c.acquiring
}

// Initialized reports if Init has been called without a matching DeInit
func (c *MockCamera) Initialized() bool {
	c.Lock()
	defer c.Unlock()
	return c.initialized
}

// UserSet returns the node values saved in the named user set, nil if it
// was never saved
func (c *MockCamera) UserSet(name string) map[string]interface{} {
	c.Lock()
	defer c.Unlock()
	return c.userSets[name]
}

// LUT returns a copy of the lookup table
func (c *MockCamera) LUT() []int64 {
	c.Lock()
	defer c.Unlock()
	out := make([]int64, len(c.lut))
	copy(out, c.lut)
	return out
}

// Nodes is the device node map with its mock-only controls exposed
func (c *MockCamera) Nodes() *MockNodeMap {
	return c.dev
}

// StreamNodes is the transport layer stream node map with its mock-only
// controls exposed
func (c *MockCamera) StreamNodes() *MockNodeMap {
	return c.tlStream
}

// Init implements camera.Camera
func (c *MockCamera) Init() error {
	c.Lock()
	defer c.Unlock()
	c.stats.Inits++
	if !c.initialized {
		c.initialized = true
		c.initTime = time.Now()
	}
	return nil
}

// DeInit implements camera.Camera.  A streaming camera is stopped first.
func (c *MockCamera) DeInit() error {
	c.Lock()
	defer c.Unlock()
	c.stats.DeInits++
	if !c.initialized {
		return ErrNotInitialized
	}
	c.acquiring = false
	c.fifo = nil
	c.initialized = false
	return nil
}

// NodeMap implements camera.Camera
func (c *MockCamera) NodeMap() camera.NodeMap { return c.dev }

// TLDeviceNodeMap implements camera.Camera
func (c *MockCamera) TLDeviceNodeMap() camera.NodeMap { return c.tlDev }

// TLStreamNodeMap implements camera.Camera
func (c *MockCamera) TLStreamNodeMap() camera.NodeMap { return c.tlStream }

// BeginAcquisition implements camera.Camera
func (c *MockCamera) BeginAcquisition() error {
	c.Lock()
	defer c.Unlock()
	c.stats.Begins++
	if !c.initialized {
		return ErrNotInitialized
	}
	if c.acquiring {
		return ErrResourceInUse
	}
	c.acquiring = true
	return nil
}

// EndAcquisition implements camera.Camera
func (c *MockCamera) EndAcquisition() error {
	c.Lock()
	defer c.Unlock()
	c.stats.Ends++
	if !c.initialized {
		return ErrNotInitialized
	}
	if !c.acquiring {
		return ErrGeneric
	}
	c.acquiring = false
	c.fifo = nil
	return nil
}

// NextImage implements camera.Camera.  With an empty FIFO it waits up to
// timeout for a trigger, then fails with ErrTimeout.
func (c *MockCamera) NextImage(timeout time.Duration) (camera.Image, error) {
	deadline := time.Now().Add(timeout)
	for {
		c.Lock()
		img, done, err := c.next()
		c.Unlock()
		if done {
			if err != nil {
				return nil, err
			}
			return img, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// next pops a frame or an error.  done is false when the FIFO is empty.
// The caller must hold the lock.
func (c *MockCamera) next() (*mockImage, bool, error) {
	if !c.initialized {
		return nil, true, ErrNotInitialized
	}
	if !c.acquiring {
		return nil, true, ErrNotAvailable
	}
	if len(c.injectedErrs) > 0 {
		err := c.injectedErrs[0]
		c.injectedErrs = c.injectedErrs[1:]
		return nil, true, err
	}
	if c.cfg.FreeRun && len(c.fifo) == 0 {
		c.enqueue(c.expose())
	}
	if len(c.fifo) == 0 {
		return nil, false, nil
	}
	var img *mockImage
	if c.tlStream.nodes["StreamBufferHandlingMode"].s == "NewestFirst" {
		last := len(c.fifo) - 1
		img = c.fifo[last]
		c.fifo = c.fifo[:last]
	} else {
		img = c.fifo[0]
		c.fifo = c.fifo[1:]
	}
	c.stats.Acquired++
	return img, true, nil
}

type mockImage struct {
	cam         *MockCamera
	width       int
	height      int
	pixelFormat string
	status      int
	data        []byte
	chunks      map[string]float64
	released    bool
}

func (i *mockImage) Incomplete() bool    { return i.status != 0 }
func (i *mockImage) Status() int         { return i.status }
func (i *mockImage) Width() int          { return i.width }
func (i *mockImage) Height() int         { return i.height }
func (i *mockImage) PixelFormat() string { return i.pixelFormat }
func (i *mockImage) Data() []byte        { return i.data }

func (i *mockImage) Chunks() map[string]float64 {
	out := make(map[string]float64, len(i.chunks))
	for k, v := range i.chunks {
		out[k] = v
	}
	return out
}

func (i *mockImage) Release() error {
	i.cam.Lock()
	defer i.cam.Unlock()
	if i.released {
		return ErrInvalidBuffer
	}
	i.released = true
	i.data = nil
	i.cam.stats.Released++
	return nil
}

// MockSystem is a simulated camera system holding a fixed set of cameras
type MockSystem struct {
	sync.Mutex

	cams []*MockCamera

	released          bool
	releases          int
	clears            int
	enumerations      int
	emptyEnumerations int
}

// NewMockSystem returns a system which enumerates cams
func NewMockSystem(cams ...*MockCamera) *MockSystem {
	return &MockSystem{cams: cams}
}

// NewSimulatedSystem returns a system of n free-running cameras with
// serials 19000000, 19000001, ...
func NewSimulatedSystem(n int) *MockSystem {
	cams := make([]*MockCamera, n)
	for i := 0; i < n; i++ {
		cams[i] = NewMockCamera(MockCameraConfig{
			Serial:  fmt.Sprintf("%d", 19000000+i),
			FreeRun: true,
		})
	}
	return NewMockSystem(cams...)
}

// DelayEnumeration makes the next n enumerations report no cameras, as when
// devices are still booting on the bus
func (s *MockSystem) DelayEnumeration(n int) {
	s.Lock()
	defer s.Unlock()
	s.emptyEnumerations = n
}

// Releases is the number of times Release was called
func (s *MockSystem) Releases() int {
	s.Lock()
	defer s.Unlock()
	return s.releases
}

// Clears is the number of times a camera list of this system was cleared
func (s *MockSystem) Clears() int {
	s.Lock()
	defer s.Unlock()
	return s.clears
}

// Enumerations is the number of times Cameras was called
func (s *MockSystem) Enumerations() int {
	s.Lock()
	defer s.Unlock()
	return s.enumerations
}

// LibraryVersion implements camera.System
func (s *MockSystem) LibraryVersion() camera.Version {
	return MockVersion
}

// Cameras implements camera.System
func (s *MockSystem) Cameras() (camera.CameraList, error) {
	s.Lock()
	defer s.Unlock()
	s.enumerations++
	if s.released {
		return nil, ErrInvalidHandle
	}
	if s.emptyEnumerations > 0 {
		s.emptyEnumerations--
		return &mockList{sys: s}, nil
	}
	cams := make([]*MockCamera, len(s.cams))
	copy(cams, s.cams)
	return &mockList{sys: s, cams: cams}, nil
}

// Release implements camera.System
func (s *MockSystem) Release() error {
	s.Lock()
	defer s.Unlock()
	s.releases++
	if s.released {
		return ErrInvalidHandle
	}
	s.released = true
	return nil
}

type mockList struct {
	sys  *MockSystem
	cams []*MockCamera
}

func (l *mockList) Len() int { return len(l.cams) }

func (l *mockList) At(i int) camera.Camera { return l.cams[i] }

func (l *mockList) Clear() error {
	l.sys.Lock()
	defer l.sys.Unlock()
	l.sys.clears++
	l.cams = nil
	return nil
}
