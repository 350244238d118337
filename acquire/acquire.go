/*Package acquire runs trigger-driven acquisition on a set of cameras.

Setup checks the output folder, discovers the cameras, configures their
triggers and starts streaming.  A Loop then waits for a trigger and drains
one frame from every camera per iteration until it is stopped by an error,
the deadline, or cancellation.  The Rig is torn down exactly once when the
loop stops.

*/
package acquire

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"

	"github.com/magis-tdaq/camrig/camera"
	"github.com/magis-tdaq/camrig/config"
	"github.com/magis-tdaq/camrig/imgrec"
	"github.com/magis-tdaq/camrig/trigger"
)

// ErrNoCameras is returned when enumeration found no camera before the
// discovery timeout
var ErrNoCameras = errors.New("no cameras detected")

// Discover enumerates the cameras of sys, retrying with exponential backoff
// while the list is empty, for at most timeout.  A zero timeout makes a
// single attempt.  Enumeration failures are not retried.
func Discover(ctx context.Context, sys camera.System, timeout time.Duration) (camera.CameraList, error) {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if timeout > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 50 * time.Millisecond
		eb.MaxInterval = time.Second
		eb.MaxElapsedTime = timeout
		b = eb
	}
	var list camera.CameraList
	op := func() error {
		l, err := sys.Cameras()
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "enumerating cameras"))
		}
		if l.Len() == 0 {
			l.Clear()
			return ErrNoCameras
		}
		list = l
		return nil
	}
	notify := func(err error, d time.Duration) {
		log.Printf("%s, retrying in %s\n", err, d)
	}
	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if err != nil {
		return nil, err
	}
	log.Printf("number of cameras detected: %d\n", list.Len())
	return list, nil
}

// Rig is the set of cameras an acquisition runs on, and the handles that
// own them
type Rig struct {
	System  camera.System
	List    camera.CameraList
	Cameras []camera.Camera

	torn bool
}

// Teardown ends acquisition on and deinitializes every camera, clears the
// camera list, and releases the system.  Errors are logged and never stop
// the remaining steps; the first is returned.  Calls after the first do
// nothing.
func (r *Rig) Teardown() error {
	if r.torn {
		return nil
	}
	r.torn = true
	var first error
	keep := func(err error, what string) {
		if err == nil {
			return
		}
		log.Printf("%s failed: %s\n", what, err)
		if first == nil {
			first = errors.Wrap(err, what)
		}
	}
	for i, cam := range r.Cameras {
		keep(cam.EndAcquisition(), "ending acquisition on camera "+Serial(cam))
		keep(cam.DeInit(), "deinitializing camera "+Serial(cam))
		r.Cameras[i] = nil
	}
	r.Cameras = nil
	if r.List != nil {
		keep(r.List.Clear(), "clearing the camera list")
	}
	if r.System != nil {
		keep(r.System.Release(), "releasing the system")
	}
	return first
}

// TornDown reports if Teardown has run
func (r *Rig) TornDown() bool {
	return r.torn
}

// Setup prepares sys for an acquisition run: the output folder must be
// writable, at least one camera must be found, and every camera is
// initialized and has its trigger configured before any starts streaming.
// On failure every camera touched is deinitialized and the list cleared;
// the system is left for the caller to release.
func Setup(ctx context.Context, sys camera.System, cfg config.RunConfig) (*Rig, error) {
	if err := imgrec.CheckWritable(cfg.OutputDir); err != nil {
		return nil, err
	}
	list, err := Discover(ctx, sys, time.Duration(cfg.DiscoveryTimeout)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	cams := make([]camera.Camera, list.Len())
	for i := range cams {
		cams[i] = list.At(i)
	}

	fail := func(inited []camera.Camera, begun []camera.Camera, err error) (*Rig, error) {
		undo := func(uerr error, what string) {
			if uerr != nil {
				log.Printf("%s failed: %s\n", what, uerr)
			}
		}
		for _, cam := range begun {
			undo(cam.EndAcquisition(), "ending acquisition on camera "+Serial(cam))
		}
		for _, cam := range inited {
			undo(cam.DeInit(), "deinitializing camera "+Serial(cam))
		}
		undo(list.Clear(), "clearing the camera list")
		return nil, err
	}

	for i, cam := range cams {
		if err := cam.Init(); err != nil {
			return fail(cams[:i], nil, errors.Wrapf(err, "initializing camera %d", i))
		}
		log.Printf("configuring trigger of camera %d (%s)\n", i, Serial(cam))
		if err := trigger.Configure(cam.NodeMap(), cfg); err != nil {
			return fail(cams[:i+1], nil, errors.Wrapf(err, "configuring trigger of camera %s", Serial(cam)))
		}
	}
	for i, cam := range cams {
		if err := cam.BeginAcquisition(); err != nil {
			return fail(cams, cams[:i], errors.Wrapf(err, "starting acquisition on camera %s", Serial(cam)))
		}
		log.Printf("acquiring images from camera %s\n", Serial(cam))
	}
	return &Rig{System: sys, List: list, Cameras: cams}, nil
}
