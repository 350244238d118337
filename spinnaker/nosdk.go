//go:build !spinnaker

package spinnaker

import "github.com/magis-tdaq/camrig/camera"

// Open returns ErrNoSDK.  Rebuild with -tags spinnaker to link against
// libSpinnaker_C.
func Open() (camera.System, error) {
	return nil, ErrNoSDK
}
