package spinnaker

import (
	"errors"
	"fmt"
)

// SpinError represents a spinError code returned by the C API
type SpinError int

const (
	// ErrGeneric is SPINNAKER_ERR_ERROR
	ErrGeneric SpinError = -1001
	// ErrNotInitialized is SPINNAKER_ERR_NOT_INITIALIZED
	ErrNotInitialized SpinError = -1002
	// ErrNotImplemented is SPINNAKER_ERR_NOT_IMPLEMENTED
	ErrNotImplemented SpinError = -1003
	// ErrResourceInUse is SPINNAKER_ERR_RESOURCE_IN_USE
	ErrResourceInUse SpinError = -1004
	// ErrAccessDenied is SPINNAKER_ERR_ACCESS_DENIED
	ErrAccessDenied SpinError = -1005
	// ErrInvalidHandle is SPINNAKER_ERR_INVALID_HANDLE
	ErrInvalidHandle SpinError = -1006
	// ErrNoData is SPINNAKER_ERR_NO_DATA
	ErrNoData SpinError = -1008
	// ErrInvalidParameter is SPINNAKER_ERR_INVALID_PARAMETER
	ErrInvalidParameter SpinError = -1009
	// ErrIO is SPINNAKER_ERR_IO
	ErrIO SpinError = -1010
	// ErrTimeout is SPINNAKER_ERR_TIMEOUT
	ErrTimeout SpinError = -1011
	// ErrAbort is SPINNAKER_ERR_ABORT
	ErrAbort SpinError = -1012
	// ErrInvalidBuffer is SPINNAKER_ERR_INVALID_BUFFER
	ErrInvalidBuffer SpinError = -1013
	// ErrNotAvailable is SPINNAKER_ERR_NOT_AVAILABLE
	ErrNotAvailable SpinError = -1014
	// ErrBufferTooSmall is SPINNAKER_ERR_BUFFER_TOO_SMALL
	ErrBufferTooSmall SpinError = -1016
	// ErrInvalidValue is SPINNAKER_ERR_INVALID_VALUE
	ErrInvalidValue SpinError = -1019
	// ErrOutOfRange is GENICAM_ERR_OUT_OF_RANGE
	ErrOutOfRange SpinError = -2002
	// ErrGenICamAccess is GENICAM_ERR_ACCESS
	ErrGenICamAccess SpinError = -2006
	// ErrGenICamTimeout is GENICAM_ERR_TIMEOUT
	ErrGenICamTimeout SpinError = -2007
)

var (
	// ErrNoSDK is returned by Open when the binary was built without the
	// spinnaker build tag
	ErrNoSDK = errors.New("built without Spinnaker SDK support, rebuild with -tags spinnaker or set Simulate")

	// ErrCodes is a map of error codes to the names used in SpinnakerC
	ErrCodes = map[SpinError]string{
		0:     "SPINNAKER_ERR_SUCCESS",
		-1001: "SPINNAKER_ERR_ERROR",
		-1002: "SPINNAKER_ERR_NOT_INITIALIZED",
		-1003: "SPINNAKER_ERR_NOT_IMPLEMENTED",
		-1004: "SPINNAKER_ERR_RESOURCE_IN_USE",
		-1005: "SPINNAKER_ERR_ACCESS_DENIED",
		-1006: "SPINNAKER_ERR_INVALID_HANDLE",
		-1007: "SPINNAKER_ERR_INVALID_ID",
		-1008: "SPINNAKER_ERR_NO_DATA",
		-1009: "SPINNAKER_ERR_INVALID_PARAMETER",
		-1010: "SPINNAKER_ERR_IO",
		-1011: "SPINNAKER_ERR_TIMEOUT",
		-1012: "SPINNAKER_ERR_ABORT",
		-1013: "SPINNAKER_ERR_INVALID_BUFFER",
		-1014: "SPINNAKER_ERR_NOT_AVAILABLE",
		-1015: "SPINNAKER_ERR_INVALID_ADDRESS",
		-1016: "SPINNAKER_ERR_BUFFER_TOO_SMALL",
		-1017: "SPINNAKER_ERR_INVALID_INDEX",
		-1018: "SPINNAKER_ERR_PARSING_CHUNK_DATA",
		-1019: "SPINNAKER_ERR_INVALID_VALUE",
		-1020: "SPINNAKER_ERR_RESOURCE_EXHAUSTED",
		-1021: "SPINNAKER_ERR_OUT_OF_MEMORY",
		-1022: "SPINNAKER_ERR_BUSY",

		-2001: "GENICAM_ERR_INVALID_ARGUMENT",
		-2002: "GENICAM_ERR_OUT_OF_RANGE",
		-2003: "GENICAM_ERR_PROPERTY",
		-2004: "GENICAM_ERR_RUN_TIME",
		-2005: "GENICAM_ERR_LOGICAL",
		-2006: "GENICAM_ERR_ACCESS",
		-2007: "GENICAM_ERR_TIMEOUT",
		-2008: "GENICAM_ERR_DYNAMIC_CAST",
		-2009: "GENICAM_ERR_GENERIC",
		-2010: "GENICAM_ERR_BAD_ALLOCATION",
	}

	// ImageStatusCodes maps the spinImageStatus values reported for
	// incomplete frames to their names
	ImageStatusCodes = map[int]string{
		0:  "IMAGE_NO_ERROR",
		1:  "IMAGE_CRC_CHECK_FAILED",
		2:  "IMAGE_DATA_OVERFLOW",
		3:  "IMAGE_MISSING_PACKETS",
		4:  "IMAGE_LEADER_BUFFER_SIZE_INCONSISTENT",
		5:  "IMAGE_TRAILER_BUFFER_SIZE_INCONSISTENT",
		6:  "IMAGE_PACKETID_INCONSISTENT",
		7:  "IMAGE_MISSING_LEADER",
		8:  "IMAGE_MISSING_TRAILER",
		9:  "IMAGE_DATA_INCOMPLETE",
		10: "IMAGE_INFO_INCONSISTENT",
		11: "IMAGE_CHUNK_DATA_INVALID",
		12: "IMAGE_NO_SYSTEM_RESOURCES",
	}
)

func (e SpinError) Error() string {
	if s, ok := ErrCodes[e]; ok {
		return fmt.Sprintf("%d - %s", int(e), s)
	}
	return fmt.Sprintf("%d - UNKNOWN_ERROR_CODE", int(e))
}

// Error returns nil on the success code or a SpinError otherwise
func Error(code int) error {
	if code == 0 {
		return nil
	}
	return SpinError(code)
}

// IsTimeout reports if err is, or wraps, one of the SDK timeout codes
func IsTimeout(err error) bool {
	var se SpinError
	if errors.As(err, &se) {
		return se == ErrTimeout || se == ErrGenICamTimeout
	}
	return false
}

// ImageStatusName returns the name of an image status code
func ImageStatusName(status int) string {
	if s, ok := ImageStatusCodes[status]; ok {
		return s
	}
	return fmt.Sprintf("IMAGE_STATUS_%d", status)
}
