// Package camera provides a generic HTTP interface to a GenICam camera:
// acquisition control, exposure time, and frame grabs
package camera

import (
	"encoding/json"
	"go/types"
	"image/jpeg"
	"image/png"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/astrogo/fitsio"

	"github.com/magis-tdaq/camrig/camera"
	"github.com/magis-tdaq/camrig/generichttp"
	"github.com/magis-tdaq/camrig/genicam"
	"github.com/magis-tdaq/camrig/imgrec"
	"github.com/magis-tdaq/camrig/improc"
	"github.com/magis-tdaq/camrig/server"
)

// defaultGrabTimeout bounds a frame grab when the request does not
const defaultGrabTimeout = time.Second

// HTTPCamera wraps a camera in an HTTP interface
type HTTPCamera struct {
	mu        sync.Mutex
	cam       camera.Camera
	rec       *imgrec.Recorder
	acquiring bool
	rt        generichttp.RouteTable

	// OnAcquire is called after acquisition is started or stopped over HTTP
	OnAcquire func(bool)
}

// NewHTTPCamera returns a new HTTP wrapper around an initialized camera.
// rec may be nil, in which case frames are only returned to the client.
func NewHTTPCamera(cam camera.Camera, rec *imgrec.Recorder) *HTTPCamera {
	h := &HTTPCamera{cam: cam, rec: rec}
	h.rt = generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/acquisition"}:    h.GetAcquisition,
		{Method: http.MethodPost, Path: "/acquisition"}:   h.SetAcquisition,
		{Method: http.MethodGet, Path: "/exposure-time"}:  h.GetExposureTime,
		{Method: http.MethodPost, Path: "/exposure-time"}: h.SetExposureTime,
		{Method: http.MethodGet, Path: "/frame"}:          h.GetFrame,
	}
	if rec != nil {
		imgrec.NewHTTPWrapper(rec).Inject(h)
		h.rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/files/{file}"}] = server.Files(func() string {
			rec.Lock()
			defer rec.Unlock()
			return rec.Root
		})
	}
	return h
}

// RT satisfies generichttp.HTTPer
func (h *HTTPCamera) RT() generichttp.RouteTable {
	return h.rt
}

// Acquiring reports if acquisition was started over HTTP
func (h *HTTPCamera) Acquiring() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.acquiring
}

// Stop ends acquisition if it was started, for use at shutdown
func (h *HTTPCamera) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.acquiring {
		return nil
	}
	h.acquiring = false
	return h.cam.EndAcquisition()
}

// GetAcquisition returns {"bool": acquiring}
func (h *HTTPCamera) GetAcquisition(w http.ResponseWriter, r *http.Request) {
	hp := generichttp.HumanPayload{T: types.Bool, Bool: h.Acquiring()}
	hp.EncodeAndRespond(w, r)
}

// SetAcquisition begins or ends acquisition based on json:bool on the request body
func (h *HTTPCamera) SetAcquisition(w http.ResponseWriter, r *http.Request) {
	b := generichttp.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&b)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	if b.Bool != h.acquiring {
		if b.Bool {
			err = h.cam.BeginAcquisition()
		} else {
			err = h.cam.EndAcquisition()
		}
		if err == nil {
			h.acquiring = b.Bool
		}
	}
	h.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if h.OnAcquire != nil {
		h.OnAcquire(b.Bool)
	}
	w.WriteHeader(http.StatusOK)
}

// SetExposureTime sets the exposure time on a POST request.
// it can be provided either as a query parameter exposureTime, formatted in a
// way that is parseable by golang/time.ParseDuration, or a json payload with
// key f64, holding the exposure time in seconds.  Automatic exposure is
// turned off.
func (h *HTTPCamera) SetExposureTime(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	texp := q.Get("exposureTime")
	var d time.Duration
	var err error
	if texp == "" {
		f := generichttp.FloatT{}
		err = json.NewDecoder(r.Body).Decode(&f)
		d = time.Duration(f.F64 * 1e9) // s => ns
	} else {
		d, err = time.ParseDuration(texp)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	nm := h.cam.NodeMap()
	h.mu.Lock()
	defer h.mu.Unlock()
	if nm.Access("ExposureAuto").Has(genicam.WriteOnly) {
		if err = genicam.SetEnum(nm, "ExposureAuto", "Off"); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	us := float64(d) / float64(time.Microsecond)
	if _, err = genicam.SetFloatClamped(nm, "ExposureTime", us); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetExposureTime gets the exposure time in seconds on a GET request
func (h *HTTPCamera) GetExposureTime(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	v, err := genicam.Get(h.cam.NodeMap(), "ExposureTime")
	h.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	us, _ := v.(float64)
	hp := generichttp.HumanPayload{T: types.Float64, Float: us / 1e6}
	hp.EncodeAndRespond(w, r)
}

// softwareTriggered reports if the camera waits for TriggerSoftware
func softwareTriggered(nm camera.NodeMap) bool {
	mode, err := genicam.GetEnum(nm, "TriggerMode")
	if err != nil || mode != "On" {
		return false
	}
	src, err := genicam.GetEnum(nm, "TriggerSource")
	return err == nil && src == "Software"
}

// GetFrame takes a picture and returns it on a GET request.
//
// the image format may be specified in the query parameter fmt, jpg, png,
// or fits; default to jpg.  the wait for the frame may be given in the
// query parameter timeout, in any format accepted by time.ParseDuration.
//
// acquisition must have been started.  if the camera is software
// triggered, a software trigger is sent first.  if the recorder is enabled,
// the frame is also written to disk.
func (h *HTTPCamera) GetFrame(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := q.Get("fmt")
	switch format {
	case "":
		format = "jpg"
	case "jpg", "png", "fits":
	default:
		http.Error(w, "fmt must be jpg, png, or fits", http.StatusBadRequest)
		return
	}
	timeout := defaultGrabTimeout
	if s := q.Get("timeout"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		timeout = d
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.acquiring {
		http.Error(w, "acquisition is not running", http.StatusConflict)
		return
	}
	nm := h.cam.NodeMap()
	if softwareTriggered(nm) {
		if err := genicam.Execute(nm, "TriggerSoftware"); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	img, err := h.cam.NextImage(timeout)
	if err != nil {
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}
	defer img.Release()
	if img.Incomplete() {
		http.Error(w, "frame incomplete", http.StatusInternalServerError)
		return
	}
	frame := imgrec.Frame{
		Serial:      serialOf(h.cam),
		Width:       img.Width(),
		Height:      img.Height(),
		PixelFormat: img.PixelFormat(),
		Data:        img.Data(),
		Chunks:      img.Chunks(),
	}
	if h.recording() {
		frame.Seq = h.rec.Incr(frame.Serial)
		if path, err := h.rec.Save(frame); err != nil {
			log.Printf("saving frame to %s failed: %s\n", path, err)
		}
	}

	switch format {
	case "jpg", "png":
		im, err := improc.Mono8(frame.Data, frame.Width, frame.Height, frame.PixelFormat)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if format == "jpg" {
			w.Header().Set("Content-Type", "image/jpeg")
			w.WriteHeader(http.StatusOK)
			jpeg.Encode(w, im, nil)
		} else {
			w.Header().Set("Content-Type", "image/png")
			w.WriteHeader(http.StatusOK)
			png.Encode(w, im)
		}
	case "fits":
		im, err := improc.Mono16(frame.Data, frame.Width, frame.Height, frame.PixelFormat)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		cards := []fitsio.Card{{Name: "SERIAL", Value: frame.Serial, Comment: "camera serial number"}}
		cards = append(cards, imgrec.ChunkCards(frame.Chunks)...)
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=image.fits")
		err = imgrec.WriteFITS(w, cards, im)
		if err != nil {
			log.Printf("streaming fits frame failed: %s\n", err)
		}
	}
}

// recording reports if frames served are also written to disk
func (h *HTTPCamera) recording() bool {
	if h.rec == nil {
		return false
	}
	h.rec.Lock()
	defer h.rec.Unlock()
	return h.rec.Enabled && h.rec.Root != ""
}

func serialOf(cam camera.Camera) string {
	s, err := genicam.GetString(cam.TLDeviceNodeMap(), "DeviceSerialNumber")
	if err != nil {
		return ""
	}
	return s
}
