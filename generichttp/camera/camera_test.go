package camera_test

import (
	"encoding/json"
	"fmt"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi"

	"github.com/magis-tdaq/camrig/generichttp"
	"github.com/magis-tdaq/camrig/generichttp/camera"
	"github.com/magis-tdaq/camrig/imgrec"
	"github.com/magis-tdaq/camrig/spinnaker"
)

func setup(t *testing.T, rec *imgrec.Recorder) (*spinnaker.MockCamera, *camera.HTTPCamera, *httptest.Server) {
	t.Helper()
	c := spinnaker.NewMockCamera(spinnaker.MockCameraConfig{Serial: "42", Width: 64, Height: 48})
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	h := camera.NewHTTPCamera(c, rec)
	r := chi.NewRouter()
	h.RT().Bind(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return c, h, srv
}

func post(t *testing.T, url, body string) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestFrameNeedsAcquisition(t *testing.T) {
	_, _, srv := setup(t, nil)
	resp, err := http.Get(srv.URL + "/frame")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 got %d", resp.StatusCode)
	}
}

func TestSoftwareTriggeredFrame(t *testing.T) {
	dir := t.TempDir()
	rec := imgrec.NewRecorder(dir, imgrec.JPEG, "")
	c, h, srv := setup(t, rec)
	nm := c.NodeMap()
	if err := nm.SetEnum("TriggerMode", "On"); err != nil {
		t.Fatal(err)
	}
	var toggled []bool
	h.OnAcquire = func(b bool) { toggled = append(toggled, b) }
	if code := post(t, srv.URL+"/acquisition", `{"bool":true}`); code != http.StatusOK {
		t.Fatalf("expected 200 got %d", code)
	}
	resp, err := http.Get(srv.URL + "/frame?fmt=jpg&timeout=100ms")
	if err != nil {
		t.Fatal(err)
	}
	im, err := jpeg.Decode(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if b := im.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("expected 64x48 got %dx%d", b.Dx(), b.Dy())
	}
	st := c.Stats()
	if st.SoftwareTriggers != 1 || st.Released != 1 {
		t.Errorf("expected 1 trigger and 1 release got %+v", st)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "Trigger-42-*.jpg"))
	if len(matches) != 1 {
		t.Errorf("expected one recorded frame got %v", matches)
	}
	resp, err = http.Get(srv.URL + "/files/Trigger-42-1.jpg")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected the recorded frame to be served got %d", resp.StatusCode)
	}

	if err := h.Stop(); err != nil {
		t.Fatal(err)
	}
	if c.Acquiring() {
		t.Error("expected acquisition stopped")
	}
	if len(toggled) != 1 || !toggled[0] {
		t.Errorf("expected one OnAcquire(true) call got %v", toggled)
	}
}

func TestFrameTimeout(t *testing.T) {
	c, _, srv := setup(t, nil)
	// hardware triggered and no pulse arrives
	c.NodeMap().SetEnum("TriggerSource", "Line3")
	c.NodeMap().SetEnum("TriggerMode", "On")
	post(t, srv.URL+"/acquisition", `{"bool":true}`)
	resp, err := http.Get(srv.URL + "/frame?timeout=2ms")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("expected 504 got %d", resp.StatusCode)
	}
}

func TestExposureTime(t *testing.T) {
	c, _, srv := setup(t, nil)
	if code := post(t, srv.URL+"/exposure-time?exposureTime=2ms", ""); code != http.StatusOK {
		t.Fatalf("expected 200 got %d", code)
	}
	if v, _ := c.NodeMap().GetFloat("ExposureTime"); v != 2000 {
		t.Errorf("expected 2000us got %f", v)
	}
	if code := post(t, srv.URL+"/exposure-time", `{"f64":0.5}`); code != http.StatusOK {
		t.Fatalf("expected 200 got %d", code)
	}
	resp, err := http.Get(srv.URL + "/exposure-time")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	f := generichttp.FloatT{}
	if err := decode(resp, &f); err != nil || f.F64 != 0.5 {
		t.Errorf("expected 0.5s got %f (%v)", f.F64, err)
	}
}

func decode(resp *http.Response, v interface{}) error {
	return json.NewDecoder(resp.Body).Decode(v)
}

func TestBadFormat(t *testing.T) {
	_, _, srv := setup(t, nil)
	resp, err := http.Get(srv.URL + "/frame?fmt=tiff")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 got %d", resp.StatusCode)
	}
}

func TestFrameWhileRecorderToggled(t *testing.T) {
	c := spinnaker.NewMockCamera(spinnaker.MockCameraConfig{Serial: "42", Width: 16, Height: 8, FreeRun: true})
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	rec := imgrec.NewRecorder(t.TempDir(), imgrec.JPEG, "")
	h := camera.NewHTTPCamera(c, rec)
	r := chi.NewRouter()
	h.RT().Bind(r)
	serve := func(method, path, body string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
		return w.Code
	}
	if code := serve(http.MethodPost, "/acquisition", `{"bool":true}`); code != http.StatusOK {
		t.Fatalf("expected 200 got %d", code)
	}

	// handlers run on the router directly, so only the recorder's lock
	// orders the writes against the frame handler's reads
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes []int
	)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			code := serve(http.MethodGet, "/frame?timeout=100ms", "")
			mu.Lock()
			codes = append(codes, code)
			mu.Unlock()
		}()
		go func(i int) {
			defer wg.Done()
			serve(http.MethodPost, "/autowrite/enabled", fmt.Sprintf(`{"bool":%v}`, i%2 == 0))
		}(i)
	}
	wg.Wait()
	for _, code := range codes {
		if code != http.StatusOK {
			t.Errorf("expected every frame served got %v", codes)
			break
		}
	}
	if err := h.Stop(); err != nil {
		t.Fatal(err)
	}
}
