package generichttp_test

import (
	"encoding/json"
	"go/types"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/magis-tdaq/camrig/generichttp"
	"github.com/magis-tdaq/camrig/spinnaker"
)

func TestSubMuxSanitize(t *testing.T) {
	cases := map[string]string{
		"omc/cam/": "/omc/cam",
		"/cam":     "/cam",
		"cam":      "/cam",
		"":         "/",
	}
	for in, want := range cases {
		if got := generichttp.SubMuxSanitize(in); got != want {
			t.Errorf("expected %q got %q", want, got)
		}
	}
}

func TestEndpointsSorted(t *testing.T) {
	rt := generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/b"}: nil,
		{Method: http.MethodGet, Path: "/b"}:  nil,
		{Method: http.MethodGet, Path: "/a"}:  nil,
	}
	got := strings.Join(rt.Endpoints(), ",")
	want := "GET /a,GET /b,POST /b"
	if got != want {
		t.Errorf("expected %s got %s", want, got)
	}
}

func TestHumanPayload(t *testing.T) {
	cases := []struct {
		hp   generichttp.HumanPayload
		want string
	}{
		{generichttp.HumanPayload{T: types.Bool, Bool: true}, `{"bool":true}`},
		{generichttp.HumanPayload{T: types.Int64, Int: 7}, `{"int":7}`},
		{generichttp.HumanPayload{T: types.Float64, Float: 1.5}, `{"f64":1.5}`},
		{generichttp.HumanPayload{T: types.String, String: "On"}, `{"str":"On"}`},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		c.hp.EncodeAndRespond(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if got := strings.TrimSpace(w.Body.String()); got != c.want {
			t.Errorf("expected %s got %s", c.want, got)
		}
	}
}

func newServer(t *testing.T) (*spinnaker.MockCamera, *httptest.Server) {
	t.Helper()
	c := spinnaker.NewMockCamera(spinnaker.MockCameraConfig{Serial: "42", Width: 640, Height: 480})
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	h := generichttp.NewNodeMapHTTP(c.NodeMap())
	r := chi.NewRouter()
	h.RT().Bind(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return c, srv
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

func get(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestGetNodeByKind(t *testing.T) {
	_, srv := newServer(t)
	i := generichttp.IntT{}
	if code := get(t, srv.URL+"/nodes/Width", &i); code != http.StatusOK || i.Int != 640 {
		t.Errorf("expected Width 640 got %d (status %d)", i.Int, code)
	}
	s := generichttp.StrT{}
	if code := get(t, srv.URL+"/nodes/TriggerMode", &s); code != http.StatusOK || s.Str != "Off" {
		t.Errorf("expected TriggerMode Off got %s (status %d)", s.Str, code)
	}
	f := generichttp.FloatT{}
	if code := get(t, srv.URL+"/nodes/ExposureTime", &f); code != http.StatusOK || f.F64 != 10000 {
		t.Errorf("expected ExposureTime 10000 got %f (status %d)", f.F64, code)
	}
	b := generichttp.BoolT{}
	if code := get(t, srv.URL+"/nodes/ChunkModeActive", &b); code != http.StatusOK || b.Bool {
		t.Errorf("expected ChunkModeActive false got %v (status %d)", b.Bool, code)
	}
}

func TestGetMissingNode(t *testing.T) {
	_, srv := newServer(t)
	if code := get(t, srv.URL+"/nodes/FluxCapacitor", nil); code != http.StatusNotFound {
		t.Errorf("expected 404 got %d", code)
	}
}

func TestSetNode(t *testing.T) {
	c, srv := newServer(t)
	if code := post(t, srv.URL+"/nodes/Width", `{"int":320}`); code != http.StatusOK {
		t.Fatalf("expected 200 got %d", code)
	}
	if w, _ := c.NodeMap().GetInt("Width"); w != 320 {
		t.Errorf("expected Width 320 got %d", w)
	}
	if code := post(t, srv.URL+"/nodes/TriggerSource", `{"str":"Line3"}`); code != http.StatusOK {
		t.Fatalf("expected 200 got %d", code)
	}
	if code := post(t, srv.URL+"/nodes/TriggerSource", `{"str":"Line9"}`); code != http.StatusForbidden {
		t.Errorf("expected 403 for a missing entry got %d", code)
	}
	// ExposureTime is read only while ExposureAuto is Continuous
	if code := post(t, srv.URL+"/nodes/ExposureTime", `{"f64":500}`); code != http.StatusForbidden {
		t.Errorf("expected 403 got %d", code)
	}
	if code := post(t, srv.URL+"/nodes/Width", `{"int":`); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed body got %d", code)
	}
}

func TestExecuteAndAccess(t *testing.T) {
	c, srv := newServer(t)
	c.BeginAcquisition()
	post(t, srv.URL+"/nodes/TriggerMode", `{"str":"On"}`)
	a := generichttp.AccessT{}
	get(t, srv.URL+"/access/TriggerSoftware", &a)
	if a.Kind != "command" || !a.Available || !a.Writable {
		t.Errorf("expected a writable command got %+v", a)
	}
	if code := post(t, srv.URL+"/commands/TriggerSoftware", ""); code != http.StatusOK {
		t.Fatalf("expected 200 got %d", code)
	}
	if q := c.Queued(); q != 1 {
		t.Errorf("expected 1 queued frame got %d", q)
	}
	get(t, srv.URL+"/access/Nope", &a)
	if a.Available || a.Kind != "unknown" {
		t.Errorf("expected an unavailable node got %+v", a)
	}
}

func TestConfigureAndSnapshot(t *testing.T) {
	_, srv := newServer(t)
	code := post(t, srv.URL+"/configure", `{"ExposureAuto":"Off","TriggerOverlap":"ReadOut","Nope":1}`)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for a partially failed configure got %d", code)
	}
	snap := map[string]interface{}{}
	get(t, srv.URL+"/snapshot?nodes=ExposureAuto,TriggerOverlap,Nope", &snap)
	if snap["ExposureAuto"] != "Off" || snap["TriggerOverlap"] != "ReadOut" {
		t.Errorf("expected the valid settings applied got %v", snap)
	}
	if _, ok := snap["Nope"]; ok {
		t.Error("expected missing nodes left out of the snapshot")
	}
	entries := []string{}
	get(t, srv.URL+"/entries/TriggerOverlap", &entries)
	if len(entries) != 2 {
		t.Errorf("expected 2 entries got %v", entries)
	}
}

func TestEndpointsRoute(t *testing.T) {
	_, srv := newServer(t)
	eps := []string{}
	if code := get(t, srv.URL+"/endpoints", &eps); code != http.StatusOK || len(eps) != 7 {
		t.Errorf("expected 7 endpoints got %v (status %d)", eps, code)
	}
}
