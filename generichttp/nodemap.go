package generichttp

import (
	"encoding/json"
	"go/types"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi"
	"github.com/pkg/errors"

	"github.com/magis-tdaq/camrig/camera"
	"github.com/magis-tdaq/camrig/genicam"
)

// AccessT is the JSON payload describing a node
type AccessT struct {
	Kind      string `json:"kind"`
	Available bool   `json:"available"`
	Readable  bool   `json:"readable"`
	Writable  bool   `json:"writable"`
}

// NodeMapHTTP exposes a GenICam node map over HTTP.  Calls into the node
// map are serialized.
type NodeMapHTTP struct {
	mu sync.Mutex
	nm camera.NodeMap
	rt RouteTable
}

// NewNodeMapHTTP returns a new HTTP wrapper around a node map
func NewNodeMapHTTP(nm camera.NodeMap) *NodeMapHTTP {
	h := &NodeMapHTTP{nm: nm}
	h.rt = RouteTable{
		{Method: http.MethodGet, Path: "/nodes/{node}"}:     h.GetNode,
		{Method: http.MethodPost, Path: "/nodes/{node}"}:    h.SetNode,
		{Method: http.MethodPost, Path: "/commands/{node}"}: h.Execute,
		{Method: http.MethodGet, Path: "/access/{node}"}:    h.GetAccess,
		{Method: http.MethodGet, Path: "/entries/{node}"}:   h.GetEntries,
		{Method: http.MethodGet, Path: "/snapshot"}:         h.Snapshot,
		{Method: http.MethodPost, Path: "/configure"}:       h.Configure,
	}
	return h
}

// RT satisfies HTTPer
func (h *NodeMapHTTP) RT() RouteTable {
	return h.rt
}

// statusOf maps node errors to HTTP status codes
func statusOf(err error) int {
	var nae *camera.NodeAccessError
	if errors.As(err, &nae) {
		if nae.Have == 0 && nae.Entry == "" {
			return http.StatusNotFound
		}
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}

// GetNode reads a node and responds with a payload matching its kind
func (h *NodeMapHTTP) GetNode(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "node")
	h.mu.Lock()
	v, err := genicam.Get(h.nm, name)
	h.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	var hp HumanPayload
	switch x := v.(type) {
	case int64:
		hp = HumanPayload{T: types.Int64, Int: x}
	case float64:
		hp = HumanPayload{T: types.Float64, Float: x}
	case bool:
		hp = HumanPayload{T: types.Bool, Bool: x}
	case string:
		hp = HumanPayload{T: types.String, String: x}
	}
	hp.EncodeAndRespond(w, r)
}

// SetNode decodes the payload for the node's kind, {"int"}, {"f64"},
// {"bool"}, or {"str"} for enumerations, and writes it
func (h *NodeMapHTTP) SetNode(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "node")
	defer r.Body.Close()
	h.mu.Lock()
	defer h.mu.Unlock()
	var (
		v   interface{}
		err error
	)
	switch h.nm.Kind(name) {
	case camera.KindInt:
		p := IntT{}
		err = json.NewDecoder(r.Body).Decode(&p)
		v = p.Int
	case camera.KindFloat:
		p := FloatT{}
		err = json.NewDecoder(r.Body).Decode(&p)
		v = p.F64
	case camera.KindBool:
		p := BoolT{}
		err = json.NewDecoder(r.Body).Decode(&p)
		v = p.Bool
	case camera.KindEnum:
		p := StrT{}
		err = json.NewDecoder(r.Body).Decode(&p)
		v = p.Str
	default:
		// let Set produce the access or kind error
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = genicam.Set(h.nm, name, v)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Execute runs a command node
func (h *NodeMapHTTP) Execute(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "node")
	h.mu.Lock()
	err := genicam.Execute(h.nm, name)
	h.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetAccess reports the kind and access mode of a node.  Missing nodes are
// reported, not treated as an error.
func (h *NodeMapHTTP) GetAccess(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "node")
	h.mu.Lock()
	a := h.nm.Access(name)
	k := h.nm.Kind(name)
	h.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AccessT{
		Kind:      k.String(),
		Available: a.Has(camera.Available),
		Readable:  a.Has(camera.Readable),
		Writable:  a.Has(camera.Writable),
	})
}

// GetEntries lists the readable entries of an enumeration node
func (h *NodeMapHTTP) GetEntries(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "node")
	h.mu.Lock()
	entries, err := h.nm.EnumEntries(name)
	h.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// Snapshot reads the comma separated nodes in the query parameter nodes and
// returns the readable ones as a JSON object
func (h *NodeMapHTTP) Snapshot(w http.ResponseWriter, r *http.Request) {
	names := strings.Split(r.URL.Query().Get("nodes"), ",")
	h.mu.Lock()
	snap := genicam.Snapshot(h.nm, names)
	h.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// Configure writes a JSON object of node names and values.  Every node is
// attempted and the failures are reported together.
func (h *NodeMapHTTP) Configure(w http.ResponseWriter, r *http.Request) {
	settings := map[string]interface{}{}
	err := json.NewDecoder(r.Body).Decode(&settings)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	err = genicam.Configure(h.nm, settings)
	h.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}
