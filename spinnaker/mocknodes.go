package spinnaker

import (
	"sort"
	"sync"

	"github.com/magis-tdaq/camrig/camera"
)

// mockNode is one entry in a MockNodeMap.  Only the fields matching kind
// are meaningful.
type mockNode struct {
	kind   camera.Kind
	access camera.Access

	i, imin, imax, iinc int64
	f, fmin, fmax       float64
	b                   bool
	s                   string

	// entries are the symbolic enum entries, in device order
	entries []string

	// entryAccess overrides the access of individual entries.  Entries not
	// present default to Available|Readable.
	entryAccess map[string]camera.Access

	// accessFn, when set, computes the access at call time.  It is used
	// for nodes locked by the state of other nodes.
	accessFn func() camera.Access

	// selector-dependent nodes delegate to these
	getBool func() bool
	setBool func(bool)
	getInt  func() int64
	setInt  func(int64)

	// execute runs a command node
	execute func() error
}

// MockNodeMap is an in-memory NodeMap that behaves like a device node map,
// checking access and ranges on every call.  It is safe for concurrent use.
type MockNodeMap struct {
	mu    *sync.Mutex
	nodes map[string]*mockNode

	// ready gates every node.  The GenICam node map of a camera is only
	// populated after Init.
	ready func() bool
}

func newMockNodeMap(mu *sync.Mutex) *MockNodeMap {
	return &MockNodeMap{mu: mu, nodes: make(map[string]*mockNode)}
}

func (m *MockNodeMap) addInt(name string, v, min, max, inc int64, acc camera.Access) *mockNode {
	n := &mockNode{kind: camera.KindInt, access: acc, i: v, imin: min, imax: max, iinc: inc}
	m.nodes[name] = n
	return n
}

func (m *MockNodeMap) addFloat(name string, v, min, max float64, acc camera.Access) *mockNode {
	n := &mockNode{kind: camera.KindFloat, access: acc, f: v, fmin: min, fmax: max}
	m.nodes[name] = n
	return n
}

func (m *MockNodeMap) addBool(name string, v bool, acc camera.Access) *mockNode {
	n := &mockNode{kind: camera.KindBool, access: acc, b: v}
	m.nodes[name] = n
	return n
}

func (m *MockNodeMap) addEnum(name, v string, entries []string, acc camera.Access) *mockNode {
	n := &mockNode{kind: camera.KindEnum, access: acc, s: v, entries: entries}
	m.nodes[name] = n
	return n
}

func (m *MockNodeMap) addString(name, v string, acc camera.Access) *mockNode {
	n := &mockNode{kind: camera.KindString, access: acc, s: v}
	m.nodes[name] = n
	return n
}

func (m *MockNodeMap) addCommand(name string, exec func() error) *mockNode {
	n := &mockNode{kind: camera.KindCommand, access: camera.Available | camera.Writable, execute: exec}
	m.nodes[name] = n
	return n
}

// Remove deletes a node, emulating a device model which lacks it
func (m *MockNodeMap) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, name)
}

// SetAccess overrides the access of a node
func (m *MockNodeMap) SetAccess(name string, acc camera.Access) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[name]; ok {
		n.accessFn = nil
		n.access = acc
	}
}

// SetEntryAccess overrides the access of a single enumeration entry
func (m *MockNodeMap) SetEntryAccess(name, entry string, acc camera.Access) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[name]; ok {
		if n.entryAccess == nil {
			n.entryAccess = make(map[string]camera.Access)
		}
		n.entryAccess[entry] = acc
	}
}

// Names returns the sorted names of every node in the map
func (m *MockNodeMap) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.nodes))
	for k := range m.nodes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (n *mockNode) acc() camera.Access {
	if n.accessFn != nil {
		return n.accessFn()
	}
	return n.access
}

func (n *mockNode) entryAcc(entry string) camera.Access {
	found := false
	for _, e := range n.entries {
		if e == entry {
			found = true
			break
		}
	}
	if !found {
		return 0
	}
	if a, ok := n.entryAccess[entry]; ok {
		return a
	}
	return camera.Available | camera.Readable
}

// lookup fetches a node of the given kind and checks it has want access.
// The caller must hold m.mu.
func (m *MockNodeMap) lookup(name string, kind camera.Kind, want camera.Access) (*mockNode, error) {
	n, ok := m.nodes[name]
	if !ok || (m.ready != nil && !m.ready()) {
		return nil, &camera.NodeAccessError{Node: name, Want: want}
	}
	if n.kind != kind {
		return nil, ErrInvalidParameter
	}
	if have := n.acc(); !have.Has(want) {
		return nil, &camera.NodeAccessError{Node: name, Want: want, Have: have}
	}
	return n, nil
}

const (
	wantRead  = camera.Available | camera.Readable
	wantWrite = camera.Available | camera.Writable
)

// Kind implements camera.NodeMap
func (m *MockNodeMap) Kind(name string) camera.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready != nil && !m.ready() {
		return camera.KindUnknown
	}
	if n, ok := m.nodes[name]; ok {
		return n.kind
	}
	return camera.KindUnknown
}

// Access implements camera.NodeMap
func (m *MockNodeMap) Access(name string) camera.Access {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready != nil && !m.ready() {
		return 0
	}
	if n, ok := m.nodes[name]; ok {
		return n.acc()
	}
	return 0
}

// GetInt implements camera.NodeMap
func (m *MockNodeMap) GetInt(name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(name, camera.KindInt, wantRead)
	if err != nil {
		return 0, err
	}
	if n.getInt != nil {
		return n.getInt(), nil
	}
	return n.i, nil
}

// SetInt implements camera.NodeMap.  Values outside the range or off the
// increment grid are rejected with ErrOutOfRange.
func (m *MockNodeMap) SetInt(name string, v int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(name, camera.KindInt, wantWrite)
	if err != nil {
		return err
	}
	if v < n.imin || v > n.imax {
		return ErrOutOfRange
	}
	if n.iinc > 1 && (v-n.imin)%n.iinc != 0 {
		return ErrOutOfRange
	}
	if n.setInt != nil {
		n.setInt(v)
		return nil
	}
	n.i = v
	return nil
}

// IntRange implements camera.NodeMap
func (m *MockNodeMap) IntRange(name string) (int64, int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(name, camera.KindInt, wantRead)
	if err != nil {
		return 0, 0, 0, err
	}
	inc := n.iinc
	if inc == 0 {
		inc = 1
	}
	return n.imin, n.imax, inc, nil
}

// GetFloat implements camera.NodeMap
func (m *MockNodeMap) GetFloat(name string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(name, camera.KindFloat, wantRead)
	if err != nil {
		return 0, err
	}
	return n.f, nil
}

// SetFloat implements camera.NodeMap
func (m *MockNodeMap) SetFloat(name string, v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(name, camera.KindFloat, wantWrite)
	if err != nil {
		return err
	}
	if v < n.fmin || v > n.fmax {
		return ErrOutOfRange
	}
	n.f = v
	return nil
}

// FloatRange implements camera.NodeMap
func (m *MockNodeMap) FloatRange(name string) (float64, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(name, camera.KindFloat, wantRead)
	if err != nil {
		return 0, 0, err
	}
	return n.fmin, n.fmax, nil
}

// GetBool implements camera.NodeMap
func (m *MockNodeMap) GetBool(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(name, camera.KindBool, wantRead)
	if err != nil {
		return false, err
	}
	if n.getBool != nil {
		return n.getBool(), nil
	}
	return n.b, nil
}

// SetBool implements camera.NodeMap
func (m *MockNodeMap) SetBool(name string, v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(name, camera.KindBool, wantWrite)
	if err != nil {
		return err
	}
	if n.setBool != nil {
		n.setBool(v)
		return nil
	}
	n.b = v
	return nil
}

// GetEnum implements camera.NodeMap
func (m *MockNodeMap) GetEnum(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(name, camera.KindEnum, wantRead)
	if err != nil {
		return "", err
	}
	return n.s, nil
}

// SetEnum implements camera.NodeMap
func (m *MockNodeMap) SetEnum(name, entry string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(name, camera.KindEnum, wantWrite)
	if err != nil {
		return err
	}
	if have := n.entryAcc(entry); !have.Has(wantRead) {
		return &camera.NodeAccessError{Node: name, Entry: entry, Want: wantRead, Have: have}
	}
	n.s = entry
	return nil
}

// EnumEntries implements camera.NodeMap
func (m *MockNodeMap) EnumEntries(name string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(name, camera.KindEnum, wantRead)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range n.entries {
		if n.entryAcc(e).Has(wantRead) {
			out = append(out, e)
		}
	}
	return out, nil
}

// EntryAccess implements camera.NodeMap
func (m *MockNodeMap) EntryAccess(name, entry string) camera.Access {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[name]
	if !ok || n.kind != camera.KindEnum || (m.ready != nil && !m.ready()) {
		return 0
	}
	return n.entryAcc(entry)
}

// GetString implements camera.NodeMap
func (m *MockNodeMap) GetString(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(name, camera.KindString, wantRead)
	if err != nil {
		return "", err
	}
	return n.s, nil
}

// Execute implements camera.NodeMap.  The command runs with the map's lock
// held.
func (m *MockNodeMap) Execute(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(name, camera.KindCommand, wantWrite)
	if err != nil {
		return err
	}
	if n.execute == nil {
		return nil
	}
	return n.execute()
}

// value returns the current value of a node without access checks, for
// snapshots.  The caller must hold m.mu.
func (n *mockNode) value() interface{} {
	switch n.kind {
	case camera.KindInt:
		if n.getInt != nil {
			return n.getInt()
		}
		return n.i
	case camera.KindFloat:
		return n.f
	case camera.KindBool:
		if n.getBool != nil {
			return n.getBool()
		}
		return n.b
	case camera.KindEnum, camera.KindString:
		return n.s
	}
	return nil
}
