package camera

import (
	"fmt"
	"strings"
)

// Kind is the interface type of a node
type Kind int

const (
	// KindUnknown is reported for nodes that do not exist
	KindUnknown Kind = iota
	// KindInt is an integer node
	KindInt
	// KindFloat is a floating point node
	KindFloat
	// KindBool is a boolean node
	KindBool
	// KindEnum is an enumeration node
	KindEnum
	// KindString is a string node
	KindString
	// KindCommand is a command node
	KindCommand
)

var kindNames = map[Kind]string{
	KindUnknown: "unknown",
	KindInt:     "int",
	KindFloat:   "float",
	KindBool:    "bool",
	KindEnum:    "enum",
	KindString:  "string",
	KindCommand: "command",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Access is a bitmask of what may be done with a node
type Access int

const (
	// Available means the node exists and is implemented by the device
	Available Access = 1 << iota
	// Readable means the node may be read
	Readable
	// Writable means the node may be written
	Writable

	// ReadWrite is Available|Readable|Writable
	ReadWrite = Available | Readable | Writable
)

// Has reports if every bit in want is set in a
func (a Access) Has(want Access) bool {
	return a&want == want
}

func (a Access) String() string {
	if a == 0 {
		return "none"
	}
	parts := []string{}
	if a&Available != 0 {
		parts = append(parts, "available")
	}
	if a&Readable != 0 {
		parts = append(parts, "readable")
	}
	if a&Writable != 0 {
		parts = append(parts, "writable")
	}
	return strings.Join(parts, "|")
}

// NodeMap is the generic key-value property interface of a device.
// Enumerations are manipulated through the symbolic names of their entries.
type NodeMap interface {
	// Kind returns the interface type of a node, KindUnknown if it does not exist
	Kind(name string) Kind

	// Access reports the access mode of a node, zero if it does not exist
	Access(name string) Access

	GetInt(name string) (int64, error)
	SetInt(name string, v int64) error
	// IntRange returns the min, max, and increment of an integer node
	IntRange(name string) (min, max, inc int64, err error)

	GetFloat(name string) (float64, error)
	SetFloat(name string, v float64) error
	// FloatRange returns the min and max of a floating point node
	FloatRange(name string) (min, max float64, err error)

	GetBool(name string) (bool, error)
	SetBool(name string, v bool) error

	// GetEnum returns the symbolic name of the current entry
	GetEnum(name string) (string, error)
	// SetEnum selects the entry with the given symbolic name
	SetEnum(name, entry string) error
	// EnumEntries lists the symbolic names of the readable entries
	EnumEntries(name string) ([]string, error)
	// EntryAccess reports the access mode of one entry of an enumeration
	EntryAccess(name, entry string) Access

	GetString(name string) (string, error)

	// Execute runs a command node
	Execute(name string) error
}

// NodeAccessError is generated when a named node is missing, unreadable, or
// unwritable
type NodeAccessError struct {
	// Node is the name of the node
	Node string

	// Entry is the enumeration entry, if the failure was on an entry
	Entry string

	// Want is the access that was needed
	Want Access

	// Have is the access the node actually has
	Have Access
}

// Error satisfies the error interface
func (e *NodeAccessError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("node %s entry %s is %s, need %s", e.Node, e.Entry, e.Have, e.Want)
	}
	return fmt.Sprintf("node %s is %s, need %s", e.Node, e.Have, e.Want)
}
