// Package ua contains the wire-level address-space types shared by every
// core package: NodeId, References, QualifiedName/LocalizedText and the
// well-known namespace-0 identifiers.
package ua

import (
	"fmt"

	"github.com/google/uuid"
)

// IdType distinguishes the four NodeId identifier encodings.
type IdType int

const (
	IdTypeNumeric IdType = iota
	IdTypeString
	IdTypeGuid
	IdTypeByteString
)

// NodeID is a tagged union over (namespaceIndex, one of four id kinds).
// Equality and hashing are structural: every field is comparable (the
// ByteString payload is stored as a string for exactly this reason), so
// NodeID works directly as a map key.
type NodeID struct {
	NamespaceIndex uint16
	IDType         IdType
	Numeric        uint32
	StringID       string
	Guid           uuid.UUID
	ByteStringID   string // stored as string to keep NodeID comparable
}

// NULL is the sentinel NodeId: namespace 0, numeric 0.
var NULL = NodeID{NamespaceIndex: 0, IDType: IdTypeNumeric, Numeric: 0}

func NewNumeric(ns uint16, id uint32) NodeID {
	return NodeID{NamespaceIndex: ns, IDType: IdTypeNumeric, Numeric: id}
}

func NewString(ns uint16, id string) NodeID {
	return NodeID{NamespaceIndex: ns, IDType: IdTypeString, StringID: id}
}

func NewGuid(ns uint16, id uuid.UUID) NodeID {
	return NodeID{NamespaceIndex: ns, IDType: IdTypeGuid, Guid: id}
}

func NewByteString(ns uint16, id []byte) NodeID {
	return NodeID{NamespaceIndex: ns, IDType: IdTypeByteString, ByteStringID: string(id)}
}

// NewGuidRandom allocates a fresh random Guid NodeId in the given
// namespace, used for SessionIds and AuthTokens.
func NewGuidRandom(ns uint16) NodeID {
	return NewGuid(ns, uuid.New())
}

// IsNull reports whether this is the NULL sentinel.
func (n NodeID) IsNull() bool {
	return n == NULL
}

// String renders the NodeId the way OPC UA textual NodeIds are written,
// e.g. "ns=1;s=the.answer", mostly useful for logging.
func (n NodeID) String() string {
	switch n.IDType {
	case IdTypeNumeric:
		return fmt.Sprintf("ns=%d;i=%d", n.NamespaceIndex, n.Numeric)
	case IdTypeString:
		return fmt.Sprintf("ns=%d;s=%s", n.NamespaceIndex, n.StringID)
	case IdTypeGuid:
		return fmt.Sprintf("ns=%d;g=%s", n.NamespaceIndex, n.Guid.String())
	case IdTypeByteString:
		return fmt.Sprintf("ns=%d;b=%x", n.NamespaceIndex, n.ByteStringID)
	default:
		return "ns=?;?=?"
	}
}

// ExpandedNodeID adds an optional out-of-server namespace URI/server
// index to a NodeID; references target ExpandedNodeIDs.
type ExpandedNodeID struct {
	NodeID       NodeID
	NamespaceURI string
	ServerIndex  uint32
}

func Expand(id NodeID) ExpandedNodeID {
	return ExpandedNodeID{NodeID: id}
}

// QualifiedName is a namespace-scoped name, e.g. the BrowseName of a Node.
type QualifiedName struct {
	NamespaceIndex uint16
	Name           string
}

// LocalizedText is a (locale, text) pair used for DisplayName/Description.
type LocalizedText struct {
	Locale string
	Text   string
}
