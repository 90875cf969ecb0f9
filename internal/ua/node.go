package ua

import "time"

// NodeClass tags which of the seven concrete Node variants a Node is.
type NodeClass int

const (
	NodeClassObject NodeClass = iota + 1
	NodeClassVariable
	NodeClassMethod
	NodeClassObjectType
	NodeClassVariableType
	NodeClassReferenceType
	NodeClassDataType
)

func (c NodeClass) String() string {
	switch c {
	case NodeClassObject:
		return "Object"
	case NodeClassVariable:
		return "Variable"
	case NodeClassMethod:
		return "Method"
	case NodeClassObjectType:
		return "ObjectType"
	case NodeClassVariableType:
		return "VariableType"
	case NodeClassReferenceType:
		return "ReferenceType"
	case NodeClassDataType:
		return "DataType"
	default:
		return "Unknown"
	}
}

// Reference is a typed directed edge. Forward and inverse references are
// both stored on the source node: isInverse marks which way this
// particular edge runs relative to the node it is stored on.
type Reference struct {
	ReferenceTypeID NodeID
	IsInverse       bool
	TargetID        ExpandedNodeID
}

// Variant is the dynamically-typed scalar/array payload carried by a
// Variable's Value. DataSource read/write callbacks are modeled as a
// separate tagged branch on Node rather than inside Variant itself (see
// Node.IsDataSource).
type Variant struct {
	Value interface{}
}

// DataValue wraps a Variant with status/timestamps, as OPC UA requires
// for every Read/Write result.
type DataValue struct {
	Value           Variant
	StatusCode      StatusCode
	SourceTimestamp time.Time
	ServerTimestamp time.Time
}

func NewDataValue(v interface{}, status StatusCode, sourceTS, serverTS time.Time) DataValue {
	return DataValue{Value: Variant{Value: v}, StatusCode: status, SourceTimestamp: sourceTS, ServerTimestamp: serverTS}
}

// ReadDataSource/WriteDataSource back a Variable node whose value is
// computed rather than stored. NumericRange is the (out of scope here)
// sub-range selector; callbacks that don't support sub-ranges should
// reject it with BadIndexRangeInvalid.
type ReadDataSource func(numericRange string) (DataValue, StatusCode)
type WriteDataSource func(value DataValue, numericRange string) StatusCode

// ValueRank encodes the Variable's array-dimensionality contract.
type ValueRank int32

const (
	ValueRankScalarOrArray ValueRank = -2
	ValueRankScalar        ValueRank = -1
	ValueRankAny           ValueRank = 0
	// ValueRank >= 1 means a fixed-rank array; stored directly as the int.
)

// AccessLevel is the Variable.accessLevel bitmask.
type AccessLevel byte

const (
	AccessLevelCurrentRead  AccessLevel = 0x01
	AccessLevelCurrentWrite AccessLevel = 0x02
)

// Node is the common envelope every concrete node-class struct embeds.
// There are seven concrete variants (Object, Variable, Method, and the
// four *Type classes), sharing one struct here since they differ only
// by a couple of fields.
type Node struct {
	NodeID        NodeID
	NodeClass     NodeClass
	BrowseName    QualifiedName
	DisplayName   LocalizedText
	Description   LocalizedText
	WriteMask     uint32
	UserWriteMask uint32
	References    []Reference // insertion order preserved

	// Object
	EventNotifier byte

	// Variable
	Value                   DataValue
	ReadSource              ReadDataSource
	WriteSource             WriteDataSource
	IsDataSource            bool
	DataType                NodeID
	ValueRank               ValueRank
	ArrayDimensions         []uint32
	AccessLevel             AccessLevel
	UserAccessLevel         AccessLevel
	MinimumSamplingInterval float64
	Historizing             bool

	// Method
	Executable     bool
	UserExecutable bool
	MethodHandle   string

	// ObjectType / VariableType / ReferenceType / DataType
	IsAbstract bool

	// ReferenceType only
	Symmetric   bool
	InverseName LocalizedText
}

// AddReference appends a reference, preserving insertion order.
func (n *Node) AddReference(r Reference) {
	n.References = append(n.References, r)
}

// TypeDefinition returns the target of this node's HasTypeDefinition
// reference, if any; a node has at most one.
func (n *Node) TypeDefinition() (NodeID, bool) {
	for _, r := range n.References {
		if !r.IsInverse && r.ReferenceTypeID == HasTypeDefinition {
			return r.TargetID.NodeID, true
		}
	}
	return NULL, false
}

// SetValue overwrites a stored (non-data-source) Variable's value,
// stamping both timestamps with now.
func (n *Node) SetValue(v interface{}, now time.Time) {
	n.Value = NewDataValue(v, StatusOK, now, now)
}
