// Package addrspace implements the Address-Space Services: typed
// add-node operations, the bootstrap sequence that seeds the
// reference-type hierarchy before it can validate itself, and the
// add-reference/add-node algorithm with rollback on failure.
package addrspace

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/sebastiankruger/opcua-core/internal/store"
	"github.com/sebastiankruger/opcua-core/internal/ua"
)

// MethodCallback is the server-side implementation bound to a Method
// node, invoked by the Call service.
type MethodCallback func(args []ua.Variant) ([]ua.Variant, ua.StatusCode)

// AddressSpace ties a NodeStore and NamespaceTable together and exposes
// the typed add-node operations.
type AddressSpace struct {
	Nodes      *store.NodeStore
	Namespaces *store.NamespaceTable

	bootstrapping bool
	nowFunc       func() time.Time

	methodsMu sync.RWMutex
	methods   map[ua.NodeID]MethodCallback
}

// New wires a fresh AddressSpace. Callers normally call Bootstrap
// immediately afterward.
func New(nodes *store.NodeStore, namespaces *store.NamespaceTable) *AddressSpace {
	return &AddressSpace{
		Nodes:      nodes,
		Namespaces: namespaces,
		nowFunc:    time.Now,
		methods:    make(map[ua.NodeID]MethodCallback),
	}
}

// SetClock overrides the clock used to stamp Variable values, for tests.
func (a *AddressSpace) SetClock(now func() time.Time) { a.nowFunc = now }

func (a *AddressSpace) now() time.Time {
	if a.nowFunc != nil {
		return a.nowFunc()
	}
	return time.Now()
}

// AddNodeRequest carries the common parameters shared by every typed
// Add*Node entry point.
type AddNodeRequest struct {
	RequestedNodeID ua.NodeID // NULL means "assign one"
	ParentNodeID    ua.NodeID
	ReferenceTypeID ua.NodeID // parent -> new node, forward
	BrowseName      ua.QualifiedName
	DisplayName     ua.LocalizedText
	Description     ua.LocalizedText
	TypeDefinition  ua.NodeID // NULL skips step 3/6
}

// resolveID generates a numeric NodeId in the target namespace when the
// caller passed NULL, using a single package-wide counter (shared by all
// namespaces) seeded above the well-known range so bootstrapped ids never
// collide with generated ones.
var generatedCounter uint32 = 100000

func (a *AddressSpace) resolveID(req AddNodeRequest, ns uint16) (ua.NodeID, error) {
	if req.RequestedNodeID.IsNull() {
		for {
			generatedCounter++
			id := ua.NewNumeric(ns, generatedCounter)
			if !a.Nodes.Has(id) {
				return id, nil
			}
		}
	}
	if !a.Namespaces.Exists(req.RequestedNodeID.NamespaceIndex) {
		return ua.NULL, errors.Wrap(ua.NewStatusError(ua.BadNodeIdInvalid), "namespace does not exist")
	}
	if a.Nodes.Has(req.RequestedNodeID) {
		return ua.NULL, errors.Wrap(ua.NewStatusError(ua.BadNodeIdInvalid), "node id already in use")
	}
	return req.RequestedNodeID, nil
}

// checkTypeCompatible validates that typeDef resolves to an existing
// node and, for Object and Variable instances, that the node is of the
// matching ObjectType/VariableType class. Other instance classes accept
// any existing node.
func (a *AddressSpace) checkTypeCompatible(instanceClass ua.NodeClass, typeDef ua.NodeID) error {
	if typeDef.IsNull() {
		return nil
	}
	tn, err := a.Nodes.Get(typeDef)
	if err != nil {
		return errors.Wrap(ua.NewStatusError(ua.BadNodeIdUnknown), "type definition not found")
	}
	var want ua.NodeClass
	switch instanceClass {
	case ua.NodeClassObject:
		want = ua.NodeClassObjectType
	case ua.NodeClassVariable:
		want = ua.NodeClassVariableType
	default:
		return nil
	}
	if tn.NodeClass != want {
		return errors.Wrap(ua.NewStatusError(ua.BadTypeMismatch), "type definition node class mismatch")
	}
	return nil
}

// insertWithReferences constructs and inserts the node, adds the
// parent<->child reference pair, adds HasTypeDefinition, and rolls
// back the insertion if anything after that fails.
//
// n's own outgoing references (the inverse parent edge and
// HasTypeDefinition) are attached before Insert publishes it, so the
// node is fully formed the moment it becomes visible to concurrent
// readers; the forward edge on the (already-visible, possibly
// concurrently-read) parent is added afterward through
// NodeStore.AddReference's copy-on-write, never by mutating the
// parent's Node struct in place.
func (a *AddressSpace) insertWithReferences(n *ua.Node, req AddNodeRequest) error {
	if !a.bootstrapping {
		if !a.Nodes.Has(req.ParentNodeID) {
			return errors.Wrap(ua.NewStatusError(ua.BadNodeIdUnknown), "parent node not found")
		}
		if !a.Nodes.Has(req.ReferenceTypeID) {
			return errors.Wrap(ua.NewStatusError(ua.BadNodeIdUnknown), "reference type not found")
		}
		if err := a.checkTypeCompatible(n.NodeClass, req.TypeDefinition); err != nil {
			return err
		}
	}

	if !req.ParentNodeID.IsNull() {
		n.AddReference(ua.Reference{
			ReferenceTypeID: req.ReferenceTypeID,
			IsInverse:       true,
			TargetID:        ua.Expand(req.ParentNodeID),
		})
	}
	if !req.TypeDefinition.IsNull() {
		n.AddReference(ua.Reference{
			ReferenceTypeID: ua.HasTypeDefinition,
			IsInverse:       false,
			TargetID:        ua.Expand(req.TypeDefinition),
		})
	}

	if err := a.Nodes.Insert(n); err != nil {
		return errors.Wrap(err, "inserting node")
	}

	if !req.ParentNodeID.IsNull() {
		if err := a.Nodes.AddReference(req.ParentNodeID, ua.Reference{
			ReferenceTypeID: req.ReferenceTypeID,
			IsInverse:       false,
			TargetID:        ua.Expand(n.NodeID),
		}); err != nil {
			a.Nodes.Remove(n.NodeID)
			return errors.Wrap(err, "adding parent reference")
		}
	}

	a.logAdd(n.NodeID, n.NodeClass)
	return nil
}

func baseNode(id ua.NodeID, class ua.NodeClass, req AddNodeRequest) *ua.Node {
	return &ua.Node{
		NodeID:      id,
		NodeClass:   class,
		BrowseName:  req.BrowseName,
		DisplayName: req.DisplayName,
		Description: req.Description,
	}
}

// AddObjectNode adds an Object instance node.
func (a *AddressSpace) AddObjectNode(req AddNodeRequest, eventNotifier byte) (ua.NodeID, error) {
	ns := req.BrowseName.NamespaceIndex
	id, err := a.resolveID(req, ns)
	if err != nil {
		return ua.NULL, err
	}
	n := baseNode(id, ua.NodeClassObject, req)
	n.EventNotifier = eventNotifier
	if err := a.insertWithReferences(n, req); err != nil {
		return ua.NULL, err
	}
	return id, nil
}

// AddVariableNode adds a Variable instance node with a stored value.
func (a *AddressSpace) AddVariableNode(req AddNodeRequest, dataType ua.NodeID, valueRank ua.ValueRank,
	arrayDims []uint32, accessLevel ua.AccessLevel, minSamplingInterval float64, historizing bool,
	initialValue interface{}) (ua.NodeID, error) {

	ns := req.BrowseName.NamespaceIndex
	id, err := a.resolveID(req, ns)
	if err != nil {
		return ua.NULL, err
	}
	n := baseNode(id, ua.NodeClassVariable, req)
	n.DataType = dataType
	n.ValueRank = valueRank
	n.ArrayDimensions = arrayDims
	n.AccessLevel = accessLevel
	n.UserAccessLevel = accessLevel
	n.MinimumSamplingInterval = minSamplingInterval
	n.Historizing = historizing
	now := a.now()
	n.Value = ua.NewDataValue(initialValue, ua.StatusOK, now, now)

	if err := a.insertWithReferences(n, req); err != nil {
		return ua.NULL, err
	}
	return id, nil
}

// AddDataSourceVariableNode is the data-source variant: value is
// computed by read/write callbacks instead of stored.
func (a *AddressSpace) AddDataSourceVariableNode(req AddNodeRequest, dataType ua.NodeID, valueRank ua.ValueRank,
	accessLevel ua.AccessLevel, read ua.ReadDataSource, write ua.WriteDataSource) (ua.NodeID, error) {

	ns := req.BrowseName.NamespaceIndex
	id, err := a.resolveID(req, ns)
	if err != nil {
		return ua.NULL, err
	}
	n := baseNode(id, ua.NodeClassVariable, req)
	n.DataType = dataType
	n.ValueRank = valueRank
	n.AccessLevel = accessLevel
	n.UserAccessLevel = accessLevel
	n.IsDataSource = true
	n.ReadSource = read
	n.WriteSource = write

	if err := a.insertWithReferences(n, req); err != nil {
		return ua.NULL, err
	}
	return id, nil
}

// AddMethodNode adds a Method node.
func (a *AddressSpace) AddMethodNode(req AddNodeRequest, executable bool, handle string) (ua.NodeID, error) {
	ns := req.BrowseName.NamespaceIndex
	id, err := a.resolveID(req, ns)
	if err != nil {
		return ua.NULL, err
	}
	n := baseNode(id, ua.NodeClassMethod, req)
	n.Executable = executable
	n.UserExecutable = executable
	n.MethodHandle = handle
	if err := a.insertWithReferences(n, req); err != nil {
		return ua.NULL, err
	}
	return id, nil
}

// AddObjectTypeNode adds an ObjectType node.
func (a *AddressSpace) AddObjectTypeNode(req AddNodeRequest, isAbstract bool) (ua.NodeID, error) {
	return a.addTypeNode(req, ua.NodeClassObjectType, isAbstract)
}

// AddVariableTypeNode adds a VariableType node.
func (a *AddressSpace) AddVariableTypeNode(req AddNodeRequest, isAbstract bool) (ua.NodeID, error) {
	return a.addTypeNode(req, ua.NodeClassVariableType, isAbstract)
}

// AddDataTypeNode adds a DataType node.
func (a *AddressSpace) AddDataTypeNode(req AddNodeRequest, isAbstract bool) (ua.NodeID, error) {
	return a.addTypeNode(req, ua.NodeClassDataType, isAbstract)
}

func (a *AddressSpace) addTypeNode(req AddNodeRequest, class ua.NodeClass, isAbstract bool) (ua.NodeID, error) {
	ns := req.BrowseName.NamespaceIndex
	id, err := a.resolveID(req, ns)
	if err != nil {
		return ua.NULL, err
	}
	n := baseNode(id, class, req)
	n.IsAbstract = isAbstract
	if err := a.insertWithReferences(n, req); err != nil {
		return ua.NULL, err
	}
	return id, nil
}

// AddReferenceTypeNode adds a ReferenceType node. During bootstrap
// (a.bootstrapping) it bypasses class validation, since HasSubtype, the
// very relation used to classify reference types, does not exist yet.
func (a *AddressSpace) AddReferenceTypeNode(req AddNodeRequest, isAbstract, symmetric bool, inverseName ua.LocalizedText) (ua.NodeID, error) {
	ns := req.BrowseName.NamespaceIndex
	id, err := a.resolveID(req, ns)
	if err != nil {
		return ua.NULL, err
	}
	n := baseNode(id, ua.NodeClassReferenceType, req)
	n.IsAbstract = isAbstract
	n.Symmetric = symmetric
	n.InverseName = inverseName
	if err := a.insertWithReferences(n, req); err != nil {
		return ua.NULL, err
	}
	return id, nil
}

// AddReference adds a forward reference on src and the matching
// inverse on target. Both nodes must
// already exist; the reference type must already exist, a check that is
// skipped during bootstrap. Mutations go through NodeStore.AddReference's
// copy-on-write rather than the *Node pointer directly, since src/target
// may already be visible to concurrent lock-free readers.
func (a *AddressSpace) AddReference(src ua.NodeID, refType ua.NodeID, target ua.NodeID, targetIsInverseSide bool) error {
	if !a.bootstrapping {
		if !a.Nodes.Has(refType) {
			return errors.Wrap(ua.NewStatusError(ua.BadNodeIdUnknown), "reference type not found")
		}
	}
	srcNode, err := a.Nodes.Get(src)
	if err != nil {
		return errors.Wrap(ua.NewStatusError(ua.BadNodeIdUnknown), "source node not found")
	}
	if !a.Nodes.Has(target) {
		return errors.Wrap(ua.NewStatusError(ua.BadNodeIdUnknown), "target node not found")
	}
	// A node carries at most one HasTypeDefinition reference.
	if refType == ua.HasTypeDefinition && !targetIsInverseSide {
		if _, has := srcNode.TypeDefinition(); has {
			return errors.Wrap(ua.NewStatusError(ua.BadInvalidArgument), "node already has a type definition")
		}
	}
	if err := a.Nodes.AddReference(src, ua.Reference{ReferenceTypeID: refType, IsInverse: targetIsInverseSide, TargetID: ua.Expand(target)}); err != nil {
		return errors.Wrap(err, "adding reference to source node")
	}
	if err := a.Nodes.AddReference(target, ua.Reference{ReferenceTypeID: refType, IsInverse: !targetIsInverseSide, TargetID: ua.Expand(src)}); err != nil {
		return errors.Wrap(err, "adding inverse reference to target node")
	}
	return nil
}

// RegisterMethod binds fn to an existing Method node.
func (a *AddressSpace) RegisterMethod(id ua.NodeID, fn MethodCallback) error {
	n, err := a.Nodes.Get(id)
	if err != nil {
		return errors.Wrap(ua.NewStatusError(ua.BadNodeIdUnknown), "method node not found")
	}
	if n.NodeClass != ua.NodeClassMethod {
		return errors.Wrap(ua.NewStatusError(ua.BadNodeIdInvalid), "node is not a Method")
	}
	a.methodsMu.Lock()
	a.methods[id] = fn
	a.methodsMu.Unlock()
	return nil
}

// Call invokes the callback registered for a Method node. A method
// without a registered callback, or with Executable false, cannot be
// called.
func (a *AddressSpace) Call(id ua.NodeID, args []ua.Variant) ([]ua.Variant, ua.StatusCode) {
	n, err := a.Nodes.Get(id)
	if err != nil {
		return nil, ua.BadNodeIdUnknown
	}
	if n.NodeClass != ua.NodeClassMethod {
		return nil, ua.BadNodeIdInvalid
	}
	if !n.Executable || !n.UserExecutable {
		return nil, ua.BadUserAccessDenied
	}
	a.methodsMu.RLock()
	fn, ok := a.methods[id]
	a.methodsMu.RUnlock()
	if !ok {
		return nil, ua.BadInternalError
	}
	return fn(args)
}

// Read implements the subset of the Read service this core handles
// directly: a Variable's Value attribute, dispatching to a data-source
// callback when present.
func (a *AddressSpace) Read(id ua.NodeID, numericRange string) (ua.DataValue, ua.StatusCode) {
	n, err := a.Nodes.Get(id)
	if err != nil {
		return ua.DataValue{}, ua.BadNodeIdUnknown
	}
	if n.NodeClass != ua.NodeClassVariable {
		return ua.DataValue{}, ua.BadNodeIdInvalid
	}
	if n.IsDataSource {
		if n.ReadSource == nil {
			return ua.DataValue{}, ua.BadInternalError
		}
		dv, status := n.ReadSource(numericRange)
		return dv, status
	}
	if numericRange != "" {
		return ua.DataValue{}, ua.BadIndexRangeInvalid
	}
	return n.Value, ua.StatusOK
}

// Write implements the Value-attribute subset of the Write service. A
// stored (non-data-source) value is written through NodeStore.SetValue's
// copy-on-write rather than by mutating n in place, since n is the same
// *ua.Node pointer concurrent lock-free readers (Read, ForEachChild) may
// be holding.
func (a *AddressSpace) Write(id ua.NodeID, value ua.DataValue, numericRange string) ua.StatusCode {
	n, err := a.Nodes.Get(id)
	if err != nil {
		return ua.BadNodeIdUnknown
	}
	if n.NodeClass != ua.NodeClassVariable {
		return ua.BadNodeIdInvalid
	}
	if n.AccessLevel&ua.AccessLevelCurrentWrite == 0 {
		return ua.BadUserAccessDenied
	}
	if n.IsDataSource {
		if n.WriteSource == nil {
			return ua.BadInternalError
		}
		return n.WriteSource(value, numericRange)
	}
	if numericRange != "" {
		return ua.BadIndexRangeInvalid
	}
	if err := a.Nodes.SetValue(id, value); err != nil {
		return ua.BadNodeIdUnknown
	}
	return ua.StatusOK
}

func (a *AddressSpace) logAdd(id ua.NodeID, class ua.NodeClass) {
	log.Debug().Str("nodeId", id.String()).Str("class", class.String()).Msg("address space node added")
}
