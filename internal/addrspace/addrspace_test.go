package addrspace

import (
	"testing"
	"time"

	"github.com/sebastiankruger/opcua-core/internal/store"
	"github.com/sebastiankruger/opcua-core/internal/ua"
)

func newBootstrapped(t *testing.T) *AddressSpace {
	t.Helper()
	ns := store.NewNamespaceTable("urn:example:server")
	ns.Add("urn:example:extra")
	nodes := store.NewNodeStore()
	a := New(nodes, ns)
	a.SetClock(func() time.Time { return time.Unix(0, 0).UTC() })
	if err := a.Bootstrap("urn:example:server", "urn:example:product", BuildInfo{ProductName: "test"}); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return a
}

func TestBootstrapBuildsHierarchy(t *testing.T) {
	a := newBootstrapped(t)

	for _, id := range []ua.NodeID{ua.References, ua.HasSubtype, ua.Organizes, ua.HasComponent, ua.HasTypeDefinition,
		ua.BaseObjectType, ua.BaseVariableType, ua.BaseDataType, ua.FolderType,
		ua.RootFolder, ua.ObjectsFolder, ua.TypesFolder, ua.ViewsFolder,
		ua.ServerObject, ua.ServerNamespaceArray, ua.ServerServerStatus, ua.Int32Type, ua.DoubleType} {
		if !a.Nodes.Has(id) {
			t.Fatalf("expected bootstrapped node %v to exist", id)
		}
	}

	// Objects folder carries exactly one HasTypeDefinition reference,
	// to FolderType.
	td, ok := mustNode(t, a, ua.ObjectsFolder).TypeDefinition()
	if !ok || td != ua.FolderType {
		t.Fatalf("ObjectsFolder type definition = %v, %v", td, ok)
	}
}

func mustNode(t *testing.T, a *AddressSpace, id ua.NodeID) *ua.Node {
	t.Helper()
	n, err := a.Nodes.Get(id)
	if err != nil {
		t.Fatalf("Get(%v): %v", id, err)
	}
	return n
}

func TestAddVariableNodeUnderObjectsFolder(t *testing.T) {
	a := newBootstrapped(t)

	id, err := a.AddVariableNode(AddNodeRequest{
		RequestedNodeID: ua.NewString(1, "the.answer"),
		ParentNodeID:    ua.ObjectsFolder,
		ReferenceTypeID: ua.Organizes,
		BrowseName:      ua.QualifiedName{NamespaceIndex: 1, Name: "the.answer"},
		DisplayName:     ua.LocalizedText{Text: "the.answer"},
		TypeDefinition:  ua.BaseVariableType,
	}, ua.Int32Type, ua.ValueRankScalar, nil, ua.AccessLevelCurrentRead|ua.AccessLevelCurrentWrite, 0, false, int32(42))
	if err != nil {
		t.Fatalf("AddVariableNode: %v", err)
	}

	dv, status := a.Read(id, "")
	if status != ua.StatusOK {
		t.Fatalf("Read status = %v", status)
	}
	if v, ok := dv.Value.Value.(int32); !ok || v != 42 {
		t.Fatalf("Read value = %v", dv.Value.Value)
	}

	var found bool
	a.Nodes.ForEachChild(ua.ObjectsFolder, func(c ua.NodeID, isInverse bool, refType ua.NodeID) {
		if c == id && !isInverse && refType == ua.Organizes {
			found = true
		}
	})
	if !found {
		t.Fatal("expected ObjectsFolder -> the.answer Organizes reference")
	}
}

func TestAddNodeRejectsUnknownTypeDefinition(t *testing.T) {
	a := newBootstrapped(t)
	_, err := a.AddObjectNode(AddNodeRequest{
		ParentNodeID:    ua.ObjectsFolder,
		ReferenceTypeID: ua.Organizes,
		BrowseName:      ua.QualifiedName{NamespaceIndex: 1, Name: "Widget"},
		DisplayName:     ua.LocalizedText{Text: "Widget"},
		TypeDefinition:  ua.NewNumeric(1, 999999),
	}, 0)
	if err == nil {
		t.Fatal("expected error for unknown type definition")
	}
	if ua.CodeOf(err) != ua.BadNodeIdUnknown {
		t.Fatalf("expected BadNodeIdUnknown, got %v", ua.CodeOf(err))
	}
}

func TestAddNodeRejectsIncompatibleTypeDefinition(t *testing.T) {
	a := newBootstrapped(t)
	// BaseVariableType is a VariableType, not compatible with an Object.
	_, err := a.AddObjectNode(AddNodeRequest{
		ParentNodeID:    ua.ObjectsFolder,
		ReferenceTypeID: ua.Organizes,
		BrowseName:      ua.QualifiedName{NamespaceIndex: 1, Name: "Widget"},
		DisplayName:     ua.LocalizedText{Text: "Widget"},
		TypeDefinition:  ua.BaseVariableType,
	}, 0)
	if err == nil || ua.CodeOf(err) != ua.BadTypeMismatch {
		t.Fatalf("expected BadTypeMismatch, got %v", err)
	}
}

func TestAddNodeRollsBackOnFailure(t *testing.T) {
	a := newBootstrapped(t)
	id := ua.NewString(1, "rollback-me")
	before := a.Nodes.Len()

	_, err := a.AddObjectNode(AddNodeRequest{
		RequestedNodeID: id,
		ParentNodeID:    ua.ObjectsFolder,
		ReferenceTypeID: ua.Organizes,
		BrowseName:      ua.QualifiedName{NamespaceIndex: 1, Name: "rollback-me"},
		DisplayName:     ua.LocalizedText{Text: "rollback-me"},
		TypeDefinition:  ua.NewNumeric(1, 999999), // unknown type definition
	}, 0)
	if err == nil {
		t.Fatal("expected failure")
	}
	if a.Nodes.Has(id) {
		t.Fatal("expected rollback to remove the partially-inserted node")
	}
	if a.Nodes.Len() != before {
		t.Fatalf("expected node count unchanged after rollback, got %d vs %d", a.Nodes.Len(), before)
	}
}

func TestAddNodeGeneratesIDWhenRequestedIsNull(t *testing.T) {
	a := newBootstrapped(t)
	id, err := a.AddObjectNode(AddNodeRequest{
		ParentNodeID:    ua.ObjectsFolder,
		ReferenceTypeID: ua.Organizes,
		BrowseName:      ua.QualifiedName{NamespaceIndex: 1, Name: "Generated"},
		DisplayName:     ua.LocalizedText{Text: "Generated"},
	}, 0)
	if err != nil {
		t.Fatalf("AddObjectNode: %v", err)
	}
	if id.IsNull() {
		t.Fatal("expected a generated non-null id")
	}
}

func TestMethodCallDispatchesRegisteredCallback(t *testing.T) {
	a := newBootstrapped(t)
	id, err := a.AddMethodNode(AddNodeRequest{
		ParentNodeID:    ua.ObjectsFolder,
		ReferenceTypeID: ua.HasComponent,
		BrowseName:      ua.QualifiedName{NamespaceIndex: 1, Name: "Echo"},
		DisplayName:     ua.LocalizedText{Text: "Echo"},
	}, true, "echo")
	if err != nil {
		t.Fatalf("AddMethodNode: %v", err)
	}
	if err := a.RegisterMethod(id, func(args []ua.Variant) ([]ua.Variant, ua.StatusCode) {
		return args, ua.StatusOK
	}); err != nil {
		t.Fatalf("RegisterMethod: %v", err)
	}

	out, status := a.Call(id, []ua.Variant{{Value: int32(5)}})
	if status != ua.StatusOK || len(out) != 1 || out[0].Value.(int32) != 5 {
		t.Fatalf("unexpected call result %v %v", out, status)
	}
}

func TestMethodCallWithoutCallbackFails(t *testing.T) {
	a := newBootstrapped(t)
	id, err := a.AddMethodNode(AddNodeRequest{
		ParentNodeID:    ua.ObjectsFolder,
		ReferenceTypeID: ua.HasComponent,
		BrowseName:      ua.QualifiedName{NamespaceIndex: 1, Name: "Hollow"},
		DisplayName:     ua.LocalizedText{Text: "Hollow"},
	}, true, "")
	if err != nil {
		t.Fatalf("AddMethodNode: %v", err)
	}
	if _, status := a.Call(id, nil); status == ua.StatusOK {
		t.Fatal("expected failure for method with no registered callback")
	}
}

func TestMethodCallNotExecutableFails(t *testing.T) {
	a := newBootstrapped(t)
	id, _ := a.AddMethodNode(AddNodeRequest{
		ParentNodeID:    ua.ObjectsFolder,
		ReferenceTypeID: ua.HasComponent,
		BrowseName:      ua.QualifiedName{NamespaceIndex: 1, Name: "Frozen"},
		DisplayName:     ua.LocalizedText{Text: "Frozen"},
	}, false, "frozen")
	a.RegisterMethod(id, func(args []ua.Variant) ([]ua.Variant, ua.StatusCode) { return nil, ua.StatusOK })

	if _, status := a.Call(id, nil); status != ua.BadUserAccessDenied {
		t.Fatalf("expected BadUserAccessDenied, got %v", status)
	}
}

func TestDataSourceVariableRejectsNumericRange(t *testing.T) {
	a := newBootstrapped(t)
	id, err := a.AddDataSourceVariableNode(AddNodeRequest{
		ParentNodeID:    ua.ObjectsFolder,
		ReferenceTypeID: ua.Organizes,
		BrowseName:      ua.QualifiedName{NamespaceIndex: 1, Name: "Computed"},
		DisplayName:     ua.LocalizedText{Text: "Computed"},
	}, ua.Int32Type, ua.ValueRankScalar, ua.AccessLevelCurrentRead,
		func(numericRange string) (ua.DataValue, ua.StatusCode) {
			if numericRange != "" {
				return ua.DataValue{}, ua.BadIndexRangeInvalid
			}
			return ua.NewDataValue(int32(7), ua.StatusOK, time.Time{}, time.Time{}), ua.StatusOK
		}, nil)
	if err != nil {
		t.Fatalf("AddDataSourceVariableNode: %v", err)
	}

	if _, status := a.Read(id, "0:1"); status != ua.BadIndexRangeInvalid {
		t.Fatalf("expected BadIndexRangeInvalid, got %v", status)
	}
	dv, status := a.Read(id, "")
	if status != ua.StatusOK || dv.Value.Value.(int32) != 7 {
		t.Fatalf("unexpected read result: %v %v", dv, status)
	}
}
