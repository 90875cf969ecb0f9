package statusvars

import (
	"testing"
	"time"

	"github.com/sebastiankruger/opcua-core/internal/addrspace"
	"github.com/sebastiankruger/opcua-core/internal/store"
	"github.com/sebastiankruger/opcua-core/internal/ua"
)

func TestNamespaceArrayReadReflectsTable(t *testing.T) {
	ns := store.NewNamespaceTable("urn:test-server")
	v := New(addrspace.BuildInfo{ProductName: "test"}, ns, time.Unix(0, 0))

	dv, status := v.NamespaceArrayReadSource()("")
	if status != ua.StatusOK {
		t.Fatalf("unexpected status %v", status)
	}
	got, ok := dv.Value.Value.([]string)
	if !ok || len(got) != 2 {
		t.Fatalf("expected 2-entry namespace array, got %#v", dv.Value.Value)
	}
}

func TestNamespaceArrayReadRejectsRange(t *testing.T) {
	ns := store.NewNamespaceTable("urn:test-server")
	v := New(addrspace.BuildInfo{}, ns, time.Unix(0, 0))

	_, status := v.NamespaceArrayReadSource()("0:1")
	if status != ua.BadIndexRangeInvalid {
		t.Fatalf("expected BadIndexRangeInvalid, got %v", status)
	}
}

func TestNamespaceArrayWriteAppendsNewEntries(t *testing.T) {
	ns := store.NewNamespaceTable("urn:test-server")
	v := New(addrspace.BuildInfo{}, ns, time.Unix(0, 0))

	write := v.NamespaceArrayWriteSource()
	extended := append(ns.All(), "urn:extra")
	status := write(ua.NewDataValue(extended, ua.StatusOK, time.Now(), time.Now()), "")
	if status != ua.StatusOK {
		t.Fatalf("expected write to succeed, got %v", status)
	}
	if ns.Size() != 3 {
		t.Fatalf("expected 3 namespaces after append, got %d", ns.Size())
	}
}

func TestNamespaceArrayWriteRejectsNonPrefix(t *testing.T) {
	ns := store.NewNamespaceTable("urn:test-server")
	v := New(addrspace.BuildInfo{}, ns, time.Unix(0, 0))

	write := v.NamespaceArrayWriteSource()
	status := write(ua.NewDataValue([]string{"urn:totally-different"}, ua.StatusOK, time.Now(), time.Now()), "")
	if status != ua.BadInvalidArgument {
		t.Fatalf("expected BadInvalidArgument, got %v", status)
	}
}

func TestServiceLevelIsMax(t *testing.T) {
	v := New(addrspace.BuildInfo{}, store.NewNamespaceTable("urn:x"), time.Unix(0, 0))
	dv, _ := v.ServiceLevelReadSource()("")
	if dv.Value.Value.(uint8) != 255 {
		t.Fatalf("expected 255, got %v", dv.Value.Value)
	}
}

func TestServerStatusReflectsState(t *testing.T) {
	v := New(addrspace.BuildInfo{ProductName: "core"}, store.NewNamespaceTable("urn:x"), time.Unix(500, 0))
	v.SetState(ServerStateShutdown)
	dv, _ := v.ServerStatusReadSource()("")
	status := dv.Value.Value.(ServerStatusValue)
	if status.State != ServerStateShutdown {
		t.Fatalf("expected Shutdown state, got %v", status.State)
	}
}
