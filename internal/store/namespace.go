package store

import "sync"

// NamespaceTable is the ordered namespace-index -> URI mapping.
// Index 0 is always "http://opcfoundation.org/UA/"; index
// 1 is the server's own application URI. Both are preinstalled by
// NewNamespaceTable.
type NamespaceTable struct {
	mu   sync.RWMutex
	uris []string
}

const OpcUaNamespaceURI = "http://opcfoundation.org/UA/"

// NewNamespaceTable preinstalls ns=0 (OPC UA) and ns=1 (the server's own
// application URI).
func NewNamespaceTable(serverApplicationURI string) *NamespaceTable {
	t := &NamespaceTable{uris: []string{OpcUaNamespaceURI, serverApplicationURI}}
	return t
}

// Add appends uri if absent and returns its index; if uri is already
// present, returns the existing index and leaves the table unchanged,
// so repeated calls are idempotent.
func (t *NamespaceTable) Add(uri string) uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, u := range t.uris {
		if u == uri {
			return uint16(i)
		}
	}
	t.uris = append(t.uris, uri)
	return uint16(len(t.uris) - 1)
}

// Size returns the number of namespaces registered.
func (t *NamespaceTable) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.uris)
}

// URIAt returns the URI at index, or "" and false if out of range.
func (t *NamespaceTable) URIAt(index uint16) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(index) >= len(t.uris) {
		return "", false
	}
	return t.uris[index], true
}

// Exists reports whether index is a valid namespace index. Every
// namespace index used in a NodeId must exist here before the node is
// inserted.
func (t *NamespaceTable) Exists(index uint16) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int(index) < len(t.uris)
}

// All returns a snapshot copy of every namespace URI in index order,
// backing the NamespaceArray data source.
func (t *NamespaceTable) All() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.uris))
	copy(out, t.uris)
	return out
}

// AppendIfPrefix implements the NamespaceArray write semantics: the
// write value must keep the existing table as an unmodified prefix,
// appending only genuinely new entries. Returns false without mutating
// if value is not a superset-prefix of the current table.
func (t *NamespaceTable) AppendIfPrefix(value []string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(value) < len(t.uris) {
		return false
	}
	for i, u := range t.uris {
		if value[i] != u {
			return false
		}
	}
	t.uris = append(t.uris, value[len(t.uris):]...)
	return true
}
