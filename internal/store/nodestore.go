// Package store implements the Node Store and Namespace Table: the
// content-addressed graph of Nodes and the namespace-index -> URI
// mapping every NodeId is scoped by.
package store

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/sebastiankruger/opcua-core/internal/ua"
)

// ErrNotFound is returned by Get/Remove when the NodeId is absent.
var ErrNotFound = errors.New("node not found")

// ErrDuplicateID is returned by Insert when the NodeId already exists.
var ErrDuplicateID = errors.New("duplicate node id")

// ExternalNodeStore lets a namespace be backed by an external store
// instead of this one. Only reads are forwarded; external stores are
// destroyed (Close) on server shutdown.
type ExternalNodeStore interface {
	Get(id ua.NodeID) (*ua.Node, error)
	Close() error
}

// NodeStore holds Nodes keyed by NodeId. Reads are lock-free: writers
// build a new snapshot map and atomically swap it in, so a reader always
// sees a consistent snapshot with respect to any single writer's commit.
type NodeStore struct {
	snapshot atomic.Value // holds map[ua.NodeID]*ua.Node

	writerMu sync.Mutex // serializes writers; readers never block

	externalMu sync.RWMutex
	external   map[uint16]ExternalNodeStore
}

// NewNodeStore creates an empty store.
func NewNodeStore() *NodeStore {
	s := &NodeStore{external: make(map[uint16]ExternalNodeStore)}
	s.snapshot.Store(make(map[ua.NodeID]*ua.Node))
	return s
}

func (s *NodeStore) load() map[ua.NodeID]*ua.Node {
	return s.snapshot.Load().(map[ua.NodeID]*ua.Node)
}

// RegisterExternal attaches an ExternalNodeStore for the given namespace
// index; all Get calls for NodeIds in that namespace are forwarded to it
// instead of consulting the local map.
func (s *NodeStore) RegisterExternal(ns uint16, ext ExternalNodeStore) {
	s.externalMu.Lock()
	defer s.externalMu.Unlock()
	s.external[ns] = ext
}

// CloseExternals destroys every registered external store. Called
// during server teardown, after sessions and channels are gone.
func (s *NodeStore) CloseExternals() error {
	s.externalMu.Lock()
	defer s.externalMu.Unlock()
	var firstErr error
	for ns, ext := range s.external {
		if err := ext.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "closing external store for namespace %d", ns)
		}
	}
	s.external = make(map[uint16]ExternalNodeStore)
	return firstErr
}

func (s *NodeStore) externalFor(ns uint16) (ExternalNodeStore, bool) {
	s.externalMu.RLock()
	defer s.externalMu.RUnlock()
	ext, ok := s.external[ns]
	return ext, ok
}

// Get looks up a Node by id, forwarding to an external store if one is
// registered for the id's namespace.
func (s *NodeStore) Get(id ua.NodeID) (*ua.Node, error) {
	if ext, ok := s.externalFor(id.NamespaceIndex); ok {
		return ext.Get(id)
	}
	n, ok := s.load()[id]
	if !ok {
		return nil, ErrNotFound
	}
	return n, nil
}

// Has reports existence without the NotFound error allocation.
func (s *NodeStore) Has(id ua.NodeID) bool {
	if ext, ok := s.externalFor(id.NamespaceIndex); ok {
		_, err := ext.Get(id)
		return err == nil
	}
	_, ok := s.load()[id]
	return ok
}

// Insert adds a new Node, failing with ErrDuplicateID if the NodeId is
// already present. NodeIds are unique across the store.
func (s *NodeStore) Insert(n *ua.Node) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	old := s.load()
	if _, exists := old[n.NodeID]; exists {
		return ErrDuplicateID
	}
	next := make(map[ua.NodeID]*ua.Node, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[n.NodeID] = n
	s.snapshot.Store(next)
	return nil
}

// Replace overwrites an existing Node's entry in place, failing with
// ErrNotFound if the NodeId is not already present. Used to attach
// data-source callbacks to a placeholder node after construction.
func (s *NodeStore) Replace(n *ua.Node) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	old := s.load()
	if _, exists := old[n.NodeID]; !exists {
		return ErrNotFound
	}
	next := make(map[ua.NodeID]*ua.Node, len(old))
	for k, v := range old {
		next[k] = v
	}
	next[n.NodeID] = n
	s.snapshot.Store(next)
	return nil
}

// AddReference appends ref to the node at id via copy-on-write: the node
// is cloned with its References slice extended, and the clone is swapped
// into a fresh snapshot map under writerMu. This is required (rather than
// mutating the existing *Node in place) because the same pointer may be
// held by a concurrent lock-free reader iterating ForEachChild; mutating
// it directly would let that reader observe a torn slice.
func (s *NodeStore) AddReference(id ua.NodeID, ref ua.Reference) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	old := s.load()
	n, exists := old[id]
	if !exists {
		return ErrNotFound
	}
	clone := *n
	clone.References = append(append([]ua.Reference(nil), n.References...), ref)
	next := make(map[ua.NodeID]*ua.Node, len(old))
	for k, v := range old {
		next[k] = v
	}
	next[id] = &clone
	s.snapshot.Store(next)
	return nil
}

// SetValue overwrites the stored Value of a Variable node via
// copy-on-write, for the same reason AddReference does not mutate the
// existing *Node in place: the pointer may already be held by a
// concurrent lock-free reader.
func (s *NodeStore) SetValue(id ua.NodeID, value ua.DataValue) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	old := s.load()
	n, exists := old[id]
	if !exists {
		return ErrNotFound
	}
	clone := *n
	clone.Value = value
	next := make(map[ua.NodeID]*ua.Node, len(old))
	for k, v := range old {
		next[k] = v
	}
	next[id] = &clone
	s.snapshot.Store(next)
	return nil
}

// Remove deletes a Node. It does not prune dangling references pointing
// at it; those are filtered out on read by ForEachChild.
func (s *NodeStore) Remove(id ua.NodeID) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	old := s.load()
	if _, exists := old[id]; !exists {
		return ErrNotFound
	}
	next := make(map[ua.NodeID]*ua.Node, len(old))
	for k, v := range old {
		if k != id {
			next[k] = v
		}
	}
	s.snapshot.Store(next)
	return nil
}

// ForEachChild invokes fn(childId, isInverse, refTypeId) for every
// outgoing reference of parent, in insertion order, including inverse
// references, skipping any target that no longer resolves to a Node.
func (s *NodeStore) ForEachChild(parent ua.NodeID, fn func(child ua.NodeID, isInverse bool, refType ua.NodeID)) error {
	n, err := s.Get(parent)
	if err != nil {
		return err
	}
	for _, r := range n.References {
		if !s.Has(r.TargetID.NodeID) {
			continue
		}
		fn(r.TargetID.NodeID, r.IsInverse, r.ReferenceTypeID)
	}
	return nil
}

// Len reports the number of locally-stored nodes (excludes external
// delegation targets).
func (s *NodeStore) Len() int {
	return len(s.load())
}
