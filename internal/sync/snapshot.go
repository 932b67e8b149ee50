package sync

import "github.com/syntrixbase/syntrix-go/pkg/model"

// DocumentChangeType classifies one document's transition in a view.
type DocumentChangeType int

const (
	// DocumentRemoved: the document left the result set.
	DocumentRemoved DocumentChangeType = iota
	// DocumentAdded: the document entered the result set.
	DocumentAdded
	// DocumentModified: the document changed while in the result set.
	DocumentModified
	// DocumentMetadata: only pending-write state changed.
	DocumentMetadata
)

func (t DocumentChangeType) String() string {
	switch t {
	case DocumentRemoved:
		return "removed"
	case DocumentAdded:
		return "added"
	case DocumentModified:
		return "modified"
	case DocumentMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// DocumentViewChange is one document transition carried by a snapshot.
type DocumentViewChange struct {
	Type DocumentChangeType
	Doc  *model.Document
}

// changeSet accumulates per-document changes while a view update is
// computed, collapsing successive changes to the same key.
type changeSet struct {
	changes map[model.DocumentKey]DocumentViewChange
}

func newChangeSet() *changeSet {
	return &changeSet{changes: make(map[model.DocumentKey]DocumentViewChange)}
}

// add merges change into the set. The transitions mirror how two
// consecutive deltas compose: added+modified stays added with the newer
// document, added+removed cancels out, modified+removed is removed, and
// so on.
func (s *changeSet) add(change DocumentViewChange) {
	key := change.Doc.Key()
	old, ok := s.changes[key]
	if !ok {
		s.changes[key] = change
		return
	}
	switch {
	case old.Type == DocumentAdded && change.Type == DocumentModified:
		s.changes[key] = DocumentViewChange{Type: DocumentAdded, Doc: change.Doc}
	case old.Type == DocumentAdded && change.Type == DocumentRemoved:
		delete(s.changes, key)
	case old.Type == DocumentModified && change.Type == DocumentRemoved:
		s.changes[key] = DocumentViewChange{Type: DocumentRemoved, Doc: change.Doc}
	case old.Type == DocumentRemoved && change.Type == DocumentAdded:
		s.changes[key] = DocumentViewChange{Type: DocumentModified, Doc: change.Doc}
	case old.Type == DocumentMetadata && change.Type == DocumentRemoved:
		s.changes[key] = DocumentViewChange{Type: DocumentRemoved, Doc: change.Doc}
	default:
		s.changes[key] = change
	}
}

// SyncState reports whether a view has caught up with the server.
type SyncState int

const (
	// SyncStateNone: the view has not produced a snapshot yet. The first
	// ApplyChanges always transitions out of it, which is what makes the
	// initial snapshot fire even for an empty result.
	SyncStateNone SyncState = iota
	// SyncStateLocal: serving from cache; the server has not confirmed
	// the full result set.
	SyncStateLocal
	// SyncStateSynced: the target is CURRENT and nothing is in limbo.
	SyncStateSynced
)

func (s SyncState) String() string {
	switch s {
	case SyncStateSynced:
		return "synced"
	case SyncStateLocal:
		return "local"
	default:
		return "none"
	}
}

// ViewSnapshot is an immutable view of a query result delivered to the
// event manager.
type ViewSnapshot struct {
	Query        model.Query
	Documents    *model.DocumentSet
	OldDocuments *model.DocumentSet
	Changes      []DocumentViewChange
	MutatedKeys  model.DocumentKeySet

	// FromCache is true while the view is in SyncStateLocal.
	FromCache bool

	// SyncStateChanged is true when this snapshot's sync state differs from
	// the previous one: on a view's first snapshot, and whenever it crosses
	// the local/synced boundary in either direction.
	SyncStateChanged bool
}

// HasPendingWrites reports whether any displayed document carries
// unacknowledged mutations.
func (s *ViewSnapshot) HasPendingWrites() bool {
	return s.MutatedKeys.Len() > 0
}

// LimboChangeType says whether a key entered or left limbo in a view.
type LimboChangeType int

const (
	// LimboAdded: the key became limbo in the reporting view.
	LimboAdded LimboChangeType = iota
	// LimboRemoved: the key is no longer limbo in the reporting view.
	LimboRemoved
)

// LimboDocumentChange is a per-view limbo transition.
type LimboDocumentChange struct {
	Type LimboChangeType
	Key  model.DocumentKey
}

// ViewChange is the outcome of applying changes to a view: an optional
// snapshot (nil when nothing observable changed) plus limbo transitions.
type ViewChange struct {
	Snapshot     *ViewSnapshot
	LimboChanges []LimboDocumentChange
}
