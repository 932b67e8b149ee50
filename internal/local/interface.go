// Package local is the client's persistence layer: the remote document
// cache, the per-user mutation queue and the target allocation registry
// the sync engine coordinates against.
package local

import (
	"github.com/syntrixbase/syntrix-go/internal/auth"
	"github.com/syntrixbase/syntrix-go/internal/remote"
	"github.com/syntrixbase/syntrix-go/pkg/model"
)

// LocalWriteResult is the outcome of applying a mutation batch locally:
// the assigned batch ID and the overlay view of every affected key.
type LocalWriteResult struct {
	BatchID model.BatchID
	Changes map[model.DocumentKey]model.MaybeDocument
}

// ViewChanges reports, from a view's perspective, which keys entered and
// left its result set. The store uses them to pin cached documents that
// some view displays.
type ViewChanges struct {
	TargetID model.TargetID
	Added    model.DocumentKeySet
	Removed  model.DocumentKeySet
}

// Store is the local store contract the sync engine consumes. All
// methods are invoked from the worker queue.
type Store interface {
	// AllocateQuery assigns a target ID to the query and registers it.
	AllocateQuery(q model.Query) (model.QueryData, error)

	// ReleaseQuery drops the allocation for the query.
	ReleaseQuery(q model.Query) error

	// ExecuteQuery runs the query over cached documents with pending
	// mutations applied, returning matches in query order.
	ExecuteQuery(q model.Query) ([]*model.Document, error)

	// GetRemoteDocumentKeys returns the keys the server has confirmed
	// for the target at its current resume point.
	GetRemoteDocumentKeys(targetID model.TargetID) model.DocumentKeySet

	// WriteLocally appends a mutation batch to the current user's queue
	// and reports the locally visible changes.
	WriteLocally(mutations []model.Mutation) (*LocalWriteResult, error)

	// ApplyRemoteEvent folds a remote event into the cache and target
	// state, returning the changed document views.
	ApplyRemoteEvent(event *remote.Event) (map[model.DocumentKey]model.MaybeDocument, error)

	// AcknowledgeBatch applies a server acknowledgment to the cache and
	// removes the batch from the queue.
	AcknowledgeBatch(result *model.MutationBatchResult) (map[model.DocumentKey]model.MaybeDocument, error)

	// RejectBatch drops a rejected batch and reports the keys whose
	// local view changed as a result.
	RejectBatch(batchID model.BatchID) (map[model.DocumentKey]model.MaybeDocument, error)

	// NotifyViewChanges updates document pinning from view membership.
	NotifyViewChanges(changes []ViewChanges)

	// NextMutationBatch returns the first queued batch with an ID
	// greater than afterBatchID, or nil. The remote store uses it to
	// fill the write pipeline.
	NextMutationBatch(afterBatchID model.BatchID) *model.MutationBatch

	// HighestUnacknowledgedBatchID returns the newest queued batch ID,
	// or model.BatchIDUnknown when the queue is empty.
	HighestUnacknowledgedBatchID() model.BatchID

	// HandleUserChange swaps the mutation queue to the new user's and
	// reports every key whose local view may have changed.
	HandleUserChange(user auth.User) (map[model.DocumentKey]model.MaybeDocument, error)
}

// DocumentCache stores the latest known server state per document. The
// in-memory implementation lives here; a Pebble-backed one in the
// pebblecache subpackage.
type DocumentCache interface {
	// Get returns the cached entry for key, or nil.
	Get(key model.DocumentKey) (model.MaybeDocument, error)

	// Set stores an entry, replacing any previous one for the key.
	Set(doc model.MaybeDocument) error

	// Keys returns every cached key whose path lives directly in the
	// given collection.
	Keys(collection string) ([]model.DocumentKey, error)

	// Close releases cache resources.
	Close() error
}
