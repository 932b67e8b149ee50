// Package remote defines the client's channel to the backend: the watch
// and write interfaces the sync engine drives, the remote event types it
// consumes, and the document transaction primitive.
package remote

import "github.com/syntrixbase/syntrix-go/pkg/model"

// OnlineState describes the client's view of the watch stream health.
type OnlineState int

const (
	// OnlineStateUnknown is the initial state, before the first stream
	// attempt settles.
	OnlineStateUnknown OnlineState = iota
	// OnlineStateOnline means the watch stream is established.
	OnlineStateOnline
	// OnlineStateOffline means the client has given up on the stream for
	// now; snapshots are served from cache.
	OnlineStateOffline
)

func (s OnlineState) String() string {
	switch s {
	case OnlineStateOnline:
		return "online"
	case OnlineStateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Store is the sync engine's handle on the backend connection.
// Implementations are driven from the worker queue and must deliver all
// callback invocations back onto it.
type Store interface {
	// Listen starts watching the target described by data.
	Listen(data model.QueryData)

	// StopListening tears down the watch for the target.
	StopListening(targetID model.TargetID)

	// FillWritePipeline sends enqueued mutation batches that are not yet
	// in flight.
	FillWritePipeline()

	// CreateTransaction returns a fresh transaction. Transactions are
	// single-use; a failed commit requires a new one.
	CreateTransaction() *Transaction

	// CanUseNetwork reports whether the network is enabled and usable.
	CanUseNetwork() bool

	// HandleCredentialChange restarts the streams with fresh credentials.
	HandleCredentialChange()
}

// Callback is implemented by the sync engine and invoked by the Store for
// every signal arriving from the backend. Calls are made on the worker.
type Callback interface {
	// HandleRemoteEvent delivers an aggregated watch event.
	HandleRemoteEvent(event *Event)

	// HandleRejectedListen reports a target the backend rejected.
	HandleRejectedListen(targetID model.TargetID, err error)

	// HandleSuccessfulWrite reports an acknowledged mutation batch.
	HandleSuccessfulWrite(result *model.MutationBatchResult)

	// HandleRejectedWrite reports a rejected mutation batch.
	HandleRejectedWrite(batchID model.BatchID, err error)

	// HandleOnlineStateChange reports stream health transitions.
	HandleOnlineStateChange(state OnlineState)

	// GetRemoteKeysForTarget returns the keys the server has confirmed
	// for the target, used to detect deletions implied by a CURRENT
	// marker.
	GetRemoteKeysForTarget(targetID model.TargetID) model.DocumentKeySet
}
