// Package sync implements the sync engine: the controller reconciling
// locally cached documents, locally queued mutations and remote watch
// events into per-query views with limbo resolution and write
// acknowledgment ordering.
//
// All methods must be invoked from the client's worker queue; the engine
// holds no locks.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/syntrixbase/syntrix-go/internal/auth"
	"github.com/syntrixbase/syntrix-go/internal/common"
	"github.com/syntrixbase/syntrix-go/internal/local"
	"github.com/syntrixbase/syntrix-go/internal/query"
	"github.com/syntrixbase/syntrix-go/internal/remote"
	"github.com/syntrixbase/syntrix-go/pkg/model"
)

// Callback is implemented by the event manager to receive view snapshots
// and listen failures from the engine.
type Callback interface {
	// OnViewSnapshots delivers a batch of new snapshots, in the order
	// the signals producing them arrived.
	OnViewSnapshots(snapshots []*ViewSnapshot)

	// OnError reports a failed user listen. The query is no longer
	// active when this fires.
	OnError(q model.Query, err error)

	// HandleOnlineStateChange forwards stream health to listeners.
	HandleOnlineStateChange(state remote.OnlineState)
}

// queryView binds a query to its target ID and materialized view.
type queryView struct {
	query    model.Query
	targetID model.TargetID
	view     *View
}

// Engine is the sync engine. Construction is two-phase: New, then
// SetCallback before the first operation (the engine and the remote
// store reference each other, so one of the references is installed
// late).
type Engine struct {
	localStore  local.Store
	remoteStore remote.Store

	queryViewsByQuery  map[string]*queryView
	queryViewsByTarget map[model.TargetID]*queryView

	limboTargetsByKey        map[model.DocumentKey]model.TargetID
	limboResolutionsByTarget map[model.TargetID]*limboResolution
	limboDocumentRefs        *referenceSet

	mutationCallbacks      map[auth.User]map[model.BatchID]*common.Completion
	pendingWritesCallbacks map[model.BatchID][]*common.Completion

	targetIDGenerator *model.TargetIDGenerator
	currentUser       auth.User
	callback          Callback
}

var _ remote.Callback = (*Engine)(nil)

// New creates an engine over the given stores for the initial user.
func New(localStore local.Store, remoteStore remote.Store, initialUser auth.User) *Engine {
	return &Engine{
		localStore:               localStore,
		remoteStore:              remoteStore,
		queryViewsByQuery:        make(map[string]*queryView),
		queryViewsByTarget:       make(map[model.TargetID]*queryView),
		limboTargetsByKey:        make(map[model.DocumentKey]model.TargetID),
		limboResolutionsByTarget: make(map[model.TargetID]*limboResolution),
		limboDocumentRefs:        newReferenceSet(),
		mutationCallbacks:        make(map[auth.User]map[model.BatchID]*common.Completion),
		pendingWritesCallbacks:   make(map[model.BatchID][]*common.Completion),
		targetIDGenerator:        model.NewSyncEngineTargetIDGenerator(),
		currentUser:              initialUser,
	}
}

// SetCallback installs the event manager callback. Must be called before
// any operation that emits snapshots.
func (e *Engine) SetCallback(cb Callback) { e.callback = cb }

func (e *Engine) assertCallback(method string) {
	if e.callback == nil {
		panic(fmt.Sprintf("sync: %s called before SetCallback", method))
	}
}

// Listen starts a new listen on q and returns the assigned target ID.
// The initial snapshot is emitted from local data before the remote
// store is told to listen. Listening twice to the same query is a
// programmer error.
func (e *Engine) Listen(q model.Query) (model.TargetID, error) {
	e.assertCallback("Listen")
	if _, ok := e.queryViewsByQuery[q.CanonicalID()]; ok {
		panic(fmt.Sprintf("sync: already listening to query %s", q.CanonicalID()))
	}

	queryData, err := e.localStore.AllocateQuery(q)
	if err != nil {
		return 0, err
	}
	snapshot, err := e.initializeViewAndComputeSnapshot(queryData)
	if err != nil {
		if relErr := e.localStore.ReleaseQuery(q); relErr != nil {
			slog.Warn("Failed to release query after listen error", "query", q, "err", relErr)
		}
		return 0, err
	}
	e.callback.OnViewSnapshots([]*ViewSnapshot{snapshot})

	e.remoteStore.Listen(queryData)
	return queryData.TargetID, nil
}

func (e *Engine) initializeViewAndComputeSnapshot(queryData model.QueryData) (*ViewSnapshot, error) {
	q := queryData.Query
	matcher, err := query.Compile(q)
	if err != nil {
		return nil, err
	}

	docs, err := e.localStore.ExecuteQuery(q)
	if err != nil {
		return nil, err
	}
	remoteKeys := e.localStore.GetRemoteDocumentKeys(queryData.TargetID)

	view := NewView(matcher, remoteKeys)
	viewDocChanges := view.ComputeDocChanges(docsAsChanges(docs), nil)
	viewChange := view.ApplyChanges(viewDocChanges, nil)
	if len(viewChange.LimboChanges) != 0 {
		panic("sync: view returned limbo documents before target ack from the server")
	}

	qv := &queryView{query: q, targetID: queryData.TargetID, view: view}
	e.queryViewsByQuery[q.CanonicalID()] = qv
	e.queryViewsByTarget[queryData.TargetID] = qv
	return viewChange.Snapshot, nil
}

// StopListening tears down the listen for q. Stopping a query that was
// never listened to is a programmer error.
func (e *Engine) StopListening(q model.Query) error {
	e.assertCallback("StopListening")

	qv, ok := e.queryViewsByQuery[q.CanonicalID()]
	if !ok {
		panic(fmt.Sprintf("sync: stop listening to unknown query %s", q.CanonicalID()))
	}
	if err := e.localStore.ReleaseQuery(q); err != nil {
		return err
	}
	e.remoteStore.StopListening(qv.targetID)
	e.removeAndCleanupQuery(qv)
	return nil
}

// WriteMutations applies a batch locally, registers the user completion
// and pokes the write pipeline. The completion resolves when the backend
// acknowledges or rejects the batch.
func (e *Engine) WriteMutations(mutations []model.Mutation, completion *common.Completion) {
	e.assertCallback("WriteMutations")

	result, err := e.localStore.WriteLocally(mutations)
	if err != nil {
		completion.Resolve(err)
		return
	}
	e.addUserCallback(result.BatchID, completion)

	e.emitNewSnapsAndNotifyLocalStore(result.Changes, nil)
	e.remoteStore.FillWritePipeline()
}

func (e *Engine) addUserCallback(batchID model.BatchID, completion *common.Completion) {
	callbacks := e.mutationCallbacks[e.currentUser]
	if callbacks == nil {
		callbacks = make(map[model.BatchID]*common.Completion)
		e.mutationCallbacks[e.currentUser] = callbacks
	}
	callbacks[batchID] = completion
}

// RegisterPendingWritesTask resolves completion once every mutation
// batch pending right now has been acknowledged or rejected.
func (e *Engine) RegisterPendingWritesTask(completion *common.Completion) {
	if !e.remoteStore.CanUseNetwork() {
		slog.Debug("The network is disabled; pending-writes completion will not resolve until it is enabled")
	}

	largest := e.localStore.HighestUnacknowledgedBatchID()
	if largest == model.BatchIDUnknown {
		completion.Resolve(nil)
		return
	}
	e.pendingWritesCallbacks[largest] = append(e.pendingWritesCallbacks[largest], completion)
}

func (e *Engine) resolvePendingWriteTasks(batchID model.BatchID) {
	for _, completion := range e.pendingWritesCallbacks[batchID] {
		completion.Resolve(nil)
	}
	delete(e.pendingWritesCallbacks, batchID)
}

func (e *Engine) failOutstandingPendingWritesTasks() {
	for _, completions := range e.pendingWritesCallbacks {
		for _, completion := range completions {
			completion.Resolve(model.NewStatusError(model.Cancelled,
				"pending writes completion cancelled due to a user change"))
		}
	}
	e.pendingWritesCallbacks = make(map[model.BatchID][]*common.Completion)
}

// HandleRemoteEvent implements remote.Callback.
func (e *Engine) HandleRemoteEvent(event *remote.Event) {
	e.assertCallback("HandleRemoteEvent")

	// Track received/removed documents on limbo resolution targets; the
	// flag feeds GetRemoteKeysForTarget so the watch aggregator can
	// synthesize deletes on CURRENT.
	for targetID, targetChange := range event.TargetChanges {
		resolution, ok := e.limboResolutionsByTarget[targetID]
		if !ok {
			continue
		}
		if targetChange.ChangeCount() > 1 {
			panic("sync: limbo resolution for single document contains multiple changes")
		}
		switch {
		case targetChange.Added.Len() > 0:
			resolution.receivedDocument = true
		case targetChange.Modified.Len() > 0:
			if !resolution.receivedDocument {
				panic("sync: received change for limbo target document without add")
			}
		case targetChange.Removed.Len() > 0:
			if !resolution.receivedDocument {
				panic("sync: received remove for limbo target document without add")
			}
			resolution.receivedDocument = false
		default:
			// Just a CURRENT marker or resume token update.
		}
	}

	changes, err := e.localStore.ApplyRemoteEvent(event)
	if err != nil {
		panic(fmt.Sprintf("sync: apply remote event: %v", err))
	}
	e.emitNewSnapsAndNotifyLocalStore(changes, event)
}

// HandleRejectedListen implements remote.Callback. Rejected limbo
// resolutions are converted into a synthetic deletion so the key is
// purged through the ordinary remote event path; rejected user listens
// are torn down and surfaced via OnError.
func (e *Engine) HandleRejectedListen(targetID model.TargetID, rejectErr error) {
	e.assertCallback("HandleRejectedListen")

	if resolution, ok := e.limboResolutionsByTarget[targetID]; ok {
		// The listen already failed; there is nothing to unlisten from.
		// Drop the bookkeeping and purge the key with a synthetic
		// deletion through the regular event path, which preserves the
		// local store's invariants without a dedicated purge API.
		limboKey := resolution.key
		delete(e.limboTargetsByKey, limboKey)
		delete(e.limboResolutionsByTarget, targetID)

		event := remote.NewEvent(model.VersionNone)
		event.DocumentUpdates[limboKey] = model.NewNoDocument(limboKey, model.VersionNone, false)
		event.ResolvedLimboDocuments.Add(limboKey)
		e.HandleRemoteEvent(event)
		return
	}

	qv, ok := e.queryViewsByTarget[targetID]
	if !ok {
		panic(fmt.Sprintf("sync: rejected listen for unknown target %d", targetID))
	}
	if err := e.localStore.ReleaseQuery(qv.query); err != nil {
		panic(fmt.Sprintf("sync: release rejected query: %v", err))
	}
	e.removeAndCleanupQuery(qv)
	e.logErrorIfInteresting(rejectErr, fmt.Sprintf("Listen for %s failed", qv.query))
	e.callback.OnError(qv.query, rejectErr)
}

// HandleSuccessfulWrite implements remote.Callback. User callbacks fire
// before the snapshots derived from the acknowledgment so application
// code observes the ack before the listen event that depends on it.
func (e *Engine) HandleSuccessfulWrite(result *model.MutationBatchResult) {
	e.assertCallback("HandleSuccessfulWrite")

	batchID := result.Batch.ID
	e.notifyUser(batchID, nil)
	e.resolvePendingWriteTasks(batchID)

	changes, err := e.localStore.AcknowledgeBatch(result)
	if err != nil {
		panic(fmt.Sprintf("sync: acknowledge batch %d: %v", batchID, err))
	}
	e.emitNewSnapsAndNotifyLocalStore(changes, nil)
}

// HandleRejectedWrite implements remote.Callback.
func (e *Engine) HandleRejectedWrite(batchID model.BatchID, rejectErr error) {
	e.assertCallback("HandleRejectedWrite")

	changes, err := e.localStore.RejectBatch(batchID)
	if err != nil {
		panic(fmt.Sprintf("sync: reject batch %d: %v", batchID, err))
	}
	if len(changes) > 0 {
		var minKey model.DocumentKey
		for key := range changes {
			if minKey.IsZero() || key.Compare(minKey) < 0 {
				minKey = key
			}
		}
		e.logErrorIfInteresting(rejectErr, fmt.Sprintf("Write failed at %s", minKey))
	}

	e.notifyUser(batchID, rejectErr)
	e.resolvePendingWriteTasks(batchID)

	e.emitNewSnapsAndNotifyLocalStore(changes, nil)
}

// notifyUser resolves the completion registered for batchID, if any.
// Mutations restored from persistence have no completion; that is fine.
func (e *Engine) notifyUser(batchID model.BatchID, err error) {
	callbacks := e.mutationCallbacks[e.currentUser]
	if callbacks == nil {
		return
	}
	if completion, ok := callbacks[batchID]; ok {
		completion.Resolve(err)
		delete(callbacks, batchID)
	}
}

// HandleOnlineStateChange implements remote.Callback.
func (e *Engine) HandleOnlineStateChange(state remote.OnlineState) {
	e.assertCallback("HandleOnlineStateChange")

	var newSnapshots []*ViewSnapshot
	for _, qv := range e.queryViewsByQuery {
		viewChange := qv.view.ApplyOnlineStateChange(state)
		if len(viewChange.LimboChanges) != 0 {
			panic("sync: online state change affected limbo documents")
		}
		if viewChange.Snapshot != nil {
			newSnapshots = append(newSnapshots, viewChange.Snapshot)
		}
	}
	e.callback.OnViewSnapshots(newSnapshots)
	e.callback.HandleOnlineStateChange(state)
}

// GetRemoteKeysForTarget implements remote.Callback.
func (e *Engine) GetRemoteKeysForTarget(targetID model.TargetID) model.DocumentKeySet {
	if resolution, ok := e.limboResolutionsByTarget[targetID]; ok {
		if resolution.receivedDocument {
			return model.NewDocumentKeySet(resolution.key)
		}
		return model.NewDocumentKeySet()
	}
	if qv, ok := e.queryViewsByTarget[targetID]; ok {
		return qv.view.SyncedDocuments()
	}
	return model.NewDocumentKeySet()
}

// HandleCredentialChange switches the engine to a new user: outstanding
// pending-writes completions are cancelled (they belonged to the old
// user), the mutation queue is swapped, and the remote store restarts
// its streams.
func (e *Engine) HandleCredentialChange(user auth.User) {
	userChanged := !e.currentUser.Equal(user)
	e.currentUser = user

	if userChanged {
		e.failOutstandingPendingWritesTasks()
		changes, err := e.localStore.HandleUserChange(user)
		if err != nil {
			panic(fmt.Sprintf("sync: handle user change: %v", err))
		}
		e.emitNewSnapsAndNotifyLocalStore(changes, nil)
	}

	e.remoteStore.HandleCredentialChange()
}

// emitNewSnapsAndNotifyLocalStore recomputes every view against changes,
// tracks limbo transitions, delivers the resulting snapshots in one
// batch and reports view membership deltas back to the local store.
func (e *Engine) emitNewSnapsAndNotifyLocalStore(changes map[model.DocumentKey]model.MaybeDocument, event *remote.Event) {
	var newSnapshots []*ViewSnapshot
	var changesInAllViews []local.ViewChanges

	for _, qv := range e.queryViewsByQuery {
		view := qv.view
		viewDocChanges := view.ComputeDocChanges(changes, nil)
		if viewDocChanges.NeedsRefill() {
			// The query has a limit and docs were removed from inside
			// the window; re-run against the local store so docs past
			// the window are not lost.
			docs, err := e.localStore.ExecuteQuery(qv.query)
			if err != nil {
				panic(fmt.Sprintf("sync: refill query %s: %v", qv.query.CanonicalID(), err))
			}
			viewDocChanges = view.ComputeDocChanges(docsAsChanges(docs), viewDocChanges)
		}

		var targetChange *remote.TargetChange
		if event != nil {
			targetChange = event.TargetChanges[qv.targetID]
		}
		viewChange := view.ApplyChanges(viewDocChanges, targetChange)
		e.updateTrackedLimboDocuments(viewChange.LimboChanges, qv.targetID)

		if viewChange.Snapshot != nil {
			newSnapshots = append(newSnapshots, viewChange.Snapshot)
			changesInAllViews = append(changesInAllViews, viewChangesFromSnapshot(qv.targetID, viewChange.Snapshot))
		}
	}

	e.callback.OnViewSnapshots(newSnapshots)
	e.localStore.NotifyViewChanges(changesInAllViews)
}

func viewChangesFromSnapshot(targetID model.TargetID, snapshot *ViewSnapshot) local.ViewChanges {
	added := model.NewDocumentKeySet()
	removed := model.NewDocumentKeySet()
	for _, change := range snapshot.Changes {
		switch change.Type {
		case DocumentAdded:
			added.Add(change.Doc.Key())
		case DocumentRemoved:
			removed.Add(change.Doc.Key())
		}
	}
	return local.ViewChanges{TargetID: targetID, Added: added, Removed: removed}
}

// updateTrackedLimboDocuments folds one view's limbo transitions into
// the engine-wide reference set, allocating and releasing resolution
// targets as keys gain their first and lose their last reference.
func (e *Engine) updateTrackedLimboDocuments(limboChanges []LimboDocumentChange, targetID model.TargetID) {
	for _, change := range limboChanges {
		switch change.Type {
		case LimboAdded:
			e.limboDocumentRefs.add(change.Key, targetID)
			e.trackLimboChange(change.Key)
		case LimboRemoved:
			slog.Debug("Document no longer in limbo", "key", change.Key)
			e.limboDocumentRefs.remove(change.Key, targetID)
			if !e.limboDocumentRefs.containsKey(change.Key) {
				e.removeLimboTarget(change.Key)
			}
		default:
			panic(fmt.Sprintf("sync: unknown limbo change type %d", change.Type))
		}
	}
}

func (e *Engine) trackLimboChange(key model.DocumentKey) {
	if _, tracked := e.limboTargetsByKey[key]; tracked {
		return
	}
	slog.Debug("New document in limbo", "key", key)
	limboTargetID := e.targetIDGenerator.Next()
	queryData := model.QueryData{
		Query:          model.QueryAtPath(key),
		TargetID:       limboTargetID,
		SequenceNumber: model.SequenceNumberInvalid,
		Purpose:        model.PurposeLimboResolution,
	}
	e.limboResolutionsByTarget[limboTargetID] = &limboResolution{key: key}
	e.remoteStore.Listen(queryData)
	e.limboTargetsByKey[key] = limboTargetID
}

// removeLimboTarget is idempotent: the target may already be gone
// because its listen was rejected.
func (e *Engine) removeLimboTarget(key model.DocumentKey) {
	targetID, ok := e.limboTargetsByKey[key]
	if !ok {
		return
	}
	e.remoteStore.StopListening(targetID)
	delete(e.limboTargetsByKey, key)
	delete(e.limboResolutionsByTarget, targetID)
}

func (e *Engine) removeAndCleanupQuery(qv *queryView) {
	delete(e.queryViewsByQuery, qv.query.CanonicalID())
	delete(e.queryViewsByTarget, qv.targetID)

	for _, key := range e.limboDocumentRefs.removeReferencesForTarget(qv.targetID) {
		if !e.limboDocumentRefs.containsKey(key) {
			e.removeLimboTarget(key)
		}
	}
}

// CurrentLimboDocuments returns a copy of the limbo key to resolution
// target mapping. Test hook.
func (e *Engine) CurrentLimboDocuments() map[model.DocumentKey]model.TargetID {
	limbo := make(map[model.DocumentKey]model.TargetID, len(e.limboTargetsByKey))
	for key, targetID := range e.limboTargetsByKey {
		limbo[key] = targetID
	}
	return limbo
}

// logErrorIfInteresting logs at warn when the error likely represents a
// developer mistake (missing index, permission denied) and at debug
// otherwise.
func (e *Engine) logErrorIfInteresting(err error, context string) {
	if errorIsInteresting(err) {
		slog.Warn(context, "err", err)
	} else {
		slog.Debug(context, "err", err)
	}
}

func errorIsInteresting(err error) bool {
	code := model.StatusCode(err)
	if code == model.PermissionDenied {
		return true
	}
	if code == model.FailedPrecondition && strings.Contains(err.Error(), "requires an index") {
		return true
	}
	return false
}

func docsAsChanges(docs []*model.Document) map[model.DocumentKey]model.MaybeDocument {
	changes := make(map[model.DocumentKey]model.MaybeDocument, len(docs))
	for _, doc := range docs {
		changes[doc.Key()] = doc
	}
	return changes
}

// RunTransaction runs fn against fresh transactions until it commits,
// fails permanently, or exhausts retries. fn may be invoked up to
// retries+1 times; each attempt gets a new Transaction because a
// transaction is spent after a failed commit.
func RunTransaction[T any](ctx context.Context, e *Engine, retries int, fn func(*remote.Transaction) (T, error)) (T, error) {
	var zero T
	if retries < 0 {
		panic("sync: negative number of transaction retries")
	}

	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		txn := e.remoteStore.CreateTransaction()

		result, err := fn(txn)
		if err != nil {
			if retries > 0 && model.IsRetryableTransactionError(err) {
				retries--
				continue
			}
			return zero, err
		}

		if err := txn.Commit(ctx); err != nil {
			if retries > 0 && model.IsRetryableTransactionError(err) {
				retries--
				continue
			}
			return zero, err
		}
		return result, nil
	}
}
