package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/syntrix-go/internal/auth"
	"github.com/syntrixbase/syntrix-go/internal/common"
	"github.com/syntrixbase/syntrix-go/internal/local"
	"github.com/syntrixbase/syntrix-go/internal/remote"
	"github.com/syntrixbase/syntrix-go/pkg/model"
)

var (
	testUserA = auth.User{UID: "user-a"}
	testUserB = auth.User{UID: "user-b"}
)

// fakeRemoteStore records the control signals the engine sends.
type fakeRemoteStore struct {
	listens           []model.QueryData
	stops             []model.TargetID
	fillCalls         int
	credentialChanges int
	networkEnabled    bool
	datastore         remote.Datastore
}

func newFakeRemoteStore() *fakeRemoteStore {
	return &fakeRemoteStore{networkEnabled: true, datastore: &fakeDatastore{}}
}

func (f *fakeRemoteStore) Listen(data model.QueryData)          { f.listens = append(f.listens, data) }
func (f *fakeRemoteStore) StopListening(id model.TargetID)      { f.stops = append(f.stops, id) }
func (f *fakeRemoteStore) FillWritePipeline()                   { f.fillCalls++ }
func (f *fakeRemoteStore) CanUseNetwork() bool                  { return f.networkEnabled }
func (f *fakeRemoteStore) HandleCredentialChange()              { f.credentialChanges++ }
func (f *fakeRemoteStore) CreateTransaction() *remote.Transaction {
	return remote.NewTransaction(f.datastore)
}

func (f *fakeRemoteStore) lastListen() model.QueryData {
	return f.listens[len(f.listens)-1]
}

// fakeDatastore scripts transaction lookups and commit outcomes.
type fakeDatastore struct {
	docs       map[model.DocumentKey]model.MaybeDocument
	commitErrs []error
	commits    int
}

func (f *fakeDatastore) Lookup(ctx context.Context, keys []model.DocumentKey) ([]model.MaybeDocument, error) {
	docs := make([]model.MaybeDocument, len(keys))
	for i, key := range keys {
		if doc, ok := f.docs[key]; ok {
			docs[i] = doc
		} else {
			docs[i] = model.NewNoDocument(key, model.VersionNone, false)
		}
	}
	return docs, nil
}

func (f *fakeDatastore) Commit(ctx context.Context, req *remote.CommitRequest) (*remote.CommitResponse, error) {
	f.commits++
	if len(f.commitErrs) > 0 {
		err := f.commitErrs[0]
		f.commitErrs = f.commitErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	results := make([]model.MutationResult, len(req.Writes))
	return &remote.CommitResponse{CommitVersion: 1, Results: results}, nil
}

// recordingCallback captures everything the engine emits.
type recordingCallback struct {
	batches         [][]*ViewSnapshot
	errQueries      []model.Query
	errs            []error
	onlineStates    []remote.OnlineState
	beforeSnapshots func()
}

func (c *recordingCallback) OnViewSnapshots(snapshots []*ViewSnapshot) {
	if c.beforeSnapshots != nil {
		c.beforeSnapshots()
	}
	c.batches = append(c.batches, snapshots)
}

func (c *recordingCallback) OnError(q model.Query, err error) {
	c.errQueries = append(c.errQueries, q)
	c.errs = append(c.errs, err)
}

func (c *recordingCallback) HandleOnlineStateChange(state remote.OnlineState) {
	c.onlineStates = append(c.onlineStates, state)
}

func (c *recordingCallback) snapshots() []*ViewSnapshot {
	var all []*ViewSnapshot
	for _, batch := range c.batches {
		all = append(all, batch...)
	}
	return all
}

func (c *recordingCallback) lastSnapshot(t *testing.T) *ViewSnapshot {
	t.Helper()
	all := c.snapshots()
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

type harness struct {
	store  *local.MemoryStore
	remote *fakeRemoteStore
	engine *Engine
	cb     *recordingCallback
}

func newHarness() *harness {
	store := local.NewMemoryStore(local.NewMemoryCache(), testUserA)
	rs := newFakeRemoteStore()
	engine := New(store, rs, testUserA)
	cb := &recordingCallback{}
	engine.SetCallback(cb)
	return &harness{store: store, remote: rs, engine: engine, cb: cb}
}

// seed installs a synced document in the local store, bypassing the
// engine (as restored persistence would).
func (h *harness) seed(t *testing.T, path string, version model.SnapshotVersion, fields model.ObjectValue) {
	t.Helper()
	key := model.MustDocumentKey(path)
	ev := remote.NewEvent(version)
	ev.DocumentUpdates[key] = model.NewDocument(key, version, fields, model.DocumentStateSynced)
	_, err := h.store.ApplyRemoteEvent(ev)
	require.NoError(t, err)
}

// checkInvariants verifies the cross-index invariants that must hold
// between operations.
func (h *harness) checkInvariants(t *testing.T) {
	t.Helper()
	e := h.engine

	require.Equal(t, len(e.queryViewsByQuery), len(e.queryViewsByTarget))
	for _, qv := range e.queryViewsByQuery {
		byTarget, ok := e.queryViewsByTarget[qv.targetID]
		require.True(t, ok, "query view missing from target index")
		require.Same(t, qv, byTarget)
	}

	require.Equal(t, len(e.limboTargetsByKey), len(e.limboResolutionsByTarget))
	for key, targetID := range e.limboTargetsByKey {
		resolution, ok := e.limboResolutionsByTarget[targetID]
		require.True(t, ok, "limbo target missing inverse entry")
		require.Equal(t, key, resolution.key)
	}

	for key := range e.limboDocumentRefs.byKey {
		_, ok := e.limboTargetsByKey[key]
		require.True(t, ok, "referenced limbo key %s has no resolution target", key)
	}
}

func currentTargetChange(current bool, added ...model.DocumentKey) *remote.TargetChange {
	tc := remote.NewTargetChange()
	tc.Current = current
	for _, k := range added {
		tc.Added.Add(k)
	}
	return tc
}

// S1: listen, then a remote snapshot marks the target current.
func TestListenThenRemoteSnapshot(t *testing.T) {
	h := newHarness()
	h.seed(t, "users/a", 1, model.ObjectValue{"n": 1})
	h.seed(t, "users/b", 1, model.ObjectValue{"n": 2})

	q := model.NewQuery("users")
	targetID, err := h.engine.Listen(q)
	require.NoError(t, err)
	assert.Zero(t, targetID%2, "user listens get local store (even) target IDs")
	assert.Equal(t, q, h.remote.lastListen().Query)

	initial := h.cb.lastSnapshot(t)
	assert.Equal(t, 2, initial.Documents.Len())
	assert.True(t, initial.FromCache)

	keyA, keyB := model.MustDocumentKey("users/a"), model.MustDocumentKey("users/b")
	ev := remote.NewEvent(1)
	ev.TargetChanges[targetID] = currentTargetChange(true, keyA, keyB)
	ev.DocumentUpdates[keyA] = model.NewDocument(keyA, 1, model.ObjectValue{"n": 1}, model.DocumentStateSynced)
	ev.DocumentUpdates[keyB] = model.NewDocument(keyB, 1, model.ObjectValue{"n": 2}, model.DocumentStateSynced)
	h.engine.HandleRemoteEvent(ev)

	synced := h.cb.lastSnapshot(t)
	assert.Equal(t, 2, synced.Documents.Len())
	assert.False(t, synced.FromCache)
	assert.True(t, synced.SyncStateChanged)
	h.checkInvariants(t)
}

func TestListenDuplicatePanics(t *testing.T) {
	h := newHarness()
	q := model.NewQuery("users")
	_, err := h.engine.Listen(q)
	require.NoError(t, err)
	assert.Panics(t, func() { _, _ = h.engine.Listen(q) })
}

func TestListenInvalidQueryReleasesAllocation(t *testing.T) {
	h := newHarness()
	bad := model.NewQuery("users").Where("x", "~", 1)
	_, err := h.engine.Listen(bad)
	require.Error(t, err)

	// The allocation was rolled back, so the local store accepts the
	// query again.
	_, err = h.store.AllocateQuery(bad)
	assert.NoError(t, err)
}

// S2: limbo discovery and resolution.
func TestLimboDiscoveryAndResolution(t *testing.T) {
	h := newHarness()
	q := model.NewQuery("users")
	targetID, err := h.engine.Listen(q)
	require.NoError(t, err)

	x := model.MustDocumentKey("users/x")
	ev := remote.NewEvent(1)
	ev.TargetChanges[targetID] = currentTargetChange(true, x)
	h.engine.HandleRemoteEvent(ev)

	// The engine allocated an odd limbo target and started a
	// single-document listen.
	limbo := h.engine.CurrentLimboDocuments()
	require.Contains(t, limbo, x)
	limboTarget := limbo[x]
	assert.NotZero(t, limboTarget%2, "limbo resolutions get sync engine (odd) target IDs")

	resolutionListen := h.remote.lastListen()
	assert.Equal(t, model.PurposeLimboResolution, resolutionListen.Purpose)
	assert.Equal(t, x.Path(), resolutionListen.Query.Path)
	assert.Equal(t, model.SequenceNumberInvalid, resolutionListen.SequenceNumber)
	assert.Equal(t, limboTarget, resolutionListen.TargetID)
	h.checkInvariants(t)

	// The resolution target delivers the document.
	resolve := remote.NewEvent(2)
	resolve.TargetChanges[limboTarget] = currentTargetChange(true, x)
	resolve.DocumentUpdates[x] = model.NewDocument(x, 1, model.ObjectValue{"n": 1}, model.DocumentStateSynced)
	h.engine.HandleRemoteEvent(resolve)

	snap := h.cb.lastSnapshot(t)
	assert.True(t, snap.Documents.Contains(x))
	assert.False(t, snap.FromCache)
	assert.Empty(t, h.engine.CurrentLimboDocuments())
	assert.Contains(t, h.remote.stops, limboTarget, "resolved limbo target is unlistened")
	h.checkInvariants(t)
}

// S3: a rejected limbo listen turns into a synthetic deletion.
func TestLimboListenRejected(t *testing.T) {
	h := newHarness()
	q := model.NewQuery("users")
	targetID, err := h.engine.Listen(q)
	require.NoError(t, err)

	x := model.MustDocumentKey("users/x")
	ev := remote.NewEvent(1)
	ev.TargetChanges[targetID] = currentTargetChange(true, x)
	h.engine.HandleRemoteEvent(ev)

	limboTarget := h.engine.CurrentLimboDocuments()[x]
	stopsBefore := len(h.remote.stops)

	h.engine.HandleRejectedListen(limboTarget, model.NewStatusError(model.PermissionDenied, "no access"))

	assert.Empty(t, h.engine.CurrentLimboDocuments())
	assert.Len(t, h.remote.stops, stopsBefore, "a failed listen is not unlistened")
	assert.Empty(t, h.cb.errs, "the healthy user listen sees no error")

	snap := h.cb.lastSnapshot(t)
	assert.False(t, snap.Documents.Contains(x))
	assert.False(t, snap.FromCache, "limbo cleared, view is synced again")
	h.checkInvariants(t)
}

func TestUserListenRejected(t *testing.T) {
	h := newHarness()
	q := model.NewQuery("users")
	targetID, err := h.engine.Listen(q)
	require.NoError(t, err)

	rejectErr := model.NewStatusError(model.PermissionDenied, "no access")
	h.engine.HandleRejectedListen(targetID, rejectErr)

	require.Len(t, h.cb.errs, 1)
	assert.Equal(t, q, h.cb.errQueries[0])
	assert.Equal(t, rejectErr, h.cb.errs[0])

	// The query is fully torn down and can be listened to again.
	_, err = h.engine.Listen(q)
	assert.NoError(t, err)
	h.checkInvariants(t)
}

func TestRejectedListenUnknownTargetPanics(t *testing.T) {
	h := newHarness()
	assert.Panics(t, func() {
		h.engine.HandleRejectedListen(42, model.NewStatusError(model.Unavailable, ""))
	})
}

// S4: the write callback resolves before the snapshot derived from the
// same acknowledgment.
func TestWriteAckOrdering(t *testing.T) {
	h := newHarness()
	q := model.NewQuery("users")
	_, err := h.engine.Listen(q)
	require.NoError(t, err)

	keyA := model.MustDocumentKey("users/a")
	completion := common.NewCompletion()
	h.engine.WriteMutations([]model.Mutation{
		model.NewSetMutation(keyA, model.ObjectValue{"n": 2}),
	}, completion)

	assert.GreaterOrEqual(t, h.remote.fillCalls, 1)
	snap := h.cb.lastSnapshot(t)
	assert.True(t, snap.Documents.Contains(keyA))
	assert.True(t, snap.HasPendingWrites())
	assert.False(t, completion.Resolved())

	// Every snapshot batch emitted from here on must observe the
	// completion already resolved.
	resolvedAtDelivery := []bool{}
	h.cb.beforeSnapshots = func() {
		resolvedAtDelivery = append(resolvedAtDelivery, completion.Resolved())
	}

	batch := h.store.NextMutationBatch(model.BatchIDUnknown)
	require.NotNil(t, batch)
	h.engine.HandleSuccessfulWrite(&model.MutationBatchResult{
		Batch:         batch,
		CommitVersion: 2,
		Results:       []model.MutationResult{{Version: 2}},
	})

	require.NoError(t, completion.Err())
	require.NotEmpty(t, resolvedAtDelivery)
	for _, resolved := range resolvedAtDelivery {
		assert.True(t, resolved, "user callback fires before derived snapshots")
	}
	h.checkInvariants(t)
}

func TestRejectedWrite(t *testing.T) {
	h := newHarness()
	q := model.NewQuery("users")
	_, err := h.engine.Listen(q)
	require.NoError(t, err)

	keyA := model.MustDocumentKey("users/a")
	completion := common.NewCompletion()
	h.engine.WriteMutations([]model.Mutation{
		model.NewSetMutation(keyA, model.ObjectValue{"n": 2}),
	}, completion)
	batchID := h.store.HighestUnacknowledgedBatchID()

	rejectErr := model.NewStatusError(model.PermissionDenied, "writes not allowed")
	h.engine.HandleRejectedWrite(batchID, rejectErr)

	assert.Equal(t, rejectErr, completion.Err())
	snap := h.cb.lastSnapshot(t)
	assert.False(t, snap.Documents.Contains(keyA), "the rejected write is rolled back")
	h.checkInvariants(t)
}

func TestRegisterPendingWritesResolvesImmediatelyWhenIdle(t *testing.T) {
	h := newHarness()
	completion := common.NewCompletion()
	h.engine.RegisterPendingWritesTask(completion)
	assert.True(t, completion.Resolved())
	assert.NoError(t, completion.Err())
}

func TestPendingWritesResolveOnAck(t *testing.T) {
	h := newHarness()
	_, err := h.engine.Listen(model.NewQuery("users"))
	require.NoError(t, err)

	write := common.NewCompletion()
	h.engine.WriteMutations([]model.Mutation{
		model.NewSetMutation(model.MustDocumentKey("users/a"), model.ObjectValue{}),
	}, write)

	pending := common.NewCompletion()
	h.engine.RegisterPendingWritesTask(pending)
	assert.False(t, pending.Resolved())

	batch := h.store.NextMutationBatch(model.BatchIDUnknown)
	h.engine.HandleSuccessfulWrite(&model.MutationBatchResult{
		Batch:         batch,
		CommitVersion: 1,
		Results:       []model.MutationResult{{Version: 1}},
	})

	assert.True(t, pending.Resolved())
	assert.NoError(t, pending.Err())
}

// S5: the transaction retry loop re-runs the update function with a
// fresh transaction per attempt.
func TestTransactionRetriesOnAbortedCommit(t *testing.T) {
	h := newHarness()
	ds := h.remote.datastore.(*fakeDatastore)
	ds.commitErrs = []error{
		model.NewStatusError(model.Aborted, "conflict"),
		model.NewStatusError(model.Aborted, "conflict"),
		nil,
	}

	attempts := 0
	seen := map[*remote.Transaction]bool{}
	result, err := RunTransaction(context.Background(), h.engine, 2, func(txn *remote.Transaction) (int, error) {
		attempts++
		require.False(t, seen[txn], "every attempt gets a fresh transaction")
		seen[txn] = true
		txn.Set(model.MustDocumentKey("users/a"), model.ObjectValue{"attempt": attempts})
		return attempts, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, result, "the result comes from the final attempt")
	assert.Equal(t, 3, ds.commits)
}

func TestTransactionRetriesExhausted(t *testing.T) {
	h := newHarness()
	ds := h.remote.datastore.(*fakeDatastore)
	aborted := model.NewStatusError(model.Aborted, "conflict")
	ds.commitErrs = []error{aborted, aborted}

	_, err := RunTransaction(context.Background(), h.engine, 1, func(txn *remote.Transaction) (struct{}, error) {
		return struct{}{}, nil
	})
	assert.Equal(t, aborted, err)
	assert.Equal(t, 2, ds.commits)
}

func TestTransactionPermanentErrorNotRetried(t *testing.T) {
	h := newHarness()
	denied := model.NewStatusError(model.PermissionDenied, "")
	attempts := 0
	_, err := RunTransaction(context.Background(), h.engine, 5, func(txn *remote.Transaction) (struct{}, error) {
		attempts++
		return struct{}{}, denied
	})
	assert.Equal(t, denied, err)
	assert.Equal(t, 1, attempts)
}

func TestTransactionRetryableUserError(t *testing.T) {
	h := newHarness()
	attempts := 0
	result, err := RunTransaction(context.Background(), h.engine, 2, func(txn *remote.Transaction) (string, error) {
		attempts++
		if attempts < 3 {
			return "", model.NewStatusError(model.Unavailable, "try again")
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "done", result)
}

func TestTransactionNegativeRetriesPanics(t *testing.T) {
	h := newHarness()
	assert.Panics(t, func() {
		_, _ = RunTransaction(context.Background(), h.engine, -1, func(txn *remote.Transaction) (struct{}, error) {
			return struct{}{}, nil
		})
	})
}

// S6: a credential change cancels pending-write waiters and swaps the
// mutation queue.
func TestCredentialChange(t *testing.T) {
	h := newHarness()
	q := model.NewQuery("users")
	_, err := h.engine.Listen(q)
	require.NoError(t, err)

	keyA := model.MustDocumentKey("users/a")
	write := common.NewCompletion()
	h.engine.WriteMutations([]model.Mutation{
		model.NewSetMutation(keyA, model.ObjectValue{"owner": "a"}),
	}, write)
	require.True(t, h.cb.lastSnapshot(t).Documents.Contains(keyA))

	pending := common.NewCompletion()
	h.engine.RegisterPendingWritesTask(pending)

	h.engine.HandleCredentialChange(testUserB)

	require.True(t, pending.Resolved())
	assert.Equal(t, model.Cancelled, model.StatusCode(pending.Err()))
	assert.Equal(t, 1, h.remote.credentialChanges)

	// User A's pending write is no longer visible.
	snap := h.cb.lastSnapshot(t)
	assert.False(t, snap.Documents.Contains(keyA))
	assert.Equal(t, model.BatchIDUnknown, h.store.HighestUnacknowledgedBatchID())
	h.checkInvariants(t)
}

func TestCredentialChangeSameUserOnlyRestartsStreams(t *testing.T) {
	h := newHarness()
	pending := common.NewCompletion()
	_, err := h.engine.Listen(model.NewQuery("users"))
	require.NoError(t, err)
	h.engine.WriteMutations([]model.Mutation{
		model.NewSetMutation(model.MustDocumentKey("users/a"), model.ObjectValue{}),
	}, common.NewCompletion())
	h.engine.RegisterPendingWritesTask(pending)

	h.engine.HandleCredentialChange(testUserA)
	assert.False(t, pending.Resolved(), "same user keeps waiters alive")
	assert.Equal(t, 1, h.remote.credentialChanges)
}

func TestStopListeningReleasesLimboTargets(t *testing.T) {
	h := newHarness()
	q := model.NewQuery("users")
	targetID, err := h.engine.Listen(q)
	require.NoError(t, err)

	x := model.MustDocumentKey("users/x")
	ev := remote.NewEvent(1)
	ev.TargetChanges[targetID] = currentTargetChange(true, x)
	h.engine.HandleRemoteEvent(ev)
	limboTarget := h.engine.CurrentLimboDocuments()[x]
	require.NotZero(t, limboTarget)

	require.NoError(t, h.engine.StopListening(q))

	assert.Contains(t, h.remote.stops, targetID)
	assert.Contains(t, h.remote.stops, limboTarget, "tearing down the view frees its limbo targets")
	assert.Empty(t, h.engine.CurrentLimboDocuments())
	h.checkInvariants(t)
}

func TestStopListeningUnknownQueryPanics(t *testing.T) {
	h := newHarness()
	assert.Panics(t, func() { _ = h.engine.StopListening(model.NewQuery("users")) })
}

func TestGetRemoteKeysForTarget(t *testing.T) {
	h := newHarness()
	// A filtered query, so a delivered limbo document that fails the
	// filter keeps its resolution target alive.
	q := model.NewQuery("users").Where("status", model.OpEq, "active")
	targetID, err := h.engine.Listen(q)
	require.NoError(t, err)

	keyA := model.MustDocumentKey("users/a")
	x := model.MustDocumentKey("users/x")
	ev := remote.NewEvent(1)
	ev.TargetChanges[targetID] = currentTargetChange(true, keyA, x)
	ev.DocumentUpdates[keyA] = model.NewDocument(keyA, 1, model.ObjectValue{"status": "active"}, model.DocumentStateSynced)
	h.engine.HandleRemoteEvent(ev)

	// The user target reports its synced documents.
	keys := h.engine.GetRemoteKeysForTarget(targetID)
	assert.True(t, keys.Contains(keyA))
	assert.True(t, keys.Contains(x))

	// A limbo target reports nothing until its document arrives.
	limboTarget := h.engine.CurrentLimboDocuments()[x]
	require.NotZero(t, limboTarget)
	assert.Zero(t, h.engine.GetRemoteKeysForTarget(limboTarget).Len())

	// The resolution delivers a document that fails the view's filter:
	// x stays limbo, and the target now reports its key.
	resolve := remote.NewEvent(2)
	resolve.TargetChanges[limboTarget] = currentTargetChange(false, x)
	resolve.DocumentUpdates[x] = model.NewDocument(x, 1, model.ObjectValue{"status": "idle"}, model.DocumentStateSynced)
	h.engine.HandleRemoteEvent(resolve)
	require.Contains(t, h.engine.CurrentLimboDocuments(), x)
	assert.Equal(t, []model.DocumentKey{x}, h.engine.GetRemoteKeysForTarget(limboTarget).Sorted())

	// Unknown targets report an empty set.
	assert.Zero(t, h.engine.GetRemoteKeysForTarget(9999).Len())
}

func TestLimboTargetChangeWithMultipleDocumentsPanics(t *testing.T) {
	h := newHarness()
	targetID, err := h.engine.Listen(model.NewQuery("users"))
	require.NoError(t, err)

	x := model.MustDocumentKey("users/x")
	ev := remote.NewEvent(1)
	ev.TargetChanges[targetID] = currentTargetChange(true, x)
	h.engine.HandleRemoteEvent(ev)
	limboTarget := h.engine.CurrentLimboDocuments()[x]

	bad := remote.NewEvent(2)
	bad.TargetChanges[limboTarget] = currentTargetChange(true, x, model.MustDocumentKey("users/y"))
	assert.Panics(t, func() { h.engine.HandleRemoteEvent(bad) })
}

func TestOnlineStateChangePropagates(t *testing.T) {
	h := newHarness()
	q := model.NewQuery("users")
	targetID, err := h.engine.Listen(q)
	require.NoError(t, err)

	ev := remote.NewEvent(1)
	ev.TargetChanges[targetID] = currentTargetChange(true)
	h.engine.HandleRemoteEvent(ev)
	require.False(t, h.cb.lastSnapshot(t).FromCache)

	h.engine.HandleOnlineStateChange(remote.OnlineStateOffline)

	assert.Equal(t, []remote.OnlineState{remote.OnlineStateOffline}, h.cb.onlineStates)
	snap := h.cb.lastSnapshot(t)
	assert.True(t, snap.FromCache, "offline views serve from cache")
	h.checkInvariants(t)
}

func TestCallbackRequired(t *testing.T) {
	store := local.NewMemoryStore(local.NewMemoryCache(), testUserA)
	engine := New(store, newFakeRemoteStore(), testUserA)
	assert.Panics(t, func() { _, _ = engine.Listen(model.NewQuery("users")) })
}
