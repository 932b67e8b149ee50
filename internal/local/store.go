package local

import (
	"fmt"
	"log/slog"

	"github.com/syntrixbase/syntrix-go/internal/auth"
	"github.com/syntrixbase/syntrix-go/internal/query"
	"github.com/syntrixbase/syntrix-go/internal/remote"
	"github.com/syntrixbase/syntrix-go/pkg/model"
)

// MemoryStore implements Store over a DocumentCache. Mutation queues and
// target state are always in memory; document persistence depends on the
// cache implementation plugged in.
//
// MemoryStore is confined to the worker queue and does no locking.
type MemoryStore struct {
	cache DocumentCache

	targetGen       *model.TargetIDGenerator
	sequence        int64
	queryData       map[string]model.QueryData
	queriesByTarget map[model.TargetID]model.Query
	syncedKeys      map[model.TargetID]model.DocumentKeySet

	queues      map[auth.User][]*model.MutationBatch
	nextBatchID model.BatchID
	currentUser auth.User

	pins map[model.DocumentKey]int
}

// NewMemoryStore creates a store over cache for the initial user.
func NewMemoryStore(cache DocumentCache, initialUser auth.User) *MemoryStore {
	return &MemoryStore{
		cache:           cache,
		targetGen:       model.NewLocalStoreTargetIDGenerator(),
		queryData:       make(map[string]model.QueryData),
		queriesByTarget: make(map[model.TargetID]model.Query),
		syncedKeys:      make(map[model.TargetID]model.DocumentKeySet),
		queues:          make(map[auth.User][]*model.MutationBatch),
		nextBatchID:     1,
		currentUser:     initialUser,
		pins:            make(map[model.DocumentKey]int),
	}
}

// AllocateQuery implements Store.
func (s *MemoryStore) AllocateQuery(q model.Query) (model.QueryData, error) {
	id := q.CanonicalID()
	if _, ok := s.queryData[id]; ok {
		return model.QueryData{}, fmt.Errorf("query already allocated: %s", id)
	}
	s.sequence++
	data := model.QueryData{
		Query:          q,
		TargetID:       s.targetGen.Next(),
		SequenceNumber: s.sequence,
		Purpose:        model.PurposeListen,
	}
	s.queryData[id] = data
	s.queriesByTarget[data.TargetID] = q
	s.syncedKeys[data.TargetID] = model.NewDocumentKeySet()
	slog.Debug("Allocated query target", "query", id, "target", data.TargetID)
	return data, nil
}

// ReleaseQuery implements Store.
func (s *MemoryStore) ReleaseQuery(q model.Query) error {
	id := q.CanonicalID()
	data, ok := s.queryData[id]
	if !ok {
		return fmt.Errorf("release of unallocated query: %s", id)
	}
	delete(s.queryData, id)
	delete(s.queriesByTarget, data.TargetID)
	delete(s.syncedKeys, data.TargetID)
	return nil
}

// GetRemoteDocumentKeys implements Store.
func (s *MemoryStore) GetRemoteDocumentKeys(targetID model.TargetID) model.DocumentKeySet {
	keys, ok := s.syncedKeys[targetID]
	if !ok {
		return model.NewDocumentKeySet()
	}
	return keys.Clone()
}

// ExecuteQuery implements Store.
func (s *MemoryStore) ExecuteQuery(q model.Query) ([]*model.Document, error) {
	matcher, err := query.Compile(q)
	if err != nil {
		return nil, err
	}

	candidates := model.NewDocumentKeySet()
	if q.IsDocumentQuery() {
		candidates.Add(model.MustDocumentKey(q.Path))
	} else {
		cached, err := s.cache.Keys(q.Path)
		if err != nil {
			return nil, err
		}
		for _, k := range cached {
			candidates.Add(k)
		}
	}
	for _, batch := range s.queues[s.currentUser] {
		for k := range batch.Keys() {
			if k.Collection() == q.Path || k.Path() == q.Path {
				candidates.Add(k)
			}
		}
	}

	result := model.NewDocumentSet(matcher.Compare)
	for key := range candidates {
		view, err := s.localView(key)
		if err != nil {
			return nil, err
		}
		if doc, ok := view.(*model.Document); ok && matcher.Matches(doc) {
			result.Add(doc)
		}
	}

	docs := result.Docs()
	if q.HasLimit() && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	out := make([]*model.Document, len(docs))
	copy(out, docs)
	return out, nil
}

// WriteLocally implements Store.
func (s *MemoryStore) WriteLocally(mutations []model.Mutation) (*LocalWriteResult, error) {
	if len(mutations) == 0 {
		return nil, fmt.Errorf("empty mutation batch")
	}
	batch := &model.MutationBatch{ID: s.nextBatchID, Mutations: mutations}
	s.nextBatchID++
	s.queues[s.currentUser] = append(s.queues[s.currentUser], batch)

	changes, err := s.localViews(batch.Keys())
	if err != nil {
		return nil, err
	}
	return &LocalWriteResult{BatchID: batch.ID, Changes: changes}, nil
}

// ApplyRemoteEvent implements Store.
func (s *MemoryStore) ApplyRemoteEvent(event *remote.Event) (map[model.DocumentKey]model.MaybeDocument, error) {
	for targetID, tc := range event.TargetChanges {
		synced, ok := s.syncedKeys[targetID]
		if !ok {
			continue
		}
		for k := range tc.Added {
			synced.Add(k)
		}
		for k := range tc.Removed {
			synced.Remove(k)
		}
	}

	changed := model.NewDocumentKeySet()
	for key, update := range event.DocumentUpdates {
		existing, err := s.cache.Get(key)
		if err != nil {
			return nil, err
		}
		// Versions are monotonic per key; stale updates are dropped.
		// Limbo resolutions bypass the check so a synthetic deletion at
		// version none still purges the cache entry.
		if existing != nil &&
			update.Version().Compare(existing.Version()) < 0 &&
			!event.ResolvedLimboDocuments.Contains(key) {
			slog.Debug("Ignoring stale document update",
				"key", key, "cached", existing.Version(), "update", update.Version())
			continue
		}
		if err := s.cache.Set(update); err != nil {
			return nil, err
		}
		changed.Add(key)
	}

	return s.localViews(changed)
}

// AcknowledgeBatch implements Store.
func (s *MemoryStore) AcknowledgeBatch(result *model.MutationBatchResult) (map[model.DocumentKey]model.MaybeDocument, error) {
	batch := result.Batch
	if err := s.removeBatch(batch.ID); err != nil {
		return nil, err
	}
	if len(result.Results) != len(batch.Mutations) {
		return nil, fmt.Errorf("batch %d: %d results for %d mutations",
			batch.ID, len(result.Results), len(batch.Mutations))
	}
	for i, m := range batch.Mutations {
		existing, err := s.cache.Get(m.Key())
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(m.ApplyToRemoteDocument(existing, result.Results[i])); err != nil {
			return nil, err
		}
	}
	return s.localViews(batch.Keys())
}

// RejectBatch implements Store.
func (s *MemoryStore) RejectBatch(batchID model.BatchID) (map[model.DocumentKey]model.MaybeDocument, error) {
	batch := s.findBatch(batchID)
	if batch == nil {
		return nil, fmt.Errorf("reject of unknown batch %d", batchID)
	}
	if err := s.removeBatch(batchID); err != nil {
		return nil, err
	}
	return s.localViews(batch.Keys())
}

// NotifyViewChanges implements Store.
func (s *MemoryStore) NotifyViewChanges(changes []ViewChanges) {
	for _, vc := range changes {
		for k := range vc.Added {
			s.pins[k]++
		}
		for k := range vc.Removed {
			if s.pins[k]--; s.pins[k] <= 0 {
				delete(s.pins, k)
			}
		}
	}
}

// NextMutationBatch implements Store.
func (s *MemoryStore) NextMutationBatch(afterBatchID model.BatchID) *model.MutationBatch {
	for _, batch := range s.queues[s.currentUser] {
		if batch.ID > afterBatchID {
			return batch
		}
	}
	return nil
}

// HighestUnacknowledgedBatchID implements Store.
func (s *MemoryStore) HighestUnacknowledgedBatchID() model.BatchID {
	queue := s.queues[s.currentUser]
	if len(queue) == 0 {
		return model.BatchIDUnknown
	}
	return queue[len(queue)-1].ID
}

// HandleUserChange implements Store.
func (s *MemoryStore) HandleUserChange(user auth.User) (map[model.DocumentKey]model.MaybeDocument, error) {
	affected := model.NewDocumentKeySet()
	for _, batch := range s.queues[s.currentUser] {
		for k := range batch.Keys() {
			affected.Add(k)
		}
	}
	s.currentUser = user
	for _, batch := range s.queues[s.currentUser] {
		for k := range batch.Keys() {
			affected.Add(k)
		}
	}
	slog.Debug("Switched mutation queue", "user", user, "affected", affected.Len())
	return s.localViews(affected)
}

// PinnedCount reports how many views currently display key. Test hook.
func (s *MemoryStore) PinnedCount(key model.DocumentKey) int { return s.pins[key] }

func (s *MemoryStore) findBatch(batchID model.BatchID) *model.MutationBatch {
	for _, batch := range s.queues[s.currentUser] {
		if batch.ID == batchID {
			return batch
		}
	}
	return nil
}

func (s *MemoryStore) removeBatch(batchID model.BatchID) error {
	queue := s.queues[s.currentUser]
	for i, batch := range queue {
		if batch.ID == batchID {
			s.queues[s.currentUser] = append(queue[:i], queue[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("batch %d not in queue", batchID)
}

// localView overlays the current user's pending mutations on the cached
// state of key. A nil result means the key has never been seen.
func (s *MemoryStore) localView(key model.DocumentKey) (model.MaybeDocument, error) {
	base, err := s.cache.Get(key)
	if err != nil {
		return nil, err
	}
	for _, batch := range s.queues[s.currentUser] {
		base = batch.ApplyToLocalView(key, base)
	}
	return base, nil
}

func (s *MemoryStore) localViews(keys model.DocumentKeySet) (map[model.DocumentKey]model.MaybeDocument, error) {
	changes := make(map[model.DocumentKey]model.MaybeDocument, keys.Len())
	for key := range keys {
		view, err := s.localView(key)
		if err != nil {
			return nil, err
		}
		if view == nil {
			// Never cached and no pending mutation survives for it; report
			// it as a missing document so views drop it.
			view = model.NewNoDocument(key, model.VersionNone, false)
		}
		changes[key] = view
	}
	return changes, nil
}
