package sync

import (
	"fmt"
	"sort"

	"github.com/syntrixbase/syntrix-go/internal/query"
	"github.com/syntrixbase/syntrix-go/internal/remote"
	"github.com/syntrixbase/syntrix-go/pkg/model"
)

// View materializes one query's result set from local documents and
// remote sync state. It tracks which keys the server has confirmed
// (syncedDocuments), which documents the user currently observes
// (documentSet), and the difference that makes a document limbo.
type View struct {
	matcher *query.Matcher

	// syncedDocuments are the keys the server has confirmed to be in the
	// result at the current resume point.
	syncedDocuments model.DocumentKeySet

	documentSet    *model.DocumentSet
	mutatedKeys    model.DocumentKeySet
	limboDocuments model.DocumentKeySet

	// current is set once the server marked the target CURRENT.
	current   bool
	syncState SyncState
}

// NewView creates a view seeded with the keys the local store knows the
// server confirmed for this target.
func NewView(matcher *query.Matcher, remoteKeys model.DocumentKeySet) *View {
	return &View{
		matcher:         matcher,
		syncedDocuments: remoteKeys.Clone(),
		documentSet:     model.NewDocumentSet(matcher.Compare),
		mutatedKeys:     model.NewDocumentKeySet(),
		limboDocuments:  model.NewDocumentKeySet(),
		syncState:       SyncStateNone,
	}
}

// SyncedDocuments returns a copy of the server-confirmed key set.
func (v *View) SyncedDocuments() model.DocumentKeySet {
	return v.syncedDocuments.Clone()
}

// LimboDocuments returns a copy of the current limbo key set.
func (v *View) LimboDocuments() model.DocumentKeySet {
	return v.limboDocuments.Clone()
}

// SyncState returns the view's sync state.
func (v *View) SyncState() SyncState { return v.syncState }

// DocumentChanges is the intermediate result of ComputeDocChanges,
// consumed by ApplyChanges. It does not mutate the view, so a limit
// re-fill can recompute it from a full query result first.
type DocumentChanges struct {
	documentSet *model.DocumentSet
	changes     *changeSet
	mutatedKeys model.DocumentKeySet

	// deletedKeys collects keys whose update was a deletion tombstone;
	// ApplyChanges retires them from syncedDocuments. This is what makes
	// the synthetic delete for a rejected limbo listen purge the key.
	deletedKeys model.DocumentKeySet

	needsRefill bool
}

// NeedsRefill reports whether the delta removed a document inside a
// limit window, so the query must be re-run against the local store
// before the changes can be applied.
func (c *DocumentChanges) NeedsRefill() bool { return c.needsRefill }

// ComputeDocChanges folds a set of changed documents into a new result
// set without touching the view. prior is nil for the first pass and the
// first pass's result when re-computing after a limit re-fill.
func (v *View) ComputeDocChanges(docChanges map[model.DocumentKey]model.MaybeDocument, prior *DocumentChanges) *DocumentChanges {
	changes := newChangeSet()
	oldDocumentSet := v.documentSet
	newMutatedKeys := v.mutatedKeys.Clone()
	deletedKeys := model.NewDocumentKeySet()
	if prior != nil {
		changes = prior.changes
		oldDocumentSet = prior.documentSet
		newMutatedKeys = prior.mutatedKeys
		deletedKeys = prior.deletedKeys
	}
	newDocumentSet := oldDocumentSet.Clone()
	needsRefill := false

	q := v.matcher.Query()

	// The last doc in a full limit window guards against re-sorting a
	// modified doc past the window edge, which would require a re-fill.
	var lastDocInLimit *model.Document
	if q.HasLimit() && oldDocumentSet.Len() == q.Limit {
		lastDocInLimit = oldDocumentSet.Last()
	}

	for key, maybeDoc := range docChanges {
		oldDoc := oldDocumentSet.Get(key)
		var newDoc *model.Document
		if doc, ok := maybeDoc.(*model.Document); ok && v.matcher.Matches(doc) {
			newDoc = doc
		}
		if _, isDeleted := maybeDoc.(*model.NoDocument); isDeleted {
			deletedKeys.Add(key)
		}

		oldDocHadPendingMutations := oldDoc != nil && v.mutatedKeys.Contains(key)
		newDocHasPendingMutations := newDoc != nil &&
			(newDoc.HasLocalMutations() || (v.mutatedKeys.Contains(key) && newDoc.HasCommittedMutations()))

		changeApplied := false
		switch {
		case oldDoc != nil && newDoc != nil:
			if !oldDoc.DataEquals(newDoc) {
				if !shouldWaitForSyncedDocument(newDoc, oldDoc) {
					changes.add(DocumentViewChange{Type: DocumentModified, Doc: newDoc})
					changeApplied = true
					if lastDocInLimit != nil && v.matcher.Compare(newDoc, lastDocInLimit) > 0 {
						// The doc moved past the limit window edge; a doc
						// beyond the window may now belong in the result.
						needsRefill = true
					}
				}
			} else if oldDocHadPendingMutations != newDocHasPendingMutations {
				changes.add(DocumentViewChange{Type: DocumentMetadata, Doc: newDoc})
				changeApplied = true
			}
		case oldDoc == nil && newDoc != nil:
			changes.add(DocumentViewChange{Type: DocumentAdded, Doc: newDoc})
			changeApplied = true
		case oldDoc != nil && newDoc == nil:
			changes.add(DocumentViewChange{Type: DocumentRemoved, Doc: oldDoc})
			changeApplied = true
			if lastDocInLimit != nil {
				// A doc inside a full limit window disappeared; one past
				// the window may take its place.
				needsRefill = true
			}
		}

		if changeApplied {
			if newDoc != nil {
				newDocumentSet.Add(newDoc)
				if newDoc.HasLocalMutations() {
					newMutatedKeys.Add(key)
				} else {
					newMutatedKeys.Remove(key)
				}
			} else {
				newDocumentSet.Remove(key)
				newMutatedKeys.Remove(key)
			}
		}
	}

	if q.HasLimit() {
		for newDocumentSet.Len() > q.Limit {
			last := newDocumentSet.Last()
			newDocumentSet.Remove(last.Key())
			newMutatedKeys.Remove(last.Key())
			changes.add(DocumentViewChange{Type: DocumentRemoved, Doc: last})
		}
	}

	if needsRefill && prior != nil {
		panic("view: needs refill after refill")
	}

	return &DocumentChanges{
		documentSet: newDocumentSet,
		changes:     changes,
		mutatedKeys: newMutatedKeys,
		deletedKeys: deletedKeys,
		needsRefill: needsRefill,
	}
}

// shouldWaitForSyncedDocument suppresses raising a remote change that
// reverts a just-committed local change; the watch copy catches up with
// the commit momentarily and raising both would flicker.
func shouldWaitForSyncedDocument(newDoc, oldDoc *model.Document) bool {
	return oldDoc.HasLocalMutations() &&
		newDoc.HasCommittedMutations() && !newDoc.HasLocalMutations()
}

// ApplyChanges commits computed document changes plus an optional target
// change to the view, producing a snapshot when observable state moved
// and the limbo transitions this update caused.
func (v *View) ApplyChanges(docChanges *DocumentChanges, targetChange *remote.TargetChange) ViewChange {
	if docChanges.needsRefill {
		panic("view: cannot apply changes that need a refill")
	}

	oldDocumentSet := v.documentSet
	v.documentSet = docChanges.documentSet
	v.mutatedKeys = docChanges.mutatedKeys

	changes := make([]DocumentViewChange, 0, len(docChanges.changes.changes))
	for _, c := range docChanges.changes.changes {
		changes = append(changes, c)
	}
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Type != changes[j].Type {
			return changeTypeOrder(changes[i].Type) < changeTypeOrder(changes[j].Type)
		}
		return v.matcher.Compare(changes[i].Doc, changes[j].Doc) < 0
	})

	v.applyTargetChange(targetChange, docChanges.deletedKeys)
	limboChanges := v.updateLimboDocuments()

	synced := v.limboDocuments.Len() == 0 && v.current
	newSyncState := SyncStateLocal
	if synced {
		newSyncState = SyncStateSynced
	}
	syncStateChanged := newSyncState != v.syncState
	v.syncState = newSyncState

	var snapshot *ViewSnapshot
	if len(changes) != 0 || syncStateChanged {
		snapshot = &ViewSnapshot{
			Query:            v.matcher.Query(),
			Documents:        docChanges.documentSet,
			OldDocuments:     oldDocumentSet,
			Changes:          changes,
			MutatedKeys:      docChanges.mutatedKeys.Clone(),
			FromCache:        newSyncState == SyncStateLocal,
			SyncStateChanged: syncStateChanged,
		}
	}
	return ViewChange{Snapshot: snapshot, LimboChanges: limboChanges}
}

func changeTypeOrder(t DocumentChangeType) int {
	switch t {
	case DocumentRemoved:
		return 0
	case DocumentAdded:
		return 1
	case DocumentModified, DocumentMetadata:
		return 2
	default:
		panic(fmt.Sprintf("unknown change type %d", t))
	}
}

func (v *View) applyTargetChange(targetChange *remote.TargetChange, deletedKeys model.DocumentKeySet) {
	if targetChange != nil {
		for key := range targetChange.Added {
			v.syncedDocuments.Add(key)
		}
		for key := range targetChange.Modified {
			if !v.syncedDocuments.Contains(key) {
				panic(fmt.Sprintf("view: modified document %s not in synced set", key))
			}
		}
		for key := range targetChange.Removed {
			v.syncedDocuments.Remove(key)
		}
		v.current = targetChange.Current
	}
	// A deletion tombstone retires the key from the synced set even
	// without an explicit target removal. Limbo resolutions depend on
	// this: their synthetic delete arrives with no target change.
	for key := range deletedKeys {
		v.syncedDocuments.Remove(key)
	}
}

// updateLimboDocuments recomputes the limbo set: keys the server claims
// belong to the result but that the local view does not contain. Limbo
// can only be determined while the target is CURRENT.
func (v *View) updateLimboDocuments() []LimboDocumentChange {
	if !v.current {
		return nil
	}

	oldLimbo := v.limboDocuments
	v.limboDocuments = model.NewDocumentKeySet()
	for key := range v.syncedDocuments {
		if !v.documentSet.Contains(key) {
			v.limboDocuments.Add(key)
		}
	}

	changes := make([]LimboDocumentChange, 0, oldLimbo.Len()+v.limboDocuments.Len())
	for _, key := range oldLimbo.Sorted() {
		if !v.limboDocuments.Contains(key) {
			changes = append(changes, LimboDocumentChange{Type: LimboRemoved, Key: key})
		}
	}
	for _, key := range v.limboDocuments.Sorted() {
		if !oldLimbo.Contains(key) {
			changes = append(changes, LimboDocumentChange{Type: LimboAdded, Key: key})
		}
	}
	return changes
}

// ApplyOnlineStateChange reacts to stream health transitions. Going
// offline drops CURRENT, which moves the view back to serving from
// cache; it never affects limbo state.
func (v *View) ApplyOnlineStateChange(state remote.OnlineState) ViewChange {
	if v.current && state == remote.OnlineStateOffline {
		v.current = false
		return v.ApplyChanges(&DocumentChanges{
			documentSet: v.documentSet,
			changes:     newChangeSet(),
			mutatedKeys: v.mutatedKeys,
			deletedKeys: model.NewDocumentKeySet(),
		}, nil)
	}
	return ViewChange{}
}
