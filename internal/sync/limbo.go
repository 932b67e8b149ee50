package sync

import "github.com/syntrixbase/syntrix-go/pkg/model"

// limboResolution tracks the single-document listen resolving one limbo
// document.
type limboResolution struct {
	key model.DocumentKey

	// receivedDocument is set once the resolution target delivered the
	// document. GetRemoteKeysForTarget reports it so the watch
	// aggregator can manufacture a delete when the target goes CURRENT
	// without it.
	receivedDocument bool
}

// referenceSet is a many-to-many relation between document keys and the
// target IDs of the views that observed them in limbo. A key's limbo
// resolution lives exactly as long as it has references here.
type referenceSet struct {
	byKey    map[model.DocumentKey]map[model.TargetID]struct{}
	byTarget map[model.TargetID]map[model.DocumentKey]struct{}
}

func newReferenceSet() *referenceSet {
	return &referenceSet{
		byKey:    make(map[model.DocumentKey]map[model.TargetID]struct{}),
		byTarget: make(map[model.TargetID]map[model.DocumentKey]struct{}),
	}
}

func (r *referenceSet) add(key model.DocumentKey, targetID model.TargetID) {
	if r.byKey[key] == nil {
		r.byKey[key] = make(map[model.TargetID]struct{})
	}
	r.byKey[key][targetID] = struct{}{}
	if r.byTarget[targetID] == nil {
		r.byTarget[targetID] = make(map[model.DocumentKey]struct{})
	}
	r.byTarget[targetID][key] = struct{}{}
}

func (r *referenceSet) remove(key model.DocumentKey, targetID model.TargetID) {
	if targets := r.byKey[key]; targets != nil {
		delete(targets, targetID)
		if len(targets) == 0 {
			delete(r.byKey, key)
		}
	}
	if keys := r.byTarget[targetID]; keys != nil {
		delete(keys, key)
		if len(keys) == 0 {
			delete(r.byTarget, targetID)
		}
	}
}

func (r *referenceSet) containsKey(key model.DocumentKey) bool {
	return len(r.byKey[key]) > 0
}

// referencesForTarget returns the keys the target holds references to.
func (r *referenceSet) referencesForTarget(targetID model.TargetID) []model.DocumentKey {
	keys := make(model.DocumentKeySet, len(r.byTarget[targetID]))
	for key := range r.byTarget[targetID] {
		keys.Add(key)
	}
	return keys.Sorted()
}

// removeReferencesForTarget drops every reference the target holds and
// returns the affected keys.
func (r *referenceSet) removeReferencesForTarget(targetID model.TargetID) []model.DocumentKey {
	keys := r.referencesForTarget(targetID)
	for _, key := range keys {
		r.remove(key, targetID)
	}
	return keys
}
