package model

import "strings"

// BatchID identifies a mutation batch. IDs are positive and monotonically
// increasing within a client session.
type BatchID int

// BatchIDUnknown marks the absence of a batch, for example when the
// mutation queue is empty.
const BatchIDUnknown BatchID = -1

// MutationResult is the per-mutation outcome of a committed batch.
type MutationResult struct {
	Version SnapshotVersion `json:"version"`
}

// Mutation is a single document write. ApplyToLocalView overlays the
// mutation on the locally cached state; ApplyToRemoteDocument applies the
// server-acknowledged outcome.
type Mutation interface {
	Key() DocumentKey
	ApplyToLocalView(existing MaybeDocument) MaybeDocument
	ApplyToRemoteDocument(existing MaybeDocument, result MutationResult) MaybeDocument
}

// SetMutation replaces the full document value.
type SetMutation struct {
	DocKey DocumentKey
	Value  ObjectValue
}

// NewSetMutation creates a set mutation for key.
func NewSetMutation(key DocumentKey, value ObjectValue) *SetMutation {
	return &SetMutation{DocKey: key, Value: value}
}

func (m *SetMutation) Key() DocumentKey { return m.DocKey }

func (m *SetMutation) ApplyToLocalView(existing MaybeDocument) MaybeDocument {
	version := VersionNone
	if existing != nil {
		version = existing.Version()
	}
	return NewDocument(m.DocKey, version, m.Value, DocumentStateLocalMutations)
}

func (m *SetMutation) ApplyToRemoteDocument(existing MaybeDocument, result MutationResult) MaybeDocument {
	return NewDocument(m.DocKey, result.Version, m.Value, DocumentStateCommittedMutations)
}

// PatchMutation merges fields into an existing document. Dotted keys in
// Value address nested fields. A patch against a missing document is a
// no-op locally; the server rejects it.
type PatchMutation struct {
	DocKey DocumentKey
	Value  ObjectValue
}

// NewPatchMutation creates a patch mutation for key.
func NewPatchMutation(key DocumentKey, value ObjectValue) *PatchMutation {
	return &PatchMutation{DocKey: key, Value: value}
}

func (m *PatchMutation) Key() DocumentKey { return m.DocKey }

func (m *PatchMutation) ApplyToLocalView(existing MaybeDocument) MaybeDocument {
	doc, ok := existing.(*Document)
	if !ok {
		return existing
	}
	return NewDocument(m.DocKey, doc.Version(), m.patch(doc.Data()), DocumentStateLocalMutations)
}

func (m *PatchMutation) ApplyToRemoteDocument(existing MaybeDocument, result MutationResult) MaybeDocument {
	doc, ok := existing.(*Document)
	if !ok {
		// The patched document is not cached locally. Record the commit as
		// a tombstone-with-committed-mutations so the version is not lost.
		return NewNoDocument(m.DocKey, result.Version, true)
	}
	return NewDocument(m.DocKey, result.Version, m.patch(doc.Data()), DocumentStateCommittedMutations)
}

func (m *PatchMutation) patch(base ObjectValue) ObjectValue {
	merged := base.Clone()
	for path, value := range m.Value {
		setFieldPath(merged, path, value)
	}
	return merged
}

func setFieldPath(obj ObjectValue, path string, value interface{}) {
	segments := strings.Split(path, ".")
	current := map[string]interface{}(obj)
	for _, seg := range segments[:len(segments)-1] {
		// Copy each nested map on the path so the base document's maps
		// are never written to.
		next := make(map[string]interface{})
		if existing, ok := current[seg].(map[string]interface{}); ok {
			for k, v := range existing {
				next[k] = v
			}
		}
		current[seg] = next
		current = next
	}
	current[segments[len(segments)-1]] = value
}

// DeleteMutation removes the document.
type DeleteMutation struct {
	DocKey DocumentKey
}

// NewDeleteMutation creates a delete mutation for key.
func NewDeleteMutation(key DocumentKey) *DeleteMutation {
	return &DeleteMutation{DocKey: key}
}

func (m *DeleteMutation) Key() DocumentKey { return m.DocKey }

func (m *DeleteMutation) ApplyToLocalView(existing MaybeDocument) MaybeDocument {
	return NewNoDocument(m.DocKey, VersionNone, false)
}

func (m *DeleteMutation) ApplyToRemoteDocument(existing MaybeDocument, result MutationResult) MaybeDocument {
	return NewNoDocument(m.DocKey, result.Version, true)
}

// MutationBatch is an atomic group of mutations written together.
type MutationBatch struct {
	ID        BatchID
	Mutations []Mutation
}

// Keys returns the set of keys the batch writes.
func (b *MutationBatch) Keys() DocumentKeySet {
	keys := make(DocumentKeySet, len(b.Mutations))
	for _, m := range b.Mutations {
		keys.Add(m.Key())
	}
	return keys
}

// ApplyToLocalView overlays every mutation of the batch affecting key.
func (b *MutationBatch) ApplyToLocalView(key DocumentKey, existing MaybeDocument) MaybeDocument {
	for _, m := range b.Mutations {
		if m.Key() == key {
			existing = m.ApplyToLocalView(existing)
		}
	}
	return existing
}

// MutationBatchResult is the server acknowledgment of a batch.
type MutationBatchResult struct {
	Batch         *MutationBatch
	CommitVersion SnapshotVersion
	Results       []MutationResult
}
