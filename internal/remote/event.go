package remote

import "github.com/syntrixbase/syntrix-go/pkg/model"

// TargetChange describes how one watch target changed in an event:
// membership deltas, the CURRENT marker and the resume token to continue
// from.
type TargetChange struct {
	// Current is set once the server has sent everything matching the
	// target up to the resume token.
	Current bool

	// ResumeToken is the opaque cursor for resuming this target. The
	// client passes it through to the local store untouched.
	ResumeToken []byte

	// Added holds keys that joined the target's result set.
	Added model.DocumentKeySet

	// Modified holds keys that changed while already in the result set.
	Modified model.DocumentKeySet

	// Removed holds keys that left the result set.
	Removed model.DocumentKeySet
}

// NewTargetChange returns an empty change with allocated sets.
func NewTargetChange() *TargetChange {
	return &TargetChange{
		Added:    model.NewDocumentKeySet(),
		Modified: model.NewDocumentKeySet(),
		Removed:  model.NewDocumentKeySet(),
	}
}

// ChangeCount is the combined size of the membership deltas.
func (tc *TargetChange) ChangeCount() int {
	return tc.Added.Len() + tc.Modified.Len() + tc.Removed.Len()
}

// Event is an aggregated watch event: per-target changes plus the
// document contents that accompanied them.
type Event struct {
	// SnapshotVersion is the consistent version the event describes.
	SnapshotVersion model.SnapshotVersion

	// TargetChanges maps affected targets to their deltas.
	TargetChanges map[model.TargetID]*TargetChange

	// TargetMismatches holds targets whose existence filter disagreed
	// with the local result set and that must be re-listened.
	TargetMismatches map[model.TargetID]struct{}

	// DocumentUpdates holds the new state of every document the event
	// mentioned.
	DocumentUpdates map[model.DocumentKey]model.MaybeDocument

	// ResolvedLimboDocuments marks keys whose update resolves a limbo
	// lookup; the local store applies these regardless of version.
	ResolvedLimboDocuments model.DocumentKeySet
}

// NewEvent returns an empty event at the given version.
func NewEvent(version model.SnapshotVersion) *Event {
	return &Event{
		SnapshotVersion:        version,
		TargetChanges:          make(map[model.TargetID]*TargetChange),
		TargetMismatches:       make(map[model.TargetID]struct{}),
		DocumentUpdates:        make(map[model.DocumentKey]model.MaybeDocument),
		ResolvedLimboDocuments: model.NewDocumentKeySet(),
	}
}
