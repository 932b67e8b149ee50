package wsremote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/syntrix-go/pkg/model"
)

func TestMutationToWire(t *testing.T) {
	key := model.MustDocumentKey("users/alice")

	set, err := mutationToWire(model.NewSetMutation(key, model.ObjectValue{"n": 1}))
	require.NoError(t, err)
	assert.Equal(t, WireWrite{Op: "set", Path: "users/alice", Value: model.ObjectValue{"n": 1}}, set)

	patch, err := mutationToWire(model.NewPatchMutation(key, model.ObjectValue{"a.b": 2}))
	require.NoError(t, err)
	assert.Equal(t, "patch", patch.Op)

	del, err := mutationToWire(model.NewDeleteMutation(key))
	require.NoError(t, err)
	assert.Equal(t, WireWrite{Op: "delete", Path: "users/alice"}, del)
}

func TestWireToDocument(t *testing.T) {
	doc, err := wireToDocument(WireDocument{Path: "users/alice", Version: 7, Fields: model.ObjectValue{"n": float64(1)}})
	require.NoError(t, err)
	d, ok := doc.(*model.Document)
	require.True(t, ok)
	assert.Equal(t, model.SnapshotVersion(7), d.Version())
	assert.False(t, d.HasPendingWrites())

	noDoc, err := wireToDocument(WireDocument{Path: "users/gone", Version: 3, NoDoc: true})
	require.NoError(t, err)
	_, ok = noDoc.(*model.NoDocument)
	assert.True(t, ok)

	_, err = wireToDocument(WireDocument{Path: "not-a-doc-path"})
	assert.Error(t, err)
}

func TestWireStatusErr(t *testing.T) {
	assert.NoError(t, (&WireStatus{Code: int32(model.OK)}).Err())
	var nilStatus *WireStatus
	assert.NoError(t, nilStatus.Err())

	err := (&WireStatus{Code: int32(model.PermissionDenied), Message: "nope"}).Err()
	require.Error(t, err)
	assert.Equal(t, model.PermissionDenied, model.StatusCode(err))
}

func TestDecodeEvent(t *testing.T) {
	payload := EventPayload{
		SnapshotVersion: 9,
		Targets: []WireTargetChange{
			{TargetID: 2, Current: true, Added: []string{"users/a"}, Removed: []string{"users/b"}},
			{TargetID: 3, Added: []string{"users/x"}},
			{TargetID: 4, Mismatch: true},
		},
		Documents: []WireDocument{
			{Path: "users/a", Version: 9, Fields: model.ObjectValue{"n": float64(1)}},
			{Path: "users/b", Version: 9, NoDoc: true},
		},
	}

	event, err := decodeEvent(payload, map[model.TargetID]bool{3: true})
	require.NoError(t, err)

	assert.Equal(t, model.SnapshotVersion(9), event.SnapshotVersion)
	require.Len(t, event.TargetChanges, 3)

	tc := event.TargetChanges[2]
	assert.True(t, tc.Current)
	assert.True(t, tc.Added.Contains(model.MustDocumentKey("users/a")))
	assert.True(t, tc.Removed.Contains(model.MustDocumentKey("users/b")))

	// Documents delivered through a limbo target are flagged resolved.
	assert.True(t, event.ResolvedLimboDocuments.Contains(model.MustDocumentKey("users/x")))
	assert.False(t, event.ResolvedLimboDocuments.Contains(model.MustDocumentKey("users/a")))

	_, mismatch := event.TargetMismatches[4]
	assert.True(t, mismatch)

	require.Len(t, event.DocumentUpdates, 2)
	_, isNoDoc := event.DocumentUpdates[model.MustDocumentKey("users/b")].(*model.NoDocument)
	assert.True(t, isNoDoc)
}

func TestDecodeEventRejectsBadPaths(t *testing.T) {
	_, err := decodeEvent(EventPayload{
		Targets: []WireTargetChange{{TargetID: 2, Added: []string{"users"}}},
	}, nil)
	assert.Error(t, err)
}
