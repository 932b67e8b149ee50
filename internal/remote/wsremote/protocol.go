// Package wsremote implements the remote store over a single WebSocket
// carrying the realtime JSON frame protocol: listens, the write
// pipeline, transaction RPCs and server-aggregated watch events all
// multiplex over one connection.
package wsremote

import (
	"encoding/json"
	"fmt"

	"github.com/syntrixbase/syntrix-go/internal/remote"
	"github.com/syntrixbase/syntrix-go/pkg/model"
)

// Message types.
const (
	TypeListen       = "listen"
	TypeUnlisten     = "unlisten"
	TypeWrite        = "write"
	TypeLookup       = "lookup"
	TypeCommit       = "commit"
	TypeEvent        = "event"
	TypeWriteAck     = "write_ack"
	TypeWriteError   = "write_error"
	TypeTargetError  = "target_error"
	TypeLookupResult = "lookup_result"
	TypeCommitResult = "commit_result"
)

// Frame is the envelope for all messages. ID correlates RPC-style
// request/response pairs and is empty on one-way frames.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newFrame(id, frameType string, payload interface{}) (*Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", frameType, err)
	}
	return &Frame{ID: id, Type: frameType, Payload: raw}, nil
}

// ListenPayload (client -> server).
type ListenPayload struct {
	TargetID int32       `json:"targetId"`
	Query    model.Query `json:"query"`
	Purpose  string      `json:"purpose"`
}

// UnlistenPayload (client -> server).
type UnlistenPayload struct {
	TargetID int32 `json:"targetId"`
}

// WritePayload (client -> server).
type WritePayload struct {
	BatchID int       `json:"batchId"`
	Writes  []WireWrite `json:"writes"`
}

// WireWrite is one mutation on the wire.
type WireWrite struct {
	Op    string            `json:"op"` // set | patch | delete
	Path  string            `json:"path"`
	Value model.ObjectValue `json:"value,omitempty"`
}

// LookupPayload (client -> server).
type LookupPayload struct {
	Paths []string `json:"paths"`
}

// CommitPayload (client -> server).
type CommitPayload struct {
	Writes        []WireWrite      `json:"writes"`
	Preconditions map[string]int64 `json:"preconditions,omitempty"`
}

// WireStatus carries an error across the wire.
type WireStatus struct {
	Code    int32  `json:"code"`
	Message string `json:"message,omitempty"`
}

// Err converts the wire status to a StatusError, nil for OK.
func (s *WireStatus) Err() error {
	if s == nil || model.Code(s.Code) == model.OK {
		return nil
	}
	return model.NewStatusError(model.Code(s.Code), s.Message)
}

// WireDocument is a document state on the wire.
type WireDocument struct {
	Path    string            `json:"path"`
	Version int64             `json:"version"`
	NoDoc   bool              `json:"noDoc,omitempty"`
	Fields  model.ObjectValue `json:"fields,omitempty"`
}

// WireTargetChange is one target's delta inside an event frame.
type WireTargetChange struct {
	TargetID    int32    `json:"targetId"`
	Current     bool     `json:"current,omitempty"`
	ResumeToken []byte   `json:"resumeToken,omitempty"`
	Added       []string `json:"added,omitempty"`
	Modified    []string `json:"modified,omitempty"`
	Removed     []string `json:"removed,omitempty"`
	Mismatch    bool     `json:"mismatch,omitempty"`
}

// EventPayload (server -> client): a pre-aggregated watch event.
type EventPayload struct {
	SnapshotVersion int64              `json:"snapshotVersion"`
	Targets         []WireTargetChange `json:"targets,omitempty"`
	Documents       []WireDocument     `json:"documents,omitempty"`
}

// WriteAckPayload (server -> client).
type WriteAckPayload struct {
	BatchID       int     `json:"batchId"`
	CommitVersion int64   `json:"commitVersion"`
	Versions      []int64 `json:"versions"`
}

// WriteErrorPayload (server -> client).
type WriteErrorPayload struct {
	BatchID int        `json:"batchId"`
	Status  WireStatus `json:"status"`
}

// TargetErrorPayload (server -> client).
type TargetErrorPayload struct {
	TargetID int32      `json:"targetId"`
	Status   WireStatus `json:"status"`
}

// LookupResultPayload (server -> client).
type LookupResultPayload struct {
	Documents []WireDocument `json:"documents"`
	Status    WireStatus     `json:"status"`
}

// CommitResultPayload (server -> client).
type CommitResultPayload struct {
	CommitVersion int64      `json:"commitVersion"`
	Versions      []int64    `json:"versions"`
	Status        WireStatus `json:"status"`
}

func mutationToWire(m model.Mutation) (WireWrite, error) {
	switch mut := m.(type) {
	case *model.SetMutation:
		return WireWrite{Op: "set", Path: mut.DocKey.Path(), Value: mut.Value}, nil
	case *model.PatchMutation:
		return WireWrite{Op: "patch", Path: mut.DocKey.Path(), Value: mut.Value}, nil
	case *model.DeleteMutation:
		return WireWrite{Op: "delete", Path: mut.DocKey.Path()}, nil
	default:
		return WireWrite{}, fmt.Errorf("unsupported mutation type %T", m)
	}
}

func mutationsToWire(mutations []model.Mutation) ([]WireWrite, error) {
	writes := make([]WireWrite, len(mutations))
	for i, m := range mutations {
		w, err := mutationToWire(m)
		if err != nil {
			return nil, err
		}
		writes[i] = w
	}
	return writes, nil
}

func wireToDocument(w WireDocument) (model.MaybeDocument, error) {
	key, err := model.NewDocumentKey(w.Path)
	if err != nil {
		return nil, err
	}
	version := model.SnapshotVersion(w.Version)
	if w.NoDoc {
		return model.NewNoDocument(key, version, false), nil
	}
	return model.NewDocument(key, version, w.Fields, model.DocumentStateSynced), nil
}

func keySetFromPaths(paths []string) (model.DocumentKeySet, error) {
	keys := model.NewDocumentKeySet()
	for _, p := range paths {
		key, err := model.NewDocumentKey(p)
		if err != nil {
			return nil, err
		}
		keys.Add(key)
	}
	return keys, nil
}

// decodeEvent turns an event frame into a remote.Event. limboTargets
// tells the decoder which targets are limbo resolutions, so their
// document updates are flagged as resolved limbo documents and bypass
// the local store's version check.
func decodeEvent(payload EventPayload, limboTargets map[model.TargetID]bool) (*remote.Event, error) {
	event := remote.NewEvent(model.SnapshotVersion(payload.SnapshotVersion))

	for _, wire := range payload.Targets {
		targetID := model.TargetID(wire.TargetID)
		tc := remote.NewTargetChange()
		tc.Current = wire.Current
		tc.ResumeToken = wire.ResumeToken
		var err error
		if tc.Added, err = keySetFromPaths(wire.Added); err != nil {
			return nil, err
		}
		if tc.Modified, err = keySetFromPaths(wire.Modified); err != nil {
			return nil, err
		}
		if tc.Removed, err = keySetFromPaths(wire.Removed); err != nil {
			return nil, err
		}
		event.TargetChanges[targetID] = tc
		if wire.Mismatch {
			event.TargetMismatches[targetID] = struct{}{}
		}
		if limboTargets[targetID] {
			for key := range tc.Added {
				event.ResolvedLimboDocuments.Add(key)
			}
			for key := range tc.Removed {
				event.ResolvedLimboDocuments.Add(key)
			}
		}
	}

	for _, wire := range payload.Documents {
		doc, err := wireToDocument(wire)
		if err != nil {
			return nil, err
		}
		event.DocumentUpdates[doc.Key()] = doc
	}
	return event, nil
}
