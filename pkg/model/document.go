package model

import (
	"reflect"
	"strings"
)

// ObjectValue is the field data of a document, a JSON-shaped map.
type ObjectValue map[string]interface{}

// Field resolves a dot-separated field path, descending through nested
// maps. The second return value reports whether the path exists.
func (o ObjectValue) Field(path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	var current interface{} = map[string]interface{}(o)
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Clone returns a shallow copy of the top-level map.
func (o ObjectValue) Clone() ObjectValue {
	c := make(ObjectValue, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// DocumentState describes the relationship of a document's local copy to
// the authoritative server copy.
type DocumentState int

const (
	// DocumentStateSynced means the document matches the server version.
	DocumentStateSynced DocumentState = iota
	// DocumentStateCommittedMutations means mutations affecting the
	// document were acknowledged but a consistent watch snapshot has not
	// caught up yet.
	DocumentStateCommittedMutations
	// DocumentStateLocalMutations means unacknowledged local mutations
	// are applied on top of the document.
	DocumentStateLocalMutations
)

// MaybeDocument is either a Document or a NoDocument tombstone. It carries
// the key and the last version known for that key.
type MaybeDocument interface {
	Key() DocumentKey
	Version() SnapshotVersion
	HasPendingWrites() bool
}

// Document is a document that is known to exist, with its field data.
type Document struct {
	key     DocumentKey
	version SnapshotVersion
	fields  ObjectValue
	state   DocumentState
}

// NewDocument creates a document at the given version.
func NewDocument(key DocumentKey, version SnapshotVersion, fields ObjectValue, state DocumentState) *Document {
	return &Document{key: key, version: version, fields: fields, state: state}
}

func (d *Document) Key() DocumentKey         { return d.key }
func (d *Document) Version() SnapshotVersion { return d.version }

// Data returns the document's field data. Callers must not mutate it.
func (d *Document) Data() ObjectValue { return d.fields }

// Field resolves a dot-separated field path in the document data.
func (d *Document) Field(path string) (interface{}, bool) {
	return d.fields.Field(path)
}

// HasLocalMutations reports whether unacknowledged mutations are applied.
func (d *Document) HasLocalMutations() bool {
	return d.state == DocumentStateLocalMutations
}

// HasCommittedMutations reports whether acknowledged-but-unwatched
// mutations are applied.
func (d *Document) HasCommittedMutations() bool {
	return d.state == DocumentStateCommittedMutations
}

// HasPendingWrites reports whether the document differs from the synced
// server state in any way.
func (d *Document) HasPendingWrites() bool {
	return d.state != DocumentStateSynced
}

// DataEquals compares the field data of two documents.
func (d *Document) DataEquals(other *Document) bool {
	return reflect.DeepEqual(d.fields, other.fields)
}

// NoDocument is a tombstone: the server (or a local delete) says the
// document does not exist at the given version.
type NoDocument struct {
	key                   DocumentKey
	version               SnapshotVersion
	hasCommittedMutations bool
}

// NewNoDocument creates a tombstone for key at version.
func NewNoDocument(key DocumentKey, version SnapshotVersion, hasCommittedMutations bool) *NoDocument {
	return &NoDocument{key: key, version: version, hasCommittedMutations: hasCommittedMutations}
}

func (d *NoDocument) Key() DocumentKey         { return d.key }
func (d *NoDocument) Version() SnapshotVersion { return d.version }

// HasCommittedMutations reports whether the deletion was acknowledged but
// not yet observed through watch.
func (d *NoDocument) HasCommittedMutations() bool { return d.hasCommittedMutations }

func (d *NoDocument) HasPendingWrites() bool { return d.hasCommittedMutations }
