package model

import (
	"fmt"
	"sort"
	"strings"
)

// DocumentKey is the hierarchical path of a document, for example
// "users/alice" or "users/alice/orders/7". Keys are totally ordered by
// their path string, which sorts parents before children.
type DocumentKey struct {
	path string
}

// NewDocumentKey parses and validates a document path. A valid path has a
// positive, even number of non-empty segments.
func NewDocumentKey(path string) (DocumentKey, error) {
	segments := strings.Split(path, "/")
	if len(segments) == 0 || len(segments)%2 != 0 {
		return DocumentKey{}, fmt.Errorf("invalid document path %q: must have an even number of segments", path)
	}
	for _, s := range segments {
		if s == "" {
			return DocumentKey{}, fmt.Errorf("invalid document path %q: empty segment", path)
		}
	}
	return DocumentKey{path: path}, nil
}

// MustDocumentKey is NewDocumentKey but panics on invalid input. Intended
// for literals in tests and for paths already validated upstream.
func MustDocumentKey(path string) DocumentKey {
	k, err := NewDocumentKey(path)
	if err != nil {
		panic(err)
	}
	return k
}

// Path returns the full slash-separated path.
func (k DocumentKey) Path() string { return k.path }

// Collection returns the path of the collection containing the document.
func (k DocumentKey) Collection() string {
	idx := strings.LastIndex(k.path, "/")
	if idx < 0 {
		return ""
	}
	return k.path[:idx]
}

// DocumentID returns the last path segment.
func (k DocumentKey) DocumentID() string {
	idx := strings.LastIndex(k.path, "/")
	return k.path[idx+1:]
}

// IsZero reports whether the key is the zero value.
func (k DocumentKey) IsZero() bool { return k.path == "" }

// Compare orders keys by path.
func (k DocumentKey) Compare(other DocumentKey) int {
	return strings.Compare(k.path, other.path)
}

func (k DocumentKey) String() string { return k.path }

// IsDocumentPath reports whether path names a document rather than a
// collection.
func IsDocumentPath(path string) bool {
	n := len(strings.Split(path, "/"))
	return n > 0 && n%2 == 0
}

// DocumentKeySet is a set of document keys.
type DocumentKeySet map[DocumentKey]struct{}

// NewDocumentKeySet builds a set from the given keys.
func NewDocumentKeySet(keys ...DocumentKey) DocumentKeySet {
	s := make(DocumentKeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s DocumentKeySet) Add(k DocumentKey)    { s[k] = struct{}{} }
func (s DocumentKeySet) Remove(k DocumentKey) { delete(s, k) }

func (s DocumentKeySet) Contains(k DocumentKey) bool {
	_, ok := s[k]
	return ok
}

func (s DocumentKeySet) Len() int { return len(s) }

// Clone returns an independent copy of the set.
func (s DocumentKeySet) Clone() DocumentKeySet {
	c := make(DocumentKeySet, len(s))
	for k := range s {
		c[k] = struct{}{}
	}
	return c
}

// Sorted returns the keys in path order.
func (s DocumentKeySet) Sorted() []DocumentKey {
	keys := make([]DocumentKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
	return keys
}
