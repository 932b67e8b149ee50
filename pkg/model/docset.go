package model

import "sort"

// DocumentSet is an ordered set of documents, ordered by a query
// comparator with the document key as final tie-break. It is the
// materialized result set a view exposes to the application.
type DocumentSet struct {
	compare func(a, b *Document) int
	docs    []*Document
	index   map[DocumentKey]*Document
}

// NewDocumentSet creates an empty set ordered by compare.
func NewDocumentSet(compare func(a, b *Document) int) *DocumentSet {
	return &DocumentSet{
		compare: compare,
		index:   make(map[DocumentKey]*Document),
	}
}

// Clone returns an independent copy sharing the document values.
func (s *DocumentSet) Clone() *DocumentSet {
	c := &DocumentSet{
		compare: s.compare,
		docs:    make([]*Document, len(s.docs)),
		index:   make(map[DocumentKey]*Document, len(s.index)),
	}
	copy(c.docs, s.docs)
	for k, v := range s.index {
		c.index[k] = v
	}
	return c
}

func (s *DocumentSet) Len() int { return len(s.docs) }

// Get returns the document for key, or nil.
func (s *DocumentSet) Get(key DocumentKey) *Document {
	return s.index[key]
}

// Contains reports whether key is in the set.
func (s *DocumentSet) Contains(key DocumentKey) bool {
	_, ok := s.index[key]
	return ok
}

// Add inserts doc, replacing any previous document with the same key.
func (s *DocumentSet) Add(doc *Document) {
	s.Remove(doc.Key())
	i := sort.Search(len(s.docs), func(i int) bool {
		return s.compare(s.docs[i], doc) >= 0
	})
	s.docs = append(s.docs, nil)
	copy(s.docs[i+1:], s.docs[i:])
	s.docs[i] = doc
	s.index[doc.Key()] = doc
}

// Remove deletes the document with key, if present.
func (s *DocumentSet) Remove(key DocumentKey) {
	prev, ok := s.index[key]
	if !ok {
		return
	}
	delete(s.index, key)
	for i, d := range s.docs {
		if d == prev {
			s.docs = append(s.docs[:i], s.docs[i+1:]...)
			break
		}
	}
}

// First returns the first document in order, or nil if empty.
func (s *DocumentSet) First() *Document {
	if len(s.docs) == 0 {
		return nil
	}
	return s.docs[0]
}

// Last returns the last document in order, or nil if empty.
func (s *DocumentSet) Last() *Document {
	if len(s.docs) == 0 {
		return nil
	}
	return s.docs[len(s.docs)-1]
}

// Docs returns the documents in order. Callers must not mutate the slice.
func (s *DocumentSet) Docs() []*Document { return s.docs }

// Keys returns the key set of the documents.
func (s *DocumentSet) Keys() DocumentKeySet {
	keys := make(DocumentKeySet, len(s.index))
	for k := range s.index {
		keys[k] = struct{}{}
	}
	return keys
}
