package local

import "github.com/syntrixbase/syntrix-go/pkg/model"

// memoryCache is the default, non-persistent DocumentCache.
type memoryCache struct {
	docs map[model.DocumentKey]model.MaybeDocument
}

// NewMemoryCache creates an empty in-memory document cache.
func NewMemoryCache() DocumentCache {
	return &memoryCache{docs: make(map[model.DocumentKey]model.MaybeDocument)}
}

func (c *memoryCache) Get(key model.DocumentKey) (model.MaybeDocument, error) {
	return c.docs[key], nil
}

func (c *memoryCache) Set(doc model.MaybeDocument) error {
	c.docs[doc.Key()] = doc
	return nil
}

func (c *memoryCache) Keys(collection string) ([]model.DocumentKey, error) {
	var keys []model.DocumentKey
	for k := range c.docs {
		if k.Collection() == collection {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (c *memoryCache) Close() error { return nil }
