// Package pebblecache persists the remote document cache in PebbleDB so
// a client restart starts from its last synced state instead of an empty
// cache.
package pebblecache

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"

	"github.com/syntrixbase/syntrix-go/internal/local"
	"github.com/syntrixbase/syntrix-go/pkg/model"
)

const docPrefix = "doc/"

// Config configures the cache.
type Config struct {
	// Path is the directory holding the database.
	Path string `yaml:"path"`

	// BlockCacheSize is the Pebble block cache size in bytes.
	BlockCacheSize int64 `yaml:"block_cache_size"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Path:           "data/cache",
		BlockCacheSize: 32 * 1024 * 1024, // 32MB
	}
}

// Cache is a local.DocumentCache backed by PebbleDB.
type Cache struct {
	db *pebble.DB
}

var _ local.DocumentCache = (*Cache)(nil)

// Open opens (creating if necessary) the cache at cfg.Path.
func Open(cfg Config) (*Cache, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	opts := &pebble.Options{
		Cache: pebble.NewCache(cfg.BlockCacheSize),
		Levels: []pebble.LevelOptions{
			{FilterPolicy: bloom.FilterPolicy(10)}, // 10 bits per key, ~1% false positive
		},
	}
	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// storedDoc is the on-disk encoding of a cache entry.
type storedDoc struct {
	Path      string            `json:"path"`
	Version   int64             `json:"version"`
	NoDoc     bool              `json:"noDoc,omitempty"`
	Committed bool              `json:"committed,omitempty"`
	Fields    model.ObjectValue `json:"fields,omitempty"`
}

func encodeDoc(doc model.MaybeDocument) ([]byte, error) {
	stored := storedDoc{
		Path:    doc.Key().Path(),
		Version: int64(doc.Version()),
	}
	switch d := doc.(type) {
	case *model.Document:
		stored.Fields = d.Data()
		stored.Committed = d.HasCommittedMutations()
	case *model.NoDocument:
		stored.NoDoc = true
		stored.Committed = d.HasCommittedMutations()
	default:
		return nil, fmt.Errorf("unsupported document type %T", doc)
	}
	return json.Marshal(stored)
}

func decodeDoc(data []byte) (model.MaybeDocument, error) {
	var stored storedDoc
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode cached document: %w", err)
	}
	key, err := model.NewDocumentKey(stored.Path)
	if err != nil {
		return nil, err
	}
	version := model.SnapshotVersion(stored.Version)
	if stored.NoDoc {
		return model.NewNoDocument(key, version, stored.Committed), nil
	}
	state := model.DocumentStateSynced
	if stored.Committed {
		state = model.DocumentStateCommittedMutations
	}
	return model.NewDocument(key, version, stored.Fields, state), nil
}

// Get implements local.DocumentCache.
func (c *Cache) Get(key model.DocumentKey) (model.MaybeDocument, error) {
	value, closer, err := c.db.Get([]byte(docPrefix + key.Path()))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return decodeDoc(value)
}

// Set implements local.DocumentCache. Documents carrying unacknowledged
// local mutations are never handed to the cache, so every entry is
// durable server (or acknowledged) state.
func (c *Cache) Set(doc model.MaybeDocument) error {
	if d, ok := doc.(*model.Document); ok && d.HasLocalMutations() {
		return fmt.Errorf("refusing to cache document with local mutations: %s", d.Key())
	}
	value, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	return c.db.Set([]byte(docPrefix+doc.Key().Path()), value, pebble.NoSync)
}

// Keys implements local.DocumentCache.
func (c *Cache) Keys(collection string) ([]model.DocumentKey, error) {
	prefix := docPrefix + collection + "/"
	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "\xff"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys []model.DocumentKey
	for iter.First(); iter.Valid(); iter.Next() {
		rest := strings.TrimPrefix(string(iter.Key()), prefix)
		if strings.Contains(rest, "/") {
			// Document of a subcollection, not a direct child.
			continue
		}
		key, err := model.NewDocumentKey(collection + "/" + rest)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, iter.Error()
}

// Close implements local.DocumentCache.
func (c *Cache) Close() error { return c.db.Close() }
