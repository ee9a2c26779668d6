package hashcache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/dgraph-io/badger/v4"

	"imagededup/internal/hash"
	"imagededup/internal/models"
)

// Cache persists computed hashes keyed by algorithm and payload digest so
// that unchanged payloads are not decoded again on the next scan.
//
// A bloom filter in front of BadgerDB answers most misses without a disk read.
type Cache struct {
	db *badger.DB

	mu    sync.RWMutex
	bloom *bloom.BloomFilter

	hits   uint64
	misses uint64
}

// Config holds cache configuration parameters
type Config struct {
	Dir         string  // BadgerDB directory; empty keeps everything in memory
	BloomSize   uint    // Expected number of entries
	BloomFPRate float64 // False positive rate (e.g. 0.01 for 1%)
}

// DefaultConfig returns defaults for a cache stored in dir
func DefaultConfig(dir string) Config {
	return Config{
		Dir:         dir,
		BloomSize:   100000,
		BloomFPRate: 0.01,
	}
}

// Open opens (or creates) the cache and loads existing keys into the filter
func Open(cfg Config) (*Cache, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.Dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	opts.SyncWrites = false
	opts.NumVersionsToKeep = 1

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open hash cache: %w", err)
	}

	if cfg.BloomSize == 0 {
		cfg.BloomSize = 100000
	}
	if cfg.BloomFPRate <= 0 {
		cfg.BloomFPRate = 0.01
	}

	c := &Cache{
		db:    db,
		bloom: bloom.NewWithEstimates(cfg.BloomSize, cfg.BloomFPRate),
	}
	if err := c.loadKeys(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) loadKeys() error {
	return c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			c.bloom.Add(it.Item().KeyCopy(nil))
		}
		return nil
	})
}

// Key derives the cache key for a payload hashed with algo
func Key(data []byte, algo models.Algorithm) string {
	sum := sha256.Sum256(data)
	return string(algo) + ":" + hex.EncodeToString(sum[:])
}

// Lookup returns the cached hash of data under algo
func (c *Cache) Lookup(data []byte, algo models.Algorithm) (models.HashResult, bool) {
	return c.Get(Key(data, algo))
}

// Store caches result as the hash of data under algo
func (c *Cache) Store(data []byte, algo models.Algorithm, result models.HashResult) error {
	return c.Put(Key(data, algo), result)
}

// Get retrieves a cached hash
func (c *Cache) Get(key string) (models.HashResult, bool) {
	c.mu.RLock()
	maybe := c.bloom.TestString(key)
	c.mu.RUnlock()

	if !maybe {
		c.record(false)
		return models.HashResult{}, false
	}

	var result models.HashResult
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			parsed, err := hash.ParseFromStorage(string(val), hash.FormatJSON)
			if err != nil {
				return err
			}
			for _, r := range parsed {
				result = r
			}
			return nil
		})
	})
	if err != nil {
		c.record(false)
		return models.HashResult{}, false
	}

	c.record(true)
	return result, true
}

// Put stores a hash
func (c *Cache) Put(key string, result models.HashResult) error {
	val, err := hash.FormatForStorage(map[models.Algorithm]models.HashResult{result.Algorithm: result}, hash.FormatJSON)
	if err != nil {
		return fmt.Errorf("failed to encode hash: %w", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(val))
	})
	if err != nil {
		return fmt.Errorf("failed to store hash: %w", err)
	}

	c.mu.Lock()
	c.bloom.AddString(key)
	c.mu.Unlock()
	return nil
}

// Delete removes a cached hash. The bloom filter keeps the key until the
// next Open.
func (c *Cache) Delete(key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete hash: %w", err)
	}
	return nil
}

// Stats holds cache performance counters
type Stats struct {
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Stats returns hit/miss counters since Open
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *Cache) record(hit bool) {
	c.mu.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
}

// Clear drops every cached hash
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.bloom.ClearAll()
	c.mu.Unlock()

	return c.db.DropAll()
}

// Close flushes pending writes and closes the store
func (c *Cache) Close() error {
	return c.db.Close()
}
