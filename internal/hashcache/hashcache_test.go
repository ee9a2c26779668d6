package hashcache

import (
	"strings"
	"testing"
	"time"

	"imagededup/internal/models"
)

func openTemp(t *testing.T, dir string) *Cache {
	t.Helper()
	c, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return c
}

func TestKey(t *testing.T) {
	k1 := Key([]byte("payload"), models.AlgoPHash)
	k2 := Key([]byte("payload"), models.AlgoDHash)
	k3 := Key([]byte("payload"), models.AlgoPHash)

	if !strings.HasPrefix(k1, "phash:") {
		t.Errorf("key %q should start with the algorithm", k1)
	}
	if len(k1) != len("phash:")+64 {
		t.Errorf("key %q should carry a sha256 hex digest", k1)
	}
	if k1 == k2 {
		t.Error("different algorithms must not share a key")
	}
	if k1 != k3 {
		t.Error("same payload and algorithm must share a key")
	}
}

func TestCache_StoreLookup(t *testing.T) {
	c := openTemp(t, "")
	defer c.Close()

	data := []byte("image bytes")
	if _, ok := c.Lookup(data, models.AlgoPHash); ok {
		t.Fatal("empty cache should miss")
	}

	want := models.HashResult{
		Value:     "ff00ff00ff00ff00",
		Algorithm: models.AlgoPHash,
		BitLength: 64,
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}
	if err := c.Store(data, models.AlgoPHash, want); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, ok := c.Lookup(data, models.AlgoPHash)
	if !ok {
		t.Fatal("expected hit after Store")
	}
	if got.Value != want.Value || got.BitLength != 64 || !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if _, ok := c.Lookup(data, models.AlgoDHash); ok {
		t.Error("other algorithm should miss")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 2 {
		t.Errorf("stats = %+v, want 1 hit 2 misses", stats)
	}
}

func TestCache_PersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	data := []byte("persisted")

	c := openTemp(t, dir)
	if err := c.Store(data, models.AlgoSHA256, models.HashResult{Value: "abc", Algorithm: models.AlgoSHA256}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := openTemp(t, dir)
	defer reopened.Close()

	got, ok := reopened.Lookup(data, models.AlgoSHA256)
	if !ok {
		t.Fatal("entry should survive reopen")
	}
	if got.Value != "abc" {
		t.Errorf("value = %q, want abc", got.Value)
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	c := openTemp(t, "")
	defer c.Close()

	key := Key([]byte("x"), models.AlgoMD5)
	if err := c.Put(key, models.HashResult{Value: "1"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := c.Get(key); ok {
		t.Error("deleted key should miss")
	}
	if err := c.Delete(key); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}

	if err := c.Put(key, models.HashResult{Value: "2"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := c.Get(key); ok {
		t.Error("cleared cache should miss")
	}
}
