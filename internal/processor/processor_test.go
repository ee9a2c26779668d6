package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"imagededup/internal/hash"
	"imagededup/internal/models"
	"imagededup/internal/strategy"
)

var errFetch = errors.New("connection reset")

type fakeSource struct {
	mu       sync.Mutex
	payloads map[string][]byte
	meta     map[string]models.ItemMetadata
	fetches  map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		payloads: make(map[string][]byte),
		meta:     make(map[string]models.ItemMetadata),
		fetches:  make(map[string]int),
	}
}

func (s *fakeSource) FetchPayload(_ context.Context, item models.Item) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches[item.ID]++
	data, ok := s.payloads[item.ID]
	if !ok {
		return nil, errFetch
	}
	return data, nil
}

func (s *fakeSource) Metadata(_ context.Context, id string) (models.ItemMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meta[id]
	if !ok {
		return models.ItemMetadata{}, fmt.Errorf("no metadata for %s", id)
	}
	return m, nil
}

type fakeExecutor struct {
	calls   []string
	actions []Action
	failOn  map[int]error // call index (0-based) -> error
}

func (e *fakeExecutor) Apply(_ context.Context, id string, action Action) error {
	idx := len(e.calls)
	e.calls = append(e.calls, id)
	e.actions = append(e.actions, action)
	if err, ok := e.failOn[idx]; ok {
		return err
	}
	return nil
}

type countingCache struct {
	mu      sync.Mutex
	entries map[string]models.HashResult
	hits    int
}

func (c *countingCache) key(data []byte, algo models.Algorithm) string {
	return string(algo) + ":" + string(data)
}

func (c *countingCache) Lookup(data []byte, algo models.Algorithm) (models.HashResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[c.key(data, algo)]
	if ok {
		c.hits++
	}
	return r, ok
}

func (c *countingCache) Store(data []byte, algo models.Algorithm, r models.HashResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(data, algo)] = r
	return nil
}

func items(ids ...string) []models.Item {
	out := make([]models.Item, len(ids))
	for i, id := range ids {
		out[i] = models.Item{ID: id, PayloadRef: id}
	}
	return out
}

func checkerPNG(t *testing.T, cell int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestNew_Defaults(t *testing.T) {
	p := New(newFakeSource(), nil)

	if p.workers != 1 {
		t.Errorf("default workers = %d, want 1", p.workers)
	}
	if p.threshold != 95 {
		t.Errorf("default threshold = %v, want 95", p.threshold)
	}
	if p.tag != "Duplicate" {
		t.Errorf("default tag = %q, want Duplicate", p.tag)
	}
	if p.logger == nil {
		t.Error("logger should never be nil")
	}
}

func TestNew_Options(t *testing.T) {
	p := New(newFakeSource(), nil,
		WithThreshold(90),
		WithWorkers(4),
		WithTag("Dupe"),
		WithCacheSize(10),
		WithFetchTimeout(time.Second),
		WithLogger(nil),
	)

	if p.threshold != 90 || p.Threshold() != 90 {
		t.Errorf("threshold = %v, want 90", p.threshold)
	}
	if p.workers != 4 {
		t.Errorf("workers = %d, want 4", p.workers)
	}
	if p.tag != "Dupe" {
		t.Errorf("tag = %q, want Dupe", p.tag)
	}
	if p.cacheSize != 10 {
		t.Errorf("cache size = %d, want 10", p.cacheSize)
	}
	if p.fetchTimeout != time.Second {
		t.Errorf("fetch timeout = %v, want 1s", p.fetchTimeout)
	}
	if p.logger == nil {
		t.Error("nil logger option should keep the default")
	}

	// Invalid values keep defaults
	p = New(newFakeSource(), nil, WithWorkers(0), WithThreshold(-5), WithTag(""))
	if p.workers != 1 || p.threshold != 95 || p.tag != "Duplicate" {
		t.Errorf("invalid options changed defaults: workers=%d threshold=%v tag=%q", p.workers, p.threshold, p.tag)
	}
}

func TestWithThreshold_Range(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		expected  float64
	}{
		{"zero", 0, 0},
		{"exact", 100, 100},
		{"negative", -1, 95},
		{"above 100", 150, 95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(newFakeSource(), nil, WithThreshold(tt.threshold))
			if p.threshold != tt.expected {
				t.Errorf("threshold = %v, want %v", p.threshold, tt.expected)
			}
		})
	}
}

func TestScan_PerItemErrorsAreIsolated(t *testing.T) {
	src := newFakeSource()
	src.payloads["a"] = []byte("same bytes")
	src.payloads["b"] = []byte("same bytes")
	src.payloads["c"] = []byte("other bytes")
	src.payloads["empty"] = []byte{}
	// "missing" has no payload and fails to fetch

	p := New(src, nil, WithThreshold(100))

	var messages []string
	res, err := p.Scan(context.Background(), items("a", "b", "c", "missing", "empty", ""), models.AlgoSHA256,
		func(message string, current, total int) {
			messages = append(messages, message)
		})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if res.TotalItems != 6 {
		t.Errorf("total = %d, want 6", res.TotalItems)
	}
	if res.ItemsHashed != 3 {
		t.Errorf("hashed = %d, want 3", res.ItemsHashed)
	}
	if res.ErrorCount() != 3 {
		t.Errorf("errors = %v, want 3 entries", res.Errors)
	}
	if res.Aborted {
		t.Error("scan should not be marked aborted")
	}
	if res.ScanID == "" {
		t.Error("scan ID should be set")
	}

	if len(res.Groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(res.Groups))
	}
	if fmt.Sprint(res.Groups[0].Items) != "[a b]" {
		t.Errorf("group = %v, want [a b]", res.Groups[0].Items)
	}

	joined := strings.Join(res.Errors, "\n")
	for _, want := range []string{"missing", "empty", "item at index 5"} {
		if !strings.Contains(joined, want) {
			t.Errorf("errors should mention %q: %v", want, res.Errors)
		}
	}

	// Preparing + one per item + Finding duplicates
	if len(messages) != 8 {
		t.Errorf("progress called %d times, want 8: %v", len(messages), messages)
	}
	if messages[len(messages)-1] != "Finding duplicates..." {
		t.Errorf("last progress message = %q", messages[len(messages)-1])
	}
}

func TestScan_PerceptualGroupsIdenticalImages(t *testing.T) {
	src := newFakeSource()
	src.payloads["x1.png"] = checkerPNG(t, 8)
	src.payloads["x2.png"] = checkerPNG(t, 8)
	src.payloads["y.png"] = checkerPNG(t, 32)
	src.payloads["broken.png"] = []byte("not a png")

	p := New(src, nil, WithThreshold(95))
	res, err := p.Scan(context.Background(), items("x1.png", "x2.png", "y.png", "broken.png"), models.AlgoDHash, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if res.ItemsHashed != 3 {
		t.Errorf("hashed = %d, want 3", res.ItemsHashed)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "broken.png") {
		t.Errorf("errors = %v, want one decode error for broken.png", res.Errors)
	}

	found := false
	for _, g := range res.Groups {
		if g.Contains("x1.png") && g.Contains("x2.png") {
			found = true
			if g.SimilarityScores["x2.png"] != 100 {
				t.Errorf("identical images should score 100, got %v", g.SimilarityScores["x2.png"])
			}
		}
	}
	if !found {
		t.Errorf("x1 and x2 should be grouped, got %+v", res.Groups)
	}
}

func TestScan_UnsupportedAlgorithm(t *testing.T) {
	p := New(newFakeSource(), nil)
	_, err := p.Scan(context.Background(), items("a"), models.Algorithm("crc32"), nil)
	if !errors.Is(err, hash.ErrUnsupportedAlgorithm) {
		t.Errorf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestScan_Abort(t *testing.T) {
	src := newFakeSource()
	for _, id := range []string{"a", "b", "c", "d"} {
		src.payloads[id] = []byte(id)
	}

	p := New(src, nil)
	res, err := p.Scan(context.Background(), items("a", "b", "c", "d"), models.AlgoMD5,
		func(message string, current, total int) {
			if strings.HasPrefix(message, "Hashing") {
				p.Abort()
			}
		})
	if err != nil {
		t.Fatalf("aborted scan should not fail: %v", err)
	}

	// The in-flight item completes, nothing new starts
	if res.ItemsHashed != 1 {
		t.Errorf("hashed = %d, want 1", res.ItemsHashed)
	}
	if !res.Aborted {
		t.Error("result should be marked aborted")
	}
	if src.fetches["b"] != 0 || src.fetches["c"] != 0 {
		t.Errorf("items after the abort were fetched: %v", src.fetches)
	}
}

func TestScan_CancelledContext(t *testing.T) {
	src := newFakeSource()
	src.payloads["a"] = []byte("a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(src, nil).Scan(ctx, items("a"), models.AlgoMD5, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if res.ItemsHashed != 0 || !res.Aborted {
		t.Errorf("cancelled scan = hashed %d aborted %v", res.ItemsHashed, res.Aborted)
	}
}

func TestScan_ResetsAbortFlag(t *testing.T) {
	src := newFakeSource()
	src.payloads["a"] = []byte("a")

	p := New(src, nil)
	p.Abort()

	res, err := p.Scan(context.Background(), items("a"), models.AlgoMD5, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if res.ItemsHashed != 1 {
		t.Errorf("a new scan should start with a clear abort flag, hashed = %d", res.ItemsHashed)
	}
}

func TestScan_ParallelMatchesSequential(t *testing.T) {
	src := newFakeSource()
	var ids []string
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("item-%02d", i)
		ids = append(ids, id)
		src.payloads[id] = []byte(fmt.Sprintf("payload-%d", i%7)) // 7 distinct payloads
	}
	ids = append(ids, "missing")

	sequential, err := New(src, nil, WithThreshold(100)).Scan(context.Background(), items(ids...), models.AlgoSHA1, nil)
	if err != nil {
		t.Fatalf("sequential scan failed: %v", err)
	}
	parallel, err := New(src, nil, WithThreshold(100), WithWorkers(8)).Scan(context.Background(), items(ids...), models.AlgoSHA1, nil)
	if err != nil {
		t.Fatalf("parallel scan failed: %v", err)
	}

	if len(sequential.Groups) != 7 {
		t.Errorf("expected 7 groups, got %d", len(sequential.Groups))
	}
	if fmt.Sprint(groupMembers(sequential)) != fmt.Sprint(groupMembers(parallel)) {
		t.Error("parallel hashing changed the grouping")
	}
	if fmt.Sprint(sequential.Errors) != fmt.Sprint(parallel.Errors) {
		t.Errorf("errors differ: %v vs %v", sequential.Errors, parallel.Errors)
	}
}

func TestScan_Idempotent(t *testing.T) {
	src := newFakeSource()
	src.payloads["a"] = checkerPNG(t, 8)
	src.payloads["b"] = checkerPNG(t, 8)
	src.payloads["c"] = checkerPNG(t, 16)

	p := New(src, nil, WithThreshold(90))
	first, err := p.Scan(context.Background(), items("a", "b", "c"), models.AlgoPHash, nil)
	if err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	second, err := p.Scan(context.Background(), items("a", "b", "c"), models.AlgoPHash, nil)
	if err != nil {
		t.Fatalf("second scan failed: %v", err)
	}

	if fmt.Sprint(groupMembers(first)) != fmt.Sprint(groupMembers(second)) {
		t.Errorf("rescans differ: %v vs %v", groupMembers(first), groupMembers(second))
	}
	if first.ScanID == second.ScanID {
		t.Error("each scan should get its own ID")
	}
}

func TestScan_UsesHashCache(t *testing.T) {
	src := newFakeSource()
	src.payloads["a"] = []byte("a")
	src.payloads["b"] = []byte("b")

	cache := &countingCache{entries: make(map[string]models.HashResult)}
	p := New(src, nil, WithHashCache(cache))

	if _, err := p.Scan(context.Background(), items("a", "b"), models.AlgoSHA256, nil); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if cache.hits != 0 {
		t.Errorf("first scan hits = %d, want 0", cache.hits)
	}
	if _, err := p.Scan(context.Background(), items("a", "b"), models.AlgoSHA256, nil); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if cache.hits != 2 {
		t.Errorf("second scan hits = %d, want 2", cache.hits)
	}
}

func TestThumbnailAndMetadata(t *testing.T) {
	src := newFakeSource()
	src.payloads["a"] = checkerPNG(t, 8)
	src.meta["a"] = models.ItemMetadata{Size: 42}

	p := New(src, nil, WithCacheSize(1))
	if _, err := p.Scan(context.Background(), items("a"), models.AlgoAHash, nil); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	data, err := p.Thumbnail(context.Background(), "a")
	if err != nil {
		t.Fatalf("Thumbnail failed: %v", err)
	}
	if !bytes.Equal(data, src.payloads["a"]) {
		t.Error("thumbnail should return the fetched payload")
	}

	meta, err := p.ItemMetadata(context.Background(), "a")
	if err != nil {
		t.Fatalf("ItemMetadata failed: %v", err)
	}
	if meta.Size != 42 || meta.Width != 64 || meta.Height != 64 || meta.Format != "png" {
		t.Errorf("metadata = %+v, want size 42 and decoded 64x64 png", meta)
	}

	if _, err := p.Thumbnail(context.Background(), "unknown"); !errors.Is(err, ErrNoPayload) {
		t.Errorf("expected ErrNoPayload, got %v", err)
	}

	p.Reset()
	if _, err := p.Thumbnail(context.Background(), "a"); !errors.Is(err, ErrNoPayload) {
		t.Errorf("Reset should clear cached payloads, got %v", err)
	}
}

func TestThumbnail_EvictedPayloadIsRefetched(t *testing.T) {
	src := newFakeSource()
	src.payloads["a"] = []byte("a")
	src.payloads["b"] = []byte("b")

	p := New(src, nil, WithCacheSize(1))
	if _, err := p.Scan(context.Background(), items("a", "b"), models.AlgoMD5, nil); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	data, err := p.Thumbnail(context.Background(), "a")
	if err != nil {
		t.Fatalf("Thumbnail failed: %v", err)
	}
	if string(data) != "a" {
		t.Errorf("thumbnail = %q", data)
	}
	if src.fetches["a"] != 2 {
		t.Errorf("evicted payload should be fetched again, fetches = %d", src.fetches["a"])
	}
}

func TestGenerateDecisions_FailedMetadataIsRemoved(t *testing.T) {
	src := newFakeSource()
	src.meta["a"] = models.ItemMetadata{Size: 10}
	src.meta["c"] = models.ItemMetadata{Size: 5}
	// "b" has no metadata

	p := New(src, nil)
	groups := []*models.DuplicateGroup{{ID: 1, Items: []string{"b", "a", "c"}}}

	decisions, err := p.GenerateDecisions(context.Background(), groups, strategy.Largest)
	if err != nil {
		t.Fatalf("GenerateDecisions failed: %v", err)
	}
	d := decisions[0]
	if d.KeepItem != "a" {
		t.Errorf("keep = %q, want a", d.KeepItem)
	}
	removed := append([]string(nil), d.RemoveItems...)
	sort.Strings(removed)
	if fmt.Sprint(removed) != "[b c]" {
		t.Errorf("remove = %v, want b and c", d.RemoveItems)
	}
}

func TestApply_DeleteContinuesAfterFailure(t *testing.T) {
	exec := &fakeExecutor{failOn: map[int]error{1: errors.New("permission denied")}}
	p := New(newFakeSource(), exec)

	decisions := []models.DedupDecision{
		{KeepItem: "k1", RemoveItems: []string{"a", "b"}},
		{KeepItem: "k2", RemoveItems: []string{"c"}},
	}

	res, err := p.Apply(context.Background(), decisions, Action{Kind: ActionDelete}, nil)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if fmt.Sprint(exec.calls) != "[a b c]" {
		t.Errorf("executor calls = %v, want [a b c]", exec.calls)
	}
	if res.Deleted != 2 || res.Errors != 1 {
		t.Errorf("result = deleted %d errors %d, want 2 and 1", res.Deleted, res.Errors)
	}
	if fmt.Sprint(res.DeletedIDs) != "[a c]" {
		t.Errorf("deleted IDs = %v, want [a c]", res.DeletedIDs)
	}
	if len(res.ErrorMessages) != 1 || !strings.Contains(res.ErrorMessages[0], "b") {
		t.Errorf("error messages = %v", res.ErrorMessages)
	}
}

func TestApply_None(t *testing.T) {
	exec := &fakeExecutor{}
	p := New(newFakeSource(), exec)

	res, err := p.Apply(context.Background(), []models.DedupDecision{{KeepItem: "a", RemoveItems: []string{"b"}}}, Action{Kind: ActionNone}, nil)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if res.Total() != 0 || len(exec.calls) != 0 {
		t.Errorf("none should be a no-op, got %+v with calls %v", res, exec.calls)
	}
}

func TestApply_TagUsesDefaultLabel(t *testing.T) {
	exec := &fakeExecutor{failOn: map[int]error{1: fmt.Errorf("wrap: %w", ErrUnsupportedAction)}}
	p := New(newFakeSource(), exec, WithTag("Dupe"))

	res, err := p.Apply(context.Background(), []models.DedupDecision{{KeepItem: "k", RemoveItems: []string{"a", "b"}}}, Action{Kind: ActionTag}, nil)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if res.Tagged != 1 || res.Skipped != 1 || res.Errors != 0 {
		t.Errorf("result = %+v, want 1 tagged 1 skipped", res)
	}
	if exec.actions[0].Label != "Dupe" {
		t.Errorf("label = %q, want Dupe", exec.actions[0].Label)
	}
}

func TestApply_Abort(t *testing.T) {
	exec := &fakeExecutor{}
	p := New(newFakeSource(), exec)

	res, err := p.Apply(context.Background(),
		[]models.DedupDecision{{KeepItem: "k", RemoveItems: []string{"a", "b", "c"}}},
		Action{Kind: ActionRemove},
		func(message string, current, total int) {
			if current == 2 {
				p.Abort()
			}
		})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !res.Aborted || res.Moved != 2 {
		t.Errorf("result = %+v, want aborted after 2 moves", res)
	}
	if fmt.Sprint(res.MovedIDs) != "[a b]" || len(res.DeletedIDs) != 0 {
		t.Errorf("moved IDs = %v deleted IDs = %v, want [a b] and none", res.MovedIDs, res.DeletedIDs)
	}
	if fmt.Sprint(res.GoneIDs()) != "[a b]" {
		t.Errorf("gone IDs = %v, want [a b]", res.GoneIDs())
	}
	if len(exec.calls) != 2 {
		t.Errorf("calls = %v, want 2", exec.calls)
	}
}

// gateExecutor blocks every call until release is closed and records the
// highest number of calls in flight at once
type gateExecutor struct {
	started  chan struct{}
	release  chan struct{}
	once     sync.Once
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newGateExecutor() *gateExecutor {
	return &gateExecutor{started: make(chan struct{}), release: make(chan struct{})}
}

func (e *gateExecutor) Apply(_ context.Context, _ string, _ Action) error {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		peak := e.peak.Load()
		if n <= peak || e.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	e.once.Do(func() { close(e.started) })
	<-e.release
	return nil
}

func TestApply_BusyWhileRunning(t *testing.T) {
	exec := newGateExecutor()
	src := newFakeSource()
	src.payloads["x"] = []byte("x")
	p := New(src, exec)

	decisions := []models.DedupDecision{{KeepItem: "k", RemoveItems: []string{"a", "b", "c"}}}

	type applied struct {
		res *models.ApplyResult
		err error
	}
	done := make(chan applied, 1)
	go func() {
		res, err := p.Apply(context.Background(), decisions, Action{Kind: ActionDelete}, nil)
		done <- applied{res, err}
	}()
	<-exec.started

	if _, err := p.Apply(context.Background(), decisions, Action{Kind: ActionDelete}, nil); !errors.Is(err, ErrBusy) {
		t.Errorf("second Apply error = %v, want ErrBusy", err)
	}
	if _, err := p.Scan(context.Background(), items("x"), models.AlgoSHA256, nil); !errors.Is(err, ErrBusy) {
		t.Errorf("Scan during Apply error = %v, want ErrBusy", err)
	}

	// An abort sent while busy still reaches the running Apply
	p.Abort()
	close(exec.release)

	first := <-done
	if first.err != nil {
		t.Fatalf("first Apply failed: %v", first.err)
	}
	if !first.res.Aborted || first.res.Deleted != 1 {
		t.Errorf("first result = %+v, want aborted after 1 delete", first.res)
	}
	if peak := exec.peak.Load(); peak != 1 {
		t.Errorf("peak concurrent executor calls = %d, want 1", peak)
	}

	// The lock is released once the run ends
	if _, err := p.Apply(context.Background(), nil, Action{Kind: ActionDelete}, nil); err != nil {
		t.Errorf("Apply after run ended failed: %v", err)
	}
}

func TestApply_Errors(t *testing.T) {
	p := New(newFakeSource(), &fakeExecutor{})
	if _, err := p.Apply(context.Background(), nil, Action{Kind: "burn"}, nil); !errors.Is(err, ErrUnsupportedAction) {
		t.Errorf("expected ErrUnsupportedAction, got %v", err)
	}

	noExec := New(newFakeSource(), nil)
	if _, err := noExec.Apply(context.Background(), nil, Action{Kind: ActionDelete}, nil); err == nil {
		t.Error("expected error without an executor")
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in       string
		expected ActionKind
		wantErr  bool
	}{
		{"tag", ActionTag, false},
		{" DELETE ", ActionDelete, false},
		{"collection", ActionCollection, false},
		{"shred", "", true},
	}

	for _, tt := range tests {
		got, err := ParseAction(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAction(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.expected {
			t.Errorf("ParseAction(%q) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}

func groupMembers(res *models.ScanResult) [][]string {
	out := make([][]string, len(res.Groups))
	for i, g := range res.Groups {
		out[i] = g.Items
	}
	return out
}
