package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"imagededup/internal/hash"
	"imagededup/internal/match"
	"imagededup/internal/models"
	"imagededup/internal/strategy"
)

var (
	// ErrNoPayload is returned when a source yields no bytes for an item
	ErrNoPayload = errors.New("no payload for item")
	// ErrMissingID is recorded for items without an identifier
	ErrMissingID = errors.New("item has no ID")
	// ErrUnsupportedAction is returned by executors that cannot perform an action
	ErrUnsupportedAction = errors.New("unsupported action")
	// ErrBusy is returned when a Scan or Apply is already running
	ErrBusy = errors.New("processor is busy")
)

// Source supplies payload bytes and file-level metadata for items
type Source interface {
	FetchPayload(ctx context.Context, item models.Item) ([]byte, error)
	Metadata(ctx context.Context, id string) (models.ItemMetadata, error)
}

// Executor mutates the item source for one item
type Executor interface {
	Apply(ctx context.Context, id string, action Action) error
}

// HashCache remembers hashes of payloads seen in earlier scans
type HashCache interface {
	Lookup(data []byte, algo models.Algorithm) (models.HashResult, bool)
	Store(data []byte, algo models.Algorithm, result models.HashResult) error
}

// ProgressFunc receives incremental status. It may be nil.
type ProgressFunc func(message string, current, total int)

// Processor runs scans and applies decisions against one item source.
// At most one Scan or Apply runs at a time; a second call gets ErrBusy.
type Processor struct {
	source   Source
	executor Executor
	engine   *match.Engine
	calc     *hash.Calculator
	logger   *slog.Logger

	threshold    float64
	workers      int
	cacheSize    int
	cacheTTL     time.Duration
	fetchTimeout time.Duration
	hashCache    HashCache
	tag          string

	running sync.Mutex
	aborted atomic.Bool

	mu       sync.RWMutex
	payloads *expirable.LRU[string, []byte]
	metadata map[string]models.ItemMetadata
	items    map[string]models.Item
}

// Option configures a Processor
type Option func(*Processor)

// WithThreshold sets the similarity percentage used for grouping. Values
// outside 0..100 are ignored.
func WithThreshold(t float64) Option {
	return func(p *Processor) {
		if t >= 0 && t <= 100 {
			p.threshold = t
		}
	}
}

// WithWorkers sets the number of items hashed in parallel
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCacheSize bounds the number of payloads kept for display
func WithCacheSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.cacheSize = n
		}
	}
}

// WithCacheTTL expires cached payloads after d (0 disables expiry)
func WithCacheTTL(d time.Duration) Option {
	return func(p *Processor) {
		if d >= 0 {
			p.cacheTTL = d
		}
	}
}

// WithFetchTimeout bounds each payload fetch (0 leaves it to the source)
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d >= 0 {
			p.fetchTimeout = d
		}
	}
}

// WithHashCache reuses hashes computed in earlier runs
func WithHashCache(c HashCache) Option {
	return func(p *Processor) {
		p.hashCache = c
	}
}

// WithTag sets the label used by ActionTag when the action carries none
func WithTag(label string) Option {
	return func(p *Processor) {
		if label != "" {
			p.tag = label
		}
	}
}

// New creates a Processor. executor may be nil for scan-only use.
func New(source Source, executor Executor, opts ...Option) *Processor {
	p := &Processor{
		source:    source,
		executor:  executor,
		calc:      hash.NewCalculator(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		threshold: match.DefaultThreshold,
		workers:   1,
		cacheSize: 512,
		tag:       "Duplicate",
	}
	for _, opt := range opts {
		opt(p)
	}

	p.engine = match.NewEngine(p.threshold)
	p.payloads = expirable.NewLRU[string, []byte](p.cacheSize, nil, p.cacheTTL)
	p.metadata = make(map[string]models.ItemMetadata)
	p.items = make(map[string]models.Item)
	return p
}

// Threshold returns the similarity percentage used for grouping
func (p *Processor) Threshold() float64 {
	return p.threshold
}

// Abort asks a running Scan or Apply to stop before the next item
func (p *Processor) Abort() {
	p.aborted.Store(true)
}

// Reset clears the abort flag and every cached payload and metadata entry
func (p *Processor) Reset() {
	p.aborted.Store(false)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads.Purge()
	p.metadata = make(map[string]models.ItemMetadata)
	p.items = make(map[string]models.Item)
}

// Thumbnail returns the payload bytes fetched for id during the last scan.
// Evicted payloads are fetched from the source again.
func (p *Processor) Thumbnail(ctx context.Context, id string) ([]byte, error) {
	if data, ok := p.payloads.Get(id); ok {
		return data, nil
	}

	p.mu.RLock()
	item, known := p.items[id]
	p.mu.RUnlock()
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrNoPayload, id)
	}

	data, err := p.source.FetchPayload(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", id, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPayload, id)
	}
	p.payloads.Add(id, data)
	return data, nil
}

// ItemMetadata returns cached metadata for id, asking the source on a miss
func (p *Processor) ItemMetadata(ctx context.Context, id string) (models.ItemMetadata, error) {
	p.mu.RLock()
	meta, ok := p.metadata[id]
	p.mu.RUnlock()
	if ok {
		return meta, nil
	}
	if p.source == nil {
		return models.ItemMetadata{}, fmt.Errorf("no source for %s", id)
	}

	meta, err := p.source.Metadata(ctx, id)
	if err != nil {
		return models.ItemMetadata{}, err
	}

	p.mu.Lock()
	p.metadata[id] = meta
	p.mu.Unlock()
	return meta, nil
}

// GenerateDecisions applies s to every group using cached metadata
func (p *Processor) GenerateDecisions(ctx context.Context, groups []*models.DuplicateGroup, s strategy.Strategy) ([]models.DedupDecision, error) {
	return strategy.GeneratePlan(groups, s, func(id string) (models.ItemMetadata, error) {
		return p.ItemMetadata(ctx, id)
	})
}

// SupportedAlgorithms lists the algorithms Scan accepts
func (p *Processor) SupportedAlgorithms() []models.Algorithm {
	return hash.SupportedAlgorithms()
}

// SupportedStrategies lists the keep strategies GenerateDecisions accepts
func (p *Processor) SupportedStrategies() []strategy.Strategy {
	return strategy.All()
}

func (p *Processor) report(progress ProgressFunc, message string, current, total int) {
	if progress != nil {
		progress(message, current, total)
	}
}
