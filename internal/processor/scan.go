package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"imagededup/internal/hash"
	"imagededup/internal/models"
)

// outcome is the result of hashing one item
type outcome struct {
	done   bool
	result models.HashResult
	err    error
}

// Scan hashes every item, groups similar hashes and returns the result.
// Per-item failures are recorded in ScanResult.Errors and never stop the
// scan. An abort or a cancelled ctx stops new items from starting; the
// items hashed so far are still grouped and returned.
//
// With more than one worker items are hashed concurrently, but grouping
// only starts after every worker has finished.
func (p *Processor) Scan(ctx context.Context, items []models.Item, algo models.Algorithm, progress ProgressFunc) (*models.ScanResult, error) {
	if !algo.IsPerceptual() && !algo.IsCryptographic() {
		return nil, fmt.Errorf("%w: %q", hash.ErrUnsupportedAlgorithm, algo)
	}

	if !p.running.TryLock() {
		return nil, ErrBusy
	}
	defer p.running.Unlock()

	p.Reset()

	total := len(items)
	result := &models.ScanResult{
		ScanID:     uuid.NewString(),
		TotalItems: total,
		Algorithm:  algo,
		Threshold:  p.threshold,
		Errors:     []string{},
		StartedAt:  time.Now(),
	}

	p.logger.Info("starting scan",
		"scan_id", result.ScanID,
		"items", total,
		"algorithm", algo,
		"threshold", p.threshold,
		"workers", p.workers,
	)
	p.report(progress, "Preparing items...", 0, total)

	outcomes := make([]outcome, total)

	var (
		progressMu sync.Mutex
		started    int
	)

	g := new(errgroup.Group)
	g.SetLimit(p.workers)

	for i, item := range items {
		if p.stopped(ctx) {
			break
		}

		g.Go(func() error {
			// Re-check: with a full pool Go blocks until a slot frees up
			if p.stopped(ctx) {
				return nil
			}

			progressMu.Lock()
			started++
			p.report(progress, fmt.Sprintf("Hashing item %s...", itemLabel(item, i)), started, total)
			progressMu.Unlock()

			res, err := p.hashItem(ctx, item, algo)
			outcomes[i] = outcome{done: true, result: res, err: err}
			return nil
		})
	}

	// Barrier: no partial hash map reaches the grouping stage
	_ = g.Wait()

	hashes := make(map[string]models.HashResult, total)
	processed := 0
	for i, o := range outcomes {
		if !o.done {
			continue
		}
		processed++
		if o.err != nil {
			msg := fmt.Sprintf("%s: %v", itemLabel(items[i], i), o.err)
			result.Errors = append(result.Errors, msg)
			p.logger.Warn("item skipped", "item", itemLabel(items[i], i), "error", o.err)
			continue
		}
		hashes[items[i].ID] = o.result
	}
	result.ItemsHashed = len(hashes)
	result.Aborted = processed < total && p.stopped(ctx)

	if result.Aborted {
		p.logger.Info("scan aborted", "scan_id", result.ScanID, "hashed", result.ItemsHashed)
	}

	p.report(progress, "Finding duplicates...", total, total)
	if p.threshold == 100 {
		// Only identical hashes can reach 100%, so skip the tree search
		result.Groups = p.engine.FindExactDuplicates(hashes)
	} else {
		result.Groups = p.engine.FindSimilarImages(hashes, nil)
	}
	if result.Groups == nil {
		result.Groups = []*models.DuplicateGroup{}
	}
	result.CompletedAt = time.Now()

	p.logger.Info("scan complete",
		"scan_id", result.ScanID,
		"hashed", result.ItemsHashed,
		"groups", len(result.Groups),
		"errors", result.ErrorCount(),
		"duration", result.CompletedAt.Sub(result.StartedAt),
	)
	return result, nil
}

// hashItem fetches, hashes and caches one item
func (p *Processor) hashItem(ctx context.Context, item models.Item, algo models.Algorithm) (models.HashResult, error) {
	if err := item.Validate(); err != nil {
		return models.HashResult{}, ErrMissingID
	}

	p.mu.Lock()
	p.items[item.ID] = item
	p.mu.Unlock()

	data, err := p.fetch(ctx, item)
	if err != nil {
		return models.HashResult{}, fmt.Errorf("fetch failed: %w", err)
	}
	if len(data) == 0 {
		return models.HashResult{}, ErrNoPayload
	}

	res, err := p.calculate(data, algo)
	if err != nil {
		return models.HashResult{}, err
	}

	p.payloads.Add(item.ID, data)
	p.cacheMetadata(ctx, item, res)
	return res, nil
}

func (p *Processor) fetch(ctx context.Context, item models.Item) ([]byte, error) {
	if p.fetchTimeout <= 0 {
		return p.source.FetchPayload(ctx, item)
	}

	fctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()
	return p.source.FetchPayload(fctx, item)
}

// calculate hashes data, consulting the hash cache first when configured
func (p *Processor) calculate(data []byte, algo models.Algorithm) (models.HashResult, error) {
	if p.hashCache != nil {
		if res, ok := p.hashCache.Lookup(data, algo); ok {
			return res, nil
		}
	}

	res, err := p.calc.Calculate(data, algo)
	if err != nil {
		return models.HashResult{}, err
	}

	if p.hashCache != nil {
		if err := p.hashCache.Store(data, algo, res); err != nil {
			p.logger.Warn("hash cache write failed", "error", err)
		}
	}
	return res, nil
}

// cacheMetadata stores source metadata for strategy lookups, enriched with
// the dimensions found while decoding. A failed lookup is not a scan error.
func (p *Processor) cacheMetadata(ctx context.Context, item models.Item, res models.HashResult) {
	meta, err := p.source.Metadata(ctx, item.ID)
	if err != nil {
		p.logger.Debug("metadata unavailable", "item", item.ID, "error", err)
		return
	}

	if w := intValue(res.Metadata["width"]); w > 0 && meta.Width == 0 {
		meta.Width = w
	}
	if h := intValue(res.Metadata["height"]); h > 0 && meta.Height == 0 {
		meta.Height = h
	}
	if f, ok := res.Metadata["format"].(string); ok && meta.Format == "" {
		meta.Format = f
	}

	p.mu.Lock()
	p.metadata[item.ID] = meta
	p.mu.Unlock()
}

// intValue reads a dimension that may have gone through JSON
func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func (p *Processor) stopped(ctx context.Context) bool {
	return p.aborted.Load() || ctx.Err() != nil
}

func itemLabel(item models.Item, index int) string {
	if item.ID == "" {
		return fmt.Sprintf("item at index %d", index)
	}
	return item.ID
}
