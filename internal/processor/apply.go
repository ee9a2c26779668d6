package processor

import (
	"context"
	"errors"
	"fmt"

	"imagededup/internal/models"
)

// Apply runs action against every item the decisions schedule for removal,
// in decision order and one item at a time. A failing item is counted and
// the batch continues. ActionNone does nothing and reports zero counts.
// ErrBusy is returned while another Scan or Apply is running.
func (p *Processor) Apply(ctx context.Context, decisions []models.DedupDecision, action Action, progress ProgressFunc) (*models.ApplyResult, error) {
	if !p.running.TryLock() {
		return nil, ErrBusy
	}
	defer p.running.Unlock()

	p.aborted.Store(false)

	result := &models.ApplyResult{
		Action:     string(action.Kind),
		MovedIDs:   []string{},
		DeletedIDs: []string{},
	}

	switch action.Kind {
	case ActionNone:
		p.logger.Info("no action requested, skipping apply")
		return result, nil
	case ActionTag, ActionCollection, ActionRemove, ActionDelete:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, action.Kind)
	}

	if p.executor == nil {
		return nil, errors.New("no executor configured")
	}
	if action.Kind == ActionTag && action.Label == "" {
		action.Label = p.tag
	}

	var work []string
	for _, d := range decisions {
		work = append(work, d.RemoveItems...)
	}
	total := len(work)

	p.logger.Info("applying action", "action", action.String(), "items", total)

	for i, id := range work {
		if p.stopped(ctx) {
			result.Aborted = true
			p.logger.Info("apply aborted", "done", i, "items", total)
			break
		}

		p.report(progress, fmt.Sprintf("Processing item %s...", id), i+1, total)

		err := p.executor.Apply(ctx, id, action)
		switch {
		case errors.Is(err, ErrUnsupportedAction):
			result.Skipped++
			p.logger.Warn("action not supported for item", "item", id, "action", action.Kind)
		case err != nil:
			result.Errors++
			result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("%s: %v", id, err))
			p.logger.Warn("action failed", "item", id, "action", action.Kind, "error", err)
		default:
			p.tally(result, action.Kind, id)
		}
	}

	p.logger.Info("apply complete",
		"action", action.Kind,
		"tagged", result.Tagged,
		"moved", result.Moved,
		"deleted", result.Deleted,
		"skipped", result.Skipped,
		"errors", result.Errors,
	)
	return result, nil
}

func (p *Processor) tally(result *models.ApplyResult, kind ActionKind, id string) {
	switch kind {
	case ActionTag:
		result.Tagged++
	case ActionCollection, ActionRemove:
		result.Moved++
		result.MovedIDs = append(result.MovedIDs, id)
		p.forget(id)
	case ActionDelete:
		result.Deleted++
		result.DeletedIDs = append(result.DeletedIDs, id)
		p.forget(id)
	}
}

// forget drops cached state for an item that left the source
func (p *Processor) forget(id string) {
	p.payloads.Remove(id)

	p.mu.Lock()
	delete(p.metadata, id)
	delete(p.items, id)
	p.mu.Unlock()
}
