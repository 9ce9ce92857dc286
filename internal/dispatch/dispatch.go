// Package dispatch is the engine's outer driving loop: given a stage name,
// find the Jobs eligible to advance through it and run each one's Advance
// call, stopping the whole batch early only when the stage reports a
// language-model quota has been exhausted.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/jo-hoe/sermonforge/internal/model"
	"github.com/jo-hoe/sermonforge/internal/stage"
	"github.com/jo-hoe/sermonforge/internal/stageerr"
)

// Dispatcher drives stage.Executor calls across the Jobs a Store tracks.
type Dispatcher struct {
	store     model.Store
	executors map[model.StageName]stage.Executor
}

// New builds a Dispatcher over the given store and stage name to executor
// mapping. The map is expected to carry one entry per model.StageCatalog
// entry, wired by the caller (cmd/sermonforge) from its configured clients.
func New(store model.Store, executors map[model.StageName]stage.Executor) *Dispatcher {
	return &Dispatcher{store: store, executors: executors}
}

// ListEligible returns the IDs of Jobs whose predecessor stage succeeded and
// whose own stage is pending, or failed with an elapsed backoff.
func (d *Dispatcher) ListEligible(ctx context.Context, stageName model.StageName) ([]string, error) {
	ids, err := d.store.ListJobsEligibleForStage(ctx, stageName)
	if err != nil {
		return nil, fmt.Errorf("list jobs eligible for %s: %w", stageName, err)
	}
	return ids, nil
}

// AdvanceOne runs a single stage Advance call for one Job.
func (d *Dispatcher) AdvanceOne(ctx context.Context, jobID string, stageName model.StageName) error {
	exec, ok := d.executors[stageName]
	if !ok {
		return fmt.Errorf("no executor registered for stage %s", stageName)
	}
	return exec.Advance(ctx, jobID)
}

// AdvanceAll runs AdvanceOne for every Job currently eligible for stageName.
// It stops immediately, returning the triggering error, if any Job's
// Advance reports a quota-exhausted StageError — the Dispatcher treats that
// as a signal the whole batch should stop rather than burn through retries
// on every remaining Job. Any other per-job error is recorded and the batch
// continues.
func (d *Dispatcher) AdvanceAll(ctx context.Context, stageName model.StageName) ([]JobResult, error) {
	ids, err := d.ListEligible(ctx, stageName)
	if err != nil {
		return nil, err
	}

	results := make([]JobResult, 0, len(ids))
	for _, id := range ids {
		err := d.AdvanceOne(ctx, id, stageName)
		results = append(results, JobResult{JobID: id, Err: err})

		var stageErr *stageerr.StageError
		if errors.As(err, &stageErr) && stageErr.Halts() {
			return results, err
		}
	}
	return results, nil
}

// JobResult pairs a Job ID with the error (if any) its Advance call
// returned within an AdvanceAll batch.
type JobResult struct {
	JobID string
	Err   error
}
