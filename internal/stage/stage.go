// Package stage implements the eight stage executors that carry a Job
// through the catalog in internal/model: one file per executor, each
// wrapping the claim/commit protocol in base so the executor body only
// has to express the stage's own work.
package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/jo-hoe/sermonforge/internal/model"
	"github.com/jo-hoe/sermonforge/internal/stageerr"
)

// Executor advances one stage of one Job by at most one attempt. Advance is
// a no-op (nil error, no state change) when the stage's preconditions are
// unmet, already satisfied, or its retry budget is exhausted.
type Executor interface {
	Advance(ctx context.Context, jobID string) error
}

// work is the unit of behavior an executor supplies to base.run: given the
// claimed Job and its Recording, either produce the stage's output path or
// return a *stageerr.StageError describing why it could not.
type work func(ctx context.Context, jwr *model.JobWithRecording) (outputPath string, err error)

// base implements the claim-run-commit protocol shared by every executor:
// check the predecessor stage succeeded, respect the attempt cap, claim the
// row, run the stage body, and record success or failure.
type base struct {
	store model.Store
	name  model.StageName
	now   func() time.Time
}

func newBase(store model.Store, name model.StageName) base {
	return base{store: store, name: name, now: time.Now}
}

func (b base) run(ctx context.Context, jobID string, fn work) error {
	def, ok := model.StageDefFor(b.name)
	if !ok {
		return stageerr.Bug(fmt.Sprintf("unknown stage %s", b.name))
	}

	if def.Prev != "" {
		prev, err := b.store.GetStage(ctx, jobID, def.Prev)
		if err != nil {
			return fmt.Errorf("get predecessor stage %s: %w", def.Prev, err)
		}
		if prev.State != model.StateSuccess {
			return nil
		}
	}

	cur, err := b.store.GetStage(ctx, jobID, b.name)
	if err != nil {
		return fmt.Errorf("get stage %s: %w", b.name, err)
	}
	if cur.State == model.StateSuccess {
		return nil
	}
	if def.MaxAttempts > 0 && cur.State == model.StateFailed && cur.AttemptCount >= def.MaxAttempts {
		return nil // retry budget exhausted; stays failed until an operator intervenes
	}

	jwr, err := b.store.GetJobWithRecording(ctx, jobID)
	if err != nil {
		return fmt.Errorf("get job %s: %w", jobID, err)
	}

	now := b.now()
	claimed, attempt, err := b.store.ClaimStage(ctx, jobID, b.name, now)
	if err != nil {
		return fmt.Errorf("claim stage %s: %w", b.name, err)
	}
	if !claimed {
		return nil // lost the race, or no longer eligible
	}

	outputPath, runErr := fn(ctx, jwr)
	if runErr != nil {
		backoff := time.Duration(model.BackoffSeconds(attempt)) * time.Second
		nextEligible := b.now().Add(backoff)
		if ferr := b.store.FinishStageFailure(ctx, jobID, b.name, runErr.Error(), nextEligible); ferr != nil {
			return fmt.Errorf("record failure for stage %s: %w", b.name, ferr)
		}
		return runErr
	}

	if err := b.store.FinishStageSuccess(ctx, jobID, b.name, outputPath, b.now()); err != nil {
		return fmt.Errorf("record success for stage %s: %w", b.name, err)
	}
	return nil
}
