package model

import (
	"context"
	"time"
)

// Store defines the persistence contract required by the core: durable
// records for Recordings, Jobs, and Stages, an atomic single-row Stage
// claim, and the read queries the Dispatcher and executors need.
//
// Implementations must make ClaimStage and ReclaimAbandoned atomic with
// respect to concurrent processes sharing the same backing database.
type Store interface {
	// CreateRecording inserts rec if no Recording with the same SourceID
	// exists, and returns the (possibly pre-existing) row's ID.
	CreateRecording(ctx context.Context, rec *Recording) (int64, error)

	// CreateJob inserts job and materializes one pending Stage record per
	// entry in StageCatalog, all in a single unit of work.
	CreateJob(ctx context.Context, job *Job) error

	// GetJobWithRecording fetches a Job joined with its Recording.
	GetJobWithRecording(ctx context.Context, jobID string) (*JobWithRecording, error)

	// ListStagesForJob returns every Stage row for jobID, in catalog order.
	ListStagesForJob(ctx context.Context, jobID string) ([]Stage, error)

	// GetStage fetches one (Job, stage) row.
	GetStage(ctx context.Context, jobID string, stage StageName) (*Stage, error)

	// ListJobsEligibleForStage returns IDs of Jobs whose preceding stage is
	// success and whose `stage` state is pending or failed with an elapsed
	// next_eligible_at, ordered by Job id.
	ListJobsEligibleForStage(ctx context.Context, stage StageName) ([]string, error)

	// ListJobsByStageState returns IDs of Jobs whose `stage` is in state.
	ListJobsByStageState(ctx context.Context, stage StageName, state StageState) ([]string, error)

	// ClaimStage atomically transitions (jobID, stage) from pending/failed
	// to running, bumping attempt_count and stamping started_at. Returns
	// false (no error) if the row was not eligible to be claimed.
	ClaimStage(ctx context.Context, jobID string, stage StageName, now time.Time) (claimed bool, attempt int, err error)

	// FinishStageSuccess transitions (jobID, stage) to success, recording
	// outputPath (which may be empty for stages with no file output) and
	// finishedAt.
	FinishStageSuccess(ctx context.Context, jobID string, stage StageName, outputPath string, finishedAt time.Time) error

	// FinishStageFailure transitions (jobID, stage) to failed, recording
	// lastError and the next eligible retry time.
	FinishStageFailure(ctx context.Context, jobID string, stage StageName, lastError string, nextEligibleAt time.Time) error

	// ReclaimAbandoned transitions every Stage left running (observed on
	// store open, with no liveness signal) back to pending, preserving
	// attempt_count and setting last_error to "abandoned".
	ReclaimAbandoned(ctx context.Context) (int, error)

	Close() error
}
