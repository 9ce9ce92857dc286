package store

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jo-hoe/sermonforge/internal/model"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createTestJob(t *testing.T, s *SQLiteStore, sourceID, jobID string) *model.Job {
	t.Helper()
	ctx := context.Background()
	recID, err := s.CreateRecording(ctx, &model.Recording{SourceID: sourceID, Title: "Sermon " + sourceID})
	require.NoError(t, err)

	job := &model.Job{ID: jobID, RecordingID: recID, Directory: "/tmp/" + jobID}
	require.NoError(t, s.CreateJob(ctx, job))
	return job
}

func TestCreateRecording_DedupesBySourceID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.CreateRecording(ctx, &model.Recording{SourceID: "abc123", Title: "First"})
	require.NoError(t, err)

	id2, err := s.CreateRecording(ctx, &model.Recording{SourceID: "abc123", Title: "Different title, same id"})
	require.NoError(t, err)

	require.Equal(t, id1, id2)
}

func TestCreateJob_MaterializesFullStageCatalog(t *testing.T) {
	s := newTestStore(t)
	job := createTestJob(t, s, "vid-1", "job-1")

	stages, err := s.ListStagesForJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, stages, len(model.StageCatalog))

	for i, def := range model.StageCatalog {
		require.Equal(t, def.Name, stages[i].Name)
		require.Equal(t, model.StatePending, stages[i].State)
	}
}

func TestGetJobWithRecording(t *testing.T) {
	s := newTestStore(t)
	job := createTestJob(t, s, "vid-2", "job-2")

	got, err := s.GetJobWithRecording(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, job.ID, got.Job.ID)
	require.Equal(t, "vid-2", got.Recording.SourceID)
}

func TestClaimStage_OnlyFirstStageIsInitiallyEligible(t *testing.T) {
	s := newTestStore(t)
	job := createTestJob(t, s, "vid-3", "job-3")
	ctx := context.Background()

	ids, err := s.ListJobsEligibleForStage(ctx, model.StageDownloadAudio)
	require.NoError(t, err)
	require.Contains(t, ids, job.ID)

	ids, err = s.ListJobsEligibleForStage(ctx, model.StageExtractSegment)
	require.NoError(t, err)
	require.NotContains(t, ids, job.ID)

	claimed, attempt, err := s.ClaimStage(ctx, job.ID, model.StageDownloadAudio, time.Now())
	require.NoError(t, err)
	require.True(t, claimed)
	require.Equal(t, 1, attempt)

	st, err := s.GetStage(ctx, job.ID, model.StageDownloadAudio)
	require.NoError(t, err)
	require.Equal(t, model.StateRunning, st.State)
	require.NotNil(t, st.StartedAt)
}

func TestClaimStage_SecondClaimFailsWhileRunning(t *testing.T) {
	s := newTestStore(t)
	job := createTestJob(t, s, "vid-4", "job-4")
	ctx := context.Background()

	claimed, _, err := s.ClaimStage(ctx, job.ID, model.StageDownloadAudio, time.Now())
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, _, err = s.ClaimStage(ctx, job.ID, model.StageDownloadAudio, time.Now())
	require.NoError(t, err)
	require.False(t, claimed, "a second claim of an already-running stage must fail")
}

func TestClaimStage_ConcurrentClaimsExactlyOneWins(t *testing.T) {
	s := newTestStore(t)
	job := createTestJob(t, s, "vid-5", "job-5")
	ctx := context.Background()

	const attempts = 8
	var wins int64
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			claimed, _, err := s.ClaimStage(ctx, job.ID, model.StageDownloadAudio, time.Now())
			require.NoError(t, err)
			if claimed {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins)
}

func TestFinishStageSuccess_AdvancesNextStageEligibility(t *testing.T) {
	s := newTestStore(t)
	job := createTestJob(t, s, "vid-6", "job-6")
	ctx := context.Background()

	_, _, err := s.ClaimStage(ctx, job.ID, model.StageDownloadAudio, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.FinishStageSuccess(ctx, job.ID, model.StageDownloadAudio, "/tmp/job-6/audio_full.mp3", time.Now()))

	ids, err := s.ListJobsEligibleForStage(ctx, model.StageExtractSegment)
	require.NoError(t, err)
	require.Contains(t, ids, job.ID)

	st, err := s.GetStage(ctx, job.ID, model.StageDownloadAudio)
	require.NoError(t, err)
	require.Equal(t, model.StateSuccess, st.State)
	require.Equal(t, "/tmp/job-6/audio_full.mp3", st.OutputPath)
}

func TestFinishStageFailure_NotEligibleUntilBackoffElapses(t *testing.T) {
	s := newTestStore(t)
	job := createTestJob(t, s, "vid-7", "job-7")
	ctx := context.Background()

	_, _, err := s.ClaimStage(ctx, job.ID, model.StageDownloadAudio, time.Now())
	require.NoError(t, err)

	future := time.Now().Add(1 * time.Hour)
	require.NoError(t, s.FinishStageFailure(ctx, job.ID, model.StageDownloadAudio, "network error", future))

	ids, err := s.ListJobsEligibleForStage(ctx, model.StageDownloadAudio)
	require.NoError(t, err)
	require.NotContains(t, ids, job.ID, "must not be eligible before next_eligible_at")

	claimed, _, err := s.ClaimStage(ctx, job.ID, model.StageDownloadAudio, time.Now())
	require.NoError(t, err)
	require.False(t, claimed)

	claimed, attempt, err := s.ClaimStage(ctx, job.ID, model.StageDownloadAudio, future.Add(time.Second))
	require.NoError(t, err)
	require.True(t, claimed)
	require.Equal(t, 2, attempt)
}

func TestReclaimAbandoned_ResetsRunningToPending(t *testing.T) {
	s := newTestStore(t)
	job := createTestJob(t, s, "vid-8", "job-8")
	ctx := context.Background()

	_, _, err := s.ClaimStage(ctx, job.ID, model.StageDownloadAudio, time.Now())
	require.NoError(t, err)

	n, err := s.ReclaimAbandoned(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	st, err := s.GetStage(ctx, job.ID, model.StageDownloadAudio)
	require.NoError(t, err)
	require.Equal(t, model.StatePending, st.State)
	require.Equal(t, "abandoned", st.LastError)

	ids, err := s.ListJobsEligibleForStage(ctx, model.StageDownloadAudio)
	require.NoError(t, err)
	require.Contains(t, ids, job.ID)
}

func TestListJobsByStageState(t *testing.T) {
	s := newTestStore(t)
	job := createTestJob(t, s, "vid-9", "job-9")
	ctx := context.Background()

	ids, err := s.ListJobsByStageState(ctx, model.StageDownloadAudio, model.StatePending)
	require.NoError(t, err)
	require.Contains(t, ids, job.ID)

	_, _, err = s.ClaimStage(ctx, job.ID, model.StageDownloadAudio, time.Now())
	require.NoError(t, err)

	ids, err = s.ListJobsByStageState(ctx, model.StageDownloadAudio, model.StateRunning)
	require.NoError(t, err)
	require.Contains(t, ids, job.ID)
}
