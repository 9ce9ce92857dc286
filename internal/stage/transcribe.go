package stage

import (
	"context"
	"time"

	"github.com/jo-hoe/sermonforge/internal/artifact"
	"github.com/jo-hoe/sermonforge/internal/common"
	"github.com/jo-hoe/sermonforge/internal/model"
	"github.com/jo-hoe/sermonforge/internal/remote"
	"github.com/jo-hoe/sermonforge/internal/stageerr"
)

// TranscribeExecutor runs the transcribe stage: deploy the job's audio
// segment to the remote transcription worker, poll it to completion, and
// save the returned text. The Job's own ULID doubles as the worker
// correlation key, per the wire protocol's single-ID design.
type TranscribeExecutor struct {
	base
	store       model.Store
	rootDir     string
	coordinator *remote.Coordinator
}

// NewTranscribeExecutor builds the transcribe executor.
func NewTranscribeExecutor(store model.Store, rootDir string, coordinator *remote.Coordinator) *TranscribeExecutor {
	return &TranscribeExecutor{
		base:        newBase(store, model.StageTranscribe),
		store:       store,
		rootDir:     rootDir,
		coordinator: coordinator,
	}
}

// Advance runs one attempt of transcribe for jobID. The engine is
// single-process and cooperative (no overlapping Advance calls for the same
// job), so this blocks synchronously through deploy, poll, and retrieve
// rather than splitting the wait across separate Advance invocations. A
// crash between Deploy and Retrieve is handled separately from that
// scheduling assumption: the deploy marker on disk survives the crash and
// ReclaimAbandoned's reset back to pending, so the restarted attempt finds
// the marker and resumes polling instead of redeploying.
func (e *TranscribeExecutor) Advance(ctx context.Context, jobID string) error {
	return e.run(ctx, jobID, func(ctx context.Context, jwr *model.JobWithRecording) (string, error) {
		seg, err := e.store.GetStage(ctx, jobID, model.StageExtractSegment)
		if err != nil {
			return "", stageerr.New(stageerr.KindBug, "read extract_segment stage", err)
		}
		if seg.OutputPath == "" {
			return "", stageerr.Precondition("extract_segment has no output path")
		}

		layout, err := artifact.NewLayout(e.rootDir, jobID)
		if err != nil {
			return "", stageerr.New(stageerr.KindBug, "create job layout", err)
		}
		deployMarker := layout.Path(common.TranscribeDeployMarkerName)

		if !artifact.Exists(deployMarker) {
			if _, err := e.coordinator.Deploy(ctx, jobID, seg.OutputPath); err != nil {
				return "", stageerr.Transient("deploy transcription job", err)
			}
			if err := artifact.WriteFileAtomic(deployMarker, []byte(jobID), 0o640); err != nil {
				return "", stageerr.New(stageerr.KindBug, "write deploy marker", err)
			}
		}

		for {
			status, err := e.coordinator.PollStatus(ctx, jobID)
			if err != nil {
				return "", stageerr.Transient("poll transcription status", err)
			}

			switch status.Status {
			case common.WorkerStatusCompleted:
				text, err := e.coordinator.Retrieve(ctx, jobID)
				if err != nil {
					return "", stageerr.Transient("retrieve transcript", err)
				}
				path := layout.WhisperTranscript()
				if err := artifact.WriteFileAtomic(path, []byte(text), 0o640); err != nil {
					return "", stageerr.New(stageerr.KindBug, "write whisper transcript", err)
				}
				return path, nil
			case common.WorkerStatusFailed:
				return "", stageerr.Permanent("remote worker reported transcription failure", nil)
			default:
				select {
				case <-ctx.Done():
					return "", stageerr.Transient("context cancelled while polling worker", ctx.Err())
				case <-time.After(remote.PollInterval()):
				}
			}
		}
	})
}
