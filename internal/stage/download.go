package stage

import (
	"context"
	"os"

	"github.com/jo-hoe/sermonforge/internal/artifact"
	"github.com/jo-hoe/sermonforge/internal/common"
	"github.com/jo-hoe/sermonforge/internal/download"
	"github.com/jo-hoe/sermonforge/internal/model"
	"github.com/jo-hoe/sermonforge/internal/stageerr"
)

// DownloadAudioExecutor runs the download_audio stage: fetch the source
// Recording's full audio track into the job directory.
type DownloadAudioExecutor struct {
	base
	rootDir    string
	downloader download.Downloader
}

// NewDownloadAudioExecutor builds the download_audio executor.
func NewDownloadAudioExecutor(store model.Store, rootDir string, downloader download.Downloader) *DownloadAudioExecutor {
	return &DownloadAudioExecutor{
		base:       newBase(store, model.StageDownloadAudio),
		rootDir:    rootDir,
		downloader: downloader,
	}
}

// Advance runs one attempt of download_audio for jobID.
func (e *DownloadAudioExecutor) Advance(ctx context.Context, jobID string) error {
	return e.run(ctx, jobID, func(ctx context.Context, jwr *model.JobWithRecording) (string, error) {
		layout, err := artifact.NewLayout(e.rootDir, jobID)
		if err != nil {
			return "", stageerr.New(stageerr.KindBug, "create job layout", err)
		}

		path, err := e.downloader.DownloadAudio(ctx, jwr.Recording.URL, layout.Path(common.AudioFullBase))
		if err != nil {
			return "", stageerr.Transient("download source audio", err)
		}
		return path, nil
	})
}

// ExtractSegmentExecutor runs the extract_segment stage: trim the job's
// configured [start, end) window out of the downloaded audio.
type ExtractSegmentExecutor struct {
	base
	store   model.Store
	rootDir string
	trimmer download.Trimmer
}

// NewExtractSegmentExecutor builds the extract_segment executor.
func NewExtractSegmentExecutor(store model.Store, rootDir string, trimmer download.Trimmer) *ExtractSegmentExecutor {
	return &ExtractSegmentExecutor{
		base:    newBase(store, model.StageExtractSegment),
		store:   store,
		rootDir: rootDir,
		trimmer: trimmer,
	}
}

// Advance runs one attempt of extract_segment for jobID.
func (e *ExtractSegmentExecutor) Advance(ctx context.Context, jobID string) error {
	return e.run(ctx, jobID, func(ctx context.Context, jwr *model.JobWithRecording) (string, error) {
		prev, err := e.store.GetStage(ctx, jobID, model.StageDownloadAudio)
		if err != nil {
			return "", stageerr.New(stageerr.KindBug, "read download_audio stage", err)
		}
		if prev.OutputPath == "" {
			return "", stageerr.Precondition("download_audio has no output path")
		}

		layout, err := artifact.NewLayout(e.rootDir, jobID)
		if err != nil {
			return "", stageerr.New(stageerr.KindBug, "create job layout", err)
		}

		dst := layout.AudioSegment()
		if err := e.trimmer.TrimSegment(ctx, prev.OutputPath, dst, jwr.Job.StartSeconds, jwr.Job.EndSeconds); err != nil {
			return "", stageerr.Transient("trim audio segment", err)
		}
		_ = os.Remove(prev.OutputPath) // full-length audio is no longer needed once the segment exists
		return dst, nil
	})
}
