package cmd

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/jo-hoe/sermonforge/internal/artifact"
	"github.com/jo-hoe/sermonforge/internal/model"
)

var (
	ingestSourceID    string
	ingestTitle       string
	ingestUploader    string
	ingestURL         string
	ingestUploadDate  string
	ingestStartSecond int
	ingestEndSecond   int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Register a source recording and create a job for one time window of it",
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSourceID, "source-id", "", "platform-assigned source identifier (required)")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "recording title")
	ingestCmd.Flags().StringVar(&ingestUploader, "uploader", "", "recording uploader/channel name")
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "source URL (required)")
	ingestCmd.Flags().StringVar(&ingestUploadDate, "upload-date", "", "upload date, YYYYMMDD")
	ingestCmd.Flags().IntVar(&ingestStartSecond, "start", 0, "segment start, in seconds")
	ingestCmd.Flags().IntVar(&ingestEndSecond, "end", 0, "segment end, in seconds (0 means until end of audio)")
	_ = ingestCmd.MarkFlagRequired("source-id")
	_ = ingestCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(_ *cobra.Command, _ []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.store.Close() }()

	ctx := context.Background()

	rec := &model.Recording{
		SourceID:   ingestSourceID,
		Title:      ingestTitle,
		Uploader:   ingestUploader,
		URL:        ingestURL,
		UploadDate: ingestUploadDate,
	}
	recID, err := a.store.CreateRecording(ctx, rec)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}

	jobID := ulid.Make().String()
	rootDir := a.cfg.Server.RootDir
	layout, err := artifact.NewLayout(rootDir, jobID)
	if err != nil {
		return fmt.Errorf("create job directory: %w", err)
	}

	job := &model.Job{
		ID:           jobID,
		RecordingID:  recID,
		StartSeconds: ingestStartSecond,
		EndSeconds:   ingestEndSecond,
		Directory:    layout.Dir(),
	}
	if err := a.store.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	a.log.Info("job created", "job", jobID, "recording", recID, "source", ingestSourceID)
	fmt.Println(jobID)
	return nil
}
