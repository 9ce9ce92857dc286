package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/sermonforge/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run <stage> <job-id>",
	Short: "Advance one job through one stage",
	Args:  cobra.ExactArgs(2),
	RunE:  runRun,
}

var runAllCmd = &cobra.Command{
	Use:   "run-all <stage>",
	Short: "Advance every eligible job through one stage",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunAll,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runAllCmd)
}

func runRun(_ *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.store.Close() }()

	stageName := model.StageName(args[0])
	jobID := args[1]

	if err := a.disp.AdvanceOne(context.Background(), jobID, stageName); err != nil {
		return fmt.Errorf("advance %s for job %s: %w", stageName, jobID, err)
	}
	a.log.Info("stage advanced", "stage", stageName, "job", jobID)
	return nil
}

func runRunAll(_ *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.store.Close() }()

	stageName := model.StageName(args[0])

	results, err := a.disp.AdvanceAll(context.Background(), stageName)
	for _, r := range results {
		if r.Err != nil {
			a.log.Warn("job failed this stage", "stage", stageName, "job", r.JobID, "err", r.Err)
		} else {
			a.log.Info("job advanced", "stage", stageName, "job", r.JobID)
		}
	}
	if err != nil {
		return fmt.Errorf("batch for %s halted: %w", stageName, err)
	}
	a.log.Info("batch complete", "stage", stageName, "jobs", len(results))
	return nil
}
