package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <job-id>",
	Short: "Show every stage of a job and its current state",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(_ *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.store.Close() }()

	ctx := context.Background()
	jobID := args[0]

	stages, err := a.store.ListStagesForJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list stages for %s: %w", jobID, err)
	}
	if len(stages) == 0 {
		return fmt.Errorf("no job found with id %s", jobID)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	fmt.Fprintln(w, "STAGE\tSTATE\tATTEMPTS\tLAST ERROR\tFINISHED")
	for _, st := range stages {
		lastErr := st.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		finished := "-"
		if st.FinishedAt != nil {
			finished = jobAgeString(*st.FinishedAt)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", st.Name, st.State, st.AttemptCount, lastErr, finished)
	}
	return nil
}
