package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/katra-project/katra/internal/config"
	"github.com/katra-project/katra/internal/engine"
)

var (
	consolidateOwner  string
	consolidateDryRun bool
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Run one consolidation pass against the hot tier",
	RunE:  runConsolidate,
}

func init() {
	consolidateCmd.Flags().StringVar(&consolidateOwner, "owner", "", "owner_id to consolidate (required)")
	consolidateCmd.Flags().BoolVar(&consolidateDryRun, "dry-run", false, "select candidates only, without grouping, writing digests or archiving")
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	printHeader("katra consolidate")

	if consolidateOwner == "" {
		err := fmt.Errorf("--owner is required")
		return newExitError(exitConfigError, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return newExitError(exitConfigError, err)
	}

	ctx := context.Background()
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return newExitError(exitFatalInit, err)
	}
	defer eng.Close()

	res, err := eng.Consolidation.Run(ctx, consolidateOwner, time.Now().UTC(), consolidateDryRun)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "candidates_found:  %d\n", res.CandidatesFound)
	fmt.Fprintf(cmd.OutOrStdout(), "digests_written:   %d\n", res.DigestsWritten)
	fmt.Fprintf(cmd.OutOrStdout(), "records_archived:  %d\n", res.RecordsArchived)
	fmt.Fprintf(cmd.OutOrStdout(), "records_compacted: %d\n", res.RecordsCompacted)
	return nil
}
