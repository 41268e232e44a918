package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/katra-project/katra/internal/config"
	"github.com/katra-project/katra/internal/digest"
	"github.com/katra-project/katra/internal/engine"
)

var statsOwner string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show hot/warm tier footprint for one owner",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsOwner, "owner", "", "owner_id to report on (required)")
}

func runStats(cmd *cobra.Command, args []string) error {
	printHeader("katra stats")

	if statsOwner == "" {
		return newExitError(exitConfigError, fmt.Errorf("--owner is required"))
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

	hot, err := eng.Records.Stats(statsOwner)
	if err != nil {
		return err
	}
	warm, err := eng.Digests.Query(digest.Filter{OwnerID: statsOwner})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "owner_id:        %s\n", statsOwner)
	fmt.Fprintf(cmd.OutOrStdout(), "hot_records:     %d\n", hot.RecordCount)
	fmt.Fprintf(cmd.OutOrStdout(), "hot_bytes:       %d\n", hot.Bytes)
	fmt.Fprintf(cmd.OutOrStdout(), "warm_digests:    %d\n", len(warm))
	fmt.Fprintf(cmd.OutOrStdout(), "mailbox_pending: %d\n", eng.Mailbox.QueueDepth(statsOwner))
	return nil
}
