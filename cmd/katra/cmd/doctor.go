package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/katra-project/katra/internal/config"
	"github.com/katra-project/katra/internal/engine"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run config and store diagnostics",
	RunE:  runDoctor,
}

type doctorCheck struct {
	name    string
	ok      bool
	message string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	printHeader("katra doctor")

	var checks []doctorCheck

	cfg, err := config.Load()
	if err != nil {
		checks = append(checks, doctorCheck{"config", false, err.Error()})
		printChecks(cmd, checks)
		return newExitError(exitConfigError, err)
	}
	checks = append(checks, doctorCheck{"config", true, "root=" + cfg.Root})

	if fi, statErr := os.Stat(cfg.Root); statErr != nil || !fi.IsDir() {
		checks = append(checks, doctorCheck{"root directory", false, "KATRA_ROOT is not a directory: " + cfg.Root})
	} else {
		checks = append(checks, doctorCheck{"root directory", true, cfg.Root})
	}

	ctx := context.Background()
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		checks = append(checks, doctorCheck{"engine init", false, err.Error()})
		printChecks(cmd, checks)
		return newExitError(exitFatalInit, err)
	}
	defer eng.Close()
	checks = append(checks, doctorCheck{"engine init", true, "record/index/digest/team/session stores opened"})

	teamCount, err := eng.Teams.Count()
	if err != nil {
		checks = append(checks, doctorCheck{"team store", false, err.Error()})
	} else {
		checks = append(checks, doctorCheck{"team store", true, fmt.Sprintf("%d team(s)", teamCount)})
	}

	owners := eng.Sessions.OwnerIDs()
	checks = append(checks, doctorCheck{"session registry", true, fmt.Sprintf("%d known owner(s)", len(owners))})

	printChecks(cmd, checks)

	for _, c := range checks {
		if !c.ok {
			return fmt.Errorf("doctor found a failing check")
		}
	}
	return nil
}

func printChecks(cmd *cobra.Command, checks []doctorCheck) {
	for _, c := range checks {
		symbol := "PASS"
		if !c.ok {
			symbol = "FAIL"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", symbol, c.name, c.message)
	}
}
