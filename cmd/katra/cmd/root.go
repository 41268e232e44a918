// Package cmd implements the katra CLI: serve, consolidate, doctor,
// and stats, per spec.md §6.
package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const logo = "\n" +
	" _             _            \n" +
	"| | ____ _| |_ _ __ __ _ \n" +
	"| |/ / _` | __| '__/ _` |\n" +
	"|   < (_| | |_| | | (_| |\n" +
	"|_|\\_\\__,_|\\__|_|  \\__,_|\n"

var rootCmd = &cobra.Command{
	Use:   "katra",
	Short: "katra - multi-tenant tiered memory substrate",
	Long:  color.CyanString(logo) + "\nA hot/warm tiered memory store with a JSON-RPC style dispatcher.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}

// Exit codes, per spec.md §6.
const (
	exitOK           = 0
	exitConfigError  = 1
	exitPortInUse    = 2
	exitFatalInit    = 3
)

// Execute runs the root command and returns a process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if code, ok := err.(exitError); ok {
			return code.code
		}
		return exitFatalInit
	}
	return exitOK
}

// exitError lets a subcommand report a specific exit code through
// cobra's normal RunE error return, instead of calling os.Exit
// directly (which would bypass deferred cleanup).
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }

func newExitError(code int, err error) error {
	return exitError{code: code, err: err}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(statsCmd)
}
