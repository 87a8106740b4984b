package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for pageaudit.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pageaudit",
		Short: "One-shot web page audit",
		Long: `pageaudit loads a web page and reports on five areas:
performance, accessibility, SEO, memory and runtime errors.

The static engine (default) fetches the page over HTTP and runs its scripts
in-process. The chrome engine drives a headless Chrome instance and adds
paint timing and JavaScript heap measurements.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewAuditCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
