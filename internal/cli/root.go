// Package cli implements the densityguard command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "densityguard",
		Short:        "Density-based outlier scoring for network flow records",
		SilenceUsage: true,
		Long: `densityguard ranks flow records by local outlier factor (LOF),
local sparsity coefficient (LSC) or plain k-distance (NN) and writes
one report per algorithm.`,
	}

	root.AddCommand(newScoreCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute is called by main.go.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
