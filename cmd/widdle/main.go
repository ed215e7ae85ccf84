// CLI for the Widdle audio analysis service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "widdle",
	Short: "Audio attribute analysis backed by a local language model",
	// Usage output on runtime errors buries the actual error.
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [track-id...]",
	Short: "Analyze stored tracks, all of them when no ids are given",
	RunE: func(cmd *cobra.Command, args []string) error {
		workers, _ := cmd.Flags().GetInt("workers")
		queue, _ := cmd.Flags().GetInt("queue")
		return runAnalyze(cmd.Context(), args, workers, queue)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.Context())
	},
}

func init() {
	analyzeCmd.Flags().IntP("workers", "w", 2, "Number of tracks analyzed in parallel")
	analyzeCmd.Flags().Int("queue", 100, "Size of the pending job queue")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
