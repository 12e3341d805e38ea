package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tgz2objects/internal/app"
	"tgz2objects/internal/config"
	"tgz2objects/internal/logger"
	"tgz2objects/internal/report"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tgz2objects",
	Short: "Extract tar and tar.gz archives from object storage into objects",
	Long: `Streams archives stored in an S3-compatible bucket, demultiplexes their entries
and uploads every file as its own object, retrying failed archives without
re-uploading entries that already succeeded.`,
	RunE:         runExtraction,
	SilenceUsage: true,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show entries recorded in a run report",
	RunE:  runReport,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	config.RegisterFlags(rootCmd.Flags())

	reportCmd.Flags().String("report", "./report.db", "Run report database path")
	reportCmd.Flags().Bool("failed", false, "Only show failed entries")
	reportCmd.Flags().String("task", "", "Show the entries of one task")
	rootCmd.AddCommand(reportCmd)
}

func runExtraction(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	extractor, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create extractor: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		log.Info("Received shutdown signal, cancelling running tasks...", zap.String("signal", sig.String()))
		cancel(fmt.Errorf("received %s", sig))
	}()

	err = extractor.Run(ctx)

	if closeErr := extractor.Close(); closeErr != nil {
		log.Error("Error closing extractor", zap.Error(closeErr))
	}

	return err
}

func runReport(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("report")
	failedOnly, _ := cmd.Flags().GetBool("failed")
	taskID, _ := cmd.Flags().GetString("task")

	if !failedOnly && taskID == "" {
		return errors.New("either --failed or --task is required")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("failed to open report: %w", err)
	}

	store, err := report.NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("failed to open report: %w", err)
	}
	defer store.Close()

	var records []*report.EntryRecord
	if taskID != "" {
		records, err = store.ListTaskEntries(taskID)
	} else {
		records, err = store.ListFailedEntries()
	}
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}

	return report.WriteTable(cmd.OutOrStdout(), records)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
