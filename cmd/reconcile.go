package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"record-sync/core/reconcile"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	// Flags for the reconcile command
	dryRun     bool
	batchSize  int
	retries    int
	workers    int
	noBackup   bool
	precedence string
	output     string
)

// reconcileCmd reconciles one logical source.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile <source>",
	Short: "Reconcile the ledger and the relational store of a source",
	Long: `Reconcile a logical source between the flat-file ledger and the relational store.

Records present on one side only are copied to the other; records present on
both sides are merged field by field. Both stores are snapshotted before the
first write unless --no-backup is given.

Examples:
  # Preview the run without writing
  reconcile reddit --dry-run

  # Run with smaller batches, the ledger winning conflicts
  reconcile reddit --batch-size 50 --precedence file

  # Print the report as YAML
  reconcile reddit --output yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runReconcile,
}

func init() {
	addRunFlags(reconcileCmd)
	RootCmd.AddCommand(reconcileCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute the run without writing")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Identities per write batch (default from config)")
	cmd.Flags().IntVar(&retries, "retries", 0, "Retries per failed batch (default from config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent relational batch writers (default from config)")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "Skip the pre-write snapshot")
	cmd.Flags().StringVar(&precedence, "precedence", "", "Winning store on field conflicts: relational or file")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Report format: json or yaml")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	source := args[0]
	if output != "json" && output != "yaml" {
		return fmt.Errorf("unsupported output format %q", output)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := setupEnv(ctx)
	if err != nil {
		return err
	}
	defer e.log.Sync()

	opts, err := e.options()
	if err != nil {
		return err
	}
	opts, err = applyRunFlags(cmd, opts)
	if err != nil {
		return err
	}

	e.log.Info("Starting reconciliation",
		zap.String("source", source),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("batch_size", opts.BatchSize),
		zap.String("precedence", string(opts.Precedence)),
	)

	report, _, runErr := e.service(opts).Reconcile(ctx, source, opts.DryRun)
	if report != nil {
		if err := writeReport(cmd.OutOrStdout(), report, output); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("reconciliation of %s failed: %w", source, runErr)
	}
	return nil
}

// applyRunFlags overrides opts with the flags set on cmd.
func applyRunFlags(cmd *cobra.Command, opts reconcile.Options) (reconcile.Options, error) {
	flags := cmd.Flags()
	if flags.Changed("dry-run") {
		opts.DryRun = dryRun
	}
	if flags.Changed("batch-size") {
		opts.BatchSize = batchSize
	}
	if flags.Changed("retries") {
		opts.Retry.Attempts = retries
	}
	if flags.Changed("workers") {
		opts.Workers = workers
	}
	if noBackup {
		opts.BackupEnabled = false
	}
	if flags.Changed("precedence") {
		p, err := reconcile.ParsePrecedence(precedence)
		if err != nil {
			return opts, err
		}
		opts.Precedence = p
	}
	return opts, opts.Validate()
}

func writeReport(w io.Writer, report *reconcile.Report, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
