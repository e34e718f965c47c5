package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"record-sync/core/backup"
	"record-sync/core/reconcile"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for the restore command
	restoreRemote bool
	yesConfirm    bool
)

// restoreCmd restores both stores of a source from a snapshot.
var restoreCmd = &cobra.Command{
	Use:   "restore <backup>",
	Short: "Restore both stores of a source from a backup",
	Long: `Restore the ledger and the relational store of a source from a snapshot.

The argument is a local snapshot directory, or with --remote the object key
prefix of a mirrored snapshot, which is downloaded first. Every record of the
source in both stores is replaced.

Examples:
  # Restore with interactive confirmation
  restore data/backups/reddit-20240501T120000Z-1a2b3c4d

  # Restore a mirrored snapshot without prompting
  restore backups/reddit-20240501T120000Z-1a2b3c4d --remote --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreRemote, "remote", false, "Treat the argument as a mirrored snapshot prefix")
	restoreCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm destructive actions (non-interactive)")

	RootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	e, err := setupEnv(ctx)
	if err != nil {
		return err
	}
	defer e.log.Sync()

	var handle *reconcile.BackupHandle
	if restoreRemote {
		handle, err = e.backups.Fetch(ctx, args[0])
	} else {
		handle, err = backup.Open(args[0])
	}
	if err != nil {
		return err
	}

	e.log.Info("Backup found",
		zap.String("backup_id", handle.ID),
		zap.String("source", handle.Source),
		zap.Time("created_at", handle.CreatedAt),
	)

	if !confirmDestructiveAction(handle.Source) {
		e.log.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}

	_, _, err = e.guard.Do(ctx, handle.Source, reconcile.ModeRestore, func(ctx context.Context) (*reconcile.Report, error) {
		return nil, e.backups.Restore(ctx, handle)
	})
	if err != nil {
		return fmt.Errorf("failed to restore %s: %w", handle.Source, err)
	}

	e.log.Info("Restore completed", zap.String("source", handle.Source))
	return nil
}

// confirmDestructiveAction prompts the user for confirmation or uses --yes flag.
func confirmDestructiveAction(source string) bool {
	if yesConfirm {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Printf("\n⚠️  Every record of %q will be replaced. Type 'yes' to confirm: ", source)
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(response)
	return response == "yes"
}
