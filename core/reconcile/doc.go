// Package reconcile implements batch, bi-directional reconciliation between
// the append-only ledger (left) and the relational record store (right).
//
// A run moves through a fixed sequence of phases:
//
//	Idle → Analyzing → CopyingLeftToRight → CopyingRightToLeft →
//	ResolvingConflicts → Reporting → Done
//
// with Failed reachable whenever the stores cannot be analyzed or a required
// backup cannot be taken.
//
// # Analysis
//
// Both stores are checked and their identity sets loaded (identities only,
// never payloads). ComputeDifference partitions the union into leftOnly,
// rightOnly and both. Store adapters normalize identities with a Normalizer
// before they reach the analyzer: trim, lower-case, strip the source prefix.
//
// # Writes
//
// One-sided identities are copied in batches of Options.BatchSize. Every batch
// is atomic and idempotent; a failing batch is retried with capped exponential
// backoff and its identities are recorded as skipped once retries run out.
// Batches targeting the relational store run on a bounded worker pool;
// batches targeting the ledger run one at a time.
//
// # Conflicts
//
// Identities present in both stores are merged field by field by a
// FieldMergeResolver. A non-empty value wins over an empty one; two different
// non-empty values are settled by Precedence (relational by default). The
// resolution is written back only to the side that differs from it.
//
// # Usage
//
//	exec := reconcile.NewExecutor(ledgerStore, relationalStore, opts, log)
//	exec.Backup = backupManager
//	report, err := exec.Run(ctx, "reddit")
package reconcile
