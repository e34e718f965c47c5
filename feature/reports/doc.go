// Package reports serves reconciliation runs over HTTP.
//
// It persists every run report as JSON under <reports_dir>/<source>/ and exposes:
//
//   - GET  /reports                 list persisted reports (optional ?source=)
//   - GET  /reports/:source/latest  the newest report of a source
//   - POST /reconcile/:source       run a reconciliation (optional ?dry_run=)
//
// Runs go through reconcile.RunGuard. A second trigger for a running source in
// the same mode (dry run or not) shares the in-flight report. A trigger in the
// other mode, or one racing another process holding the run lock, yields
// 409 Conflict.
package reports
