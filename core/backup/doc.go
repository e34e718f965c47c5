// Package backup takes point-in-time snapshots of both record stores before a
// run writes to them, and restores them on demand.
//
// A snapshot is a directory <dir>/<source>-<timestamp>-<id>/ holding one JSON
// Lines export per store and a manifest.json written last. A directory without
// a manifest is incomplete and ignored. Snapshots can be mirrored to object
// storage and fetched back for a restore on another host.
package backup
