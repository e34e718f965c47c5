// Package ledger implements the flat-file record store: an append-only,
// chronologically sorted JSON Lines file per logical source.
//
// Each line holds one record:
//
//	{"identity":"t3_abc","source":"reddit","occurred_at":"2024-03-01T12:00:00Z","payload":{"title":"..."}}
//
// Writes never append in place. Every batch takes an exclusive lock on
// <file>.lock, reads the whole file, merges the batch, sorts by occurred_at
// then identity, writes a temporary file next to the original, syncs it and
// renames it over the original. A failure at any step leaves the original
// file untouched.
//
// Lines that cannot be parsed, or that lack an identity or a timestamp, are
// skipped on load and kept verbatim at the end of the file on rewrite.
package ledger
