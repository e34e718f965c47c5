// Package utils holds value conversion helpers for record payloads, which
// arrive with different Go types depending on the store that decoded them.
package utils
