// Package server holds the HTTP server configuration.
//
// The Config struct defines the HTTP port, the API key guarding every route,
// the directory run reports are persisted to and an optional allow-list of
// logical sources that may be reconciled through the API.
//
// # Usage
//
// This package is used by core/config to embed server settings and by the
// reports feature to validate the source of a reconcile request.
package server
