// Package database handles relational store connections and schema inspection.
//
// It wraps GORM to configure MySQL (production) or SQLite (tests, local runs)
// connections from the application's configuration.
//
// # Connect
//
// Connect opens the configured driver, applies pool settings and verifies the
// connection with a bounded ping.
//
// # Schema Inspection
//
// The destination schema and its time partitions are provisioned outside this
// program. RequireColumns lets the relational record store verify that the
// provisioned table carries the columns it needs before a run starts.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//
//	err = database.RequireColumns(db, "records", []string{"source", "identity"})
package database
