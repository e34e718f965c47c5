// Package recordstore implements the relational record store adapter on top
// of GORM.
//
// All logical sources share one provisioned table; uniqueness is enforced by
// the database on (source, identity). Inserts use ON CONFLICT DO NOTHING (ON
// DUPLICATE KEY on MySQL) so re-submitting a batch is a no-op, and every batch
// runs in a single transaction.
//
// The adapter never creates or alters the table. Check verifies the required
// columns exist and reports ErrStoreUnavailable otherwise.
package recordstore
