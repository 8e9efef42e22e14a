// Package database provides SQLite connectivity for the BleBox bridge.
//
// It opens the database with WAL mode and a busy timeout, and applies
// embedded schema migrations (additive-only, each .up.sql paired with a
// .down.sql). All queries use parameterised statements; the file is
// owner read/write only.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
package database
