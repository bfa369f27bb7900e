// Package database opens the SQLite file behind the command history and
// applies its schema migrations.
//
//	db, err := database.Open(cfg.History)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are read from an fs.FS holding files named
// YYYYMMDD_HHMMSS_description.up.sql, each with an optional .down.sql.
// Applied versions are tracked in the schema_migrations table.
package database
