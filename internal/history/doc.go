// Package history records the set commands handled by the lighting bridge.
//
// Entries live in the command_history SQLite table created by the embedded
// migrations. The bridge records every set command with its outcome and
// answers the "history" command from Recent.
//
// # Usage
//
//	db, _ := database.Open(cfg.History)
//	_ = db.Migrate(ctx, migrations.FS)
//	repo := history.NewSQLiteRepository(db.DB)
//	entries, err := repo.Recent(ctx, "1229782938247303441", history.DefaultLimit)
package history
