// Package migration applies versioned SQL files to a SQLite database.
//
// Files are named {version}_{description}.sql and read from an fs.FS, usually
// the schema embedded in the sqlite package. Applied versions are tracked in
// a schema_migrations table together with the checksum of the file that was
// run, and each file runs in its own transaction with its tracking row.
//
//	manager := migration.NewManager(migration.NewScanner(files, "migrations"), migration.NewSQLiteExecutor(db), logger)
//	if _, err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
