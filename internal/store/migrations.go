package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Scenes table - one row per segmentation result
		`CREATE TABLE IF NOT EXISTS scenes (
			id TEXT PRIMARY KEY,
			image_name TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL,
			point_x REAL NOT NULL,
			point_y REAL NOT NULL,
			mask_min REAL NOT NULL,
			mask_max REAL NOT NULL,
			positive_count INTEGER NOT NULL,
			total INTEGER NOT NULL,
			shapes TEXT NOT NULL DEFAULT '[]',
			particle_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_scenes_created_at ON scenes(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
