package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

// Every step is idempotent, so a partially applied schema is completed on the next start.
var steps = []migrationStep{
	{
		Name: "create_table_videos",
		SQL: `CREATE TABLE IF NOT EXISTS videos (
  id            UUID        PRIMARY KEY,
  filename      TEXT        NOT NULL UNIQUE,
  original_name TEXT        NOT NULL,
  title         TEXT        NOT NULL DEFAULT '',
  description   TEXT        NOT NULL DEFAULT '',
  content_type  TEXT        NOT NULL,
  size          BIGINT      NOT NULL CHECK (size >= 0),
  duration_ms   BIGINT,
  width         INTEGER,
  height        INTEGER,
  uploader_id   TEXT        NOT NULL,
  is_public     BOOLEAN     NOT NULL DEFAULT TRUE,
  views         BIGINT      NOT NULL DEFAULT 0,
  likes_count   BIGINT      NOT NULL DEFAULT 0,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_videos_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_videos_created_at ON videos (created_at DESC, id DESC);`,
	},
	{
		Name: "create_index_videos_uploader_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_videos_uploader_id ON videos (uploader_id);`,
	},
	{
		Name: "create_table_video_likes",
		SQL: `CREATE TABLE IF NOT EXISTS video_likes (
  video_id   UUID        NOT NULL REFERENCES videos (id) ON DELETE CASCADE,
  user_id    TEXT        NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (video_id, user_id)
);`,
	},
}

// sentinelQuery checks for the table created by the last step.
const sentinelQuery = "SELECT to_regclass('public.video_likes') IS NOT NULL"

// EnsureMigrated creates the catalog schema unless it is already present.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *slog.Logger, dbHost string) error {
	start := time.Now()
	log = log.With("component", "database", "db_host", dbHost)

	log.Info("db_migration_check", "status", "starting")

	var exists bool
	if err := db.QueryRowContext(ctx, sentinelQuery).Scan(&exists); err != nil {
		log.Error("db_migration_failed",
			"status", "error",
			"error_message", fmt.Sprintf("failed to check sentinel table: %v", err),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip",
			"status", "success",
			"detail", "schema already exists, skipping migration",
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}

	log.Info("db_migration_start", "status", "in_progress", "steps", len(steps))

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				"status", "error",
				"migration_step", step.Name,
				"error_message", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
				"step_duration_ms", time.Since(stepStart).Milliseconds(),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		log.Debug("db_migration_step",
			"status", "success",
			"migration_step", step.Name,
			"step_duration_ms", time.Since(stepStart).Milliseconds(),
		)
	}

	log.Info("db_migration_success",
		"status", "success",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
