package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/gwillem/waferbot/pkg/robot"
)

const schema = `
CREATE TABLE IF NOT EXISTS poses (
	station    TEXT PRIMARY KEY COLLATE NOCASE,
	j1         REAL NOT NULL DEFAULT 0,
	j2         REAL NOT NULL DEFAULT 0,
	j3         REAL NOT NULL DEFAULT 0,
	j4         REAL NOT NULL DEFAULT 0,
	j5         REAL NOT NULL DEFAULT 0,
	j6         REAL NOT NULL DEFAULT 0,
	j7         REAL NOT NULL DEFAULT 0,
	j8         REAL NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);`

// SQLite stores poses in a single table keyed by station name.
type SQLite struct {
	*sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	db := &SQLite{DB: sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}

func (db *SQLite) migrate() error {
	_, err := db.Exec(schema)
	return err
}

// FindPose returns the pose of station or ErrNotFound.
func (db *SQLite) FindPose(ctx context.Context, station string) (robot.PoseData, error) {
	var p robot.PoseData
	err := db.QueryRowContext(ctx,
		`SELECT station, j1, j2, j3, j4, j5, j6, j7, j8 FROM poses WHERE station = ?`,
		strings.TrimSpace(station),
	).Scan(&p.Station, &p.J1, &p.J2, &p.J3, &p.J4, &p.J5, &p.J6, &p.J7, &p.J8)
	if errors.Is(err, sql.ErrNoRows) {
		return robot.PoseData{}, fmt.Errorf("find %q: %w", station, ErrNotFound)
	}
	if err != nil {
		return robot.PoseData{}, fmt.Errorf("find %q: %w", station, err)
	}
	return p, nil
}

// UpsertPose inserts p or overwrites the row of its station.
func (db *SQLite) UpsertPose(ctx context.Context, p robot.PoseData) error {
	station := strings.TrimSpace(p.Station)
	if station == "" {
		return errors.New("upsert pose: empty station")
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO poses (station, j1, j2, j3, j4, j5, j6, j7, j8, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now','localtime'))
		ON CONFLICT(station) DO UPDATE SET
			station = excluded.station,
			j1 = excluded.j1, j2 = excluded.j2, j3 = excluded.j3,
			j4 = excluded.j4, j5 = excluded.j5, j6 = excluded.j6,
			j7 = excluded.j7, j8 = excluded.j8,
			updated_at = excluded.updated_at`,
		station, p.J1, p.J2, p.J3, p.J4, p.J5, p.J6, p.J7, p.J8)
	if err != nil {
		return fmt.Errorf("upsert %q: %w", station, err)
	}
	return nil
}

// ListPoses returns every pose ordered by station.
func (db *SQLite) ListPoses(ctx context.Context) ([]robot.PoseData, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT station, j1, j2, j3, j4, j5, j6, j7, j8 FROM poses ORDER BY station`)
	if err != nil {
		return nil, fmt.Errorf("list poses: %w", err)
	}
	defer rows.Close()

	var out []robot.PoseData
	for rows.Next() {
		var p robot.PoseData
		if err := rows.Scan(&p.Station, &p.J1, &p.J2, &p.J3, &p.J4, &p.J5, &p.J6, &p.J7, &p.J8); err != nil {
			return nil, fmt.Errorf("scan pose: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
