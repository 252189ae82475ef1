// Package sqlite implements the observation store on an embedded SQLite
// database using the pure-Go modernc driver, so builds stay CGO-free.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/fluview-etl/internal/domain"
	"github.com/couchcryptid/fluview-etl/internal/epiweek"

	_ "modernc.org/sqlite"
)

const createTable = `CREATE TABLE IF NOT EXISTS observations (
	date TEXT,
	region TEXT,
	value REAL,
	metric TEXT,
	source_id TEXT PRIMARY KEY,
	epiweek INTEGER
)`

const upsertRow = `INSERT INTO observations (date, region, value, metric, source_id, epiweek)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(source_id) DO UPDATE SET
	date = excluded.date,
	region = excluded.region,
	value = excluded.value,
	metric = excluded.metric,
	epiweek = excluded.epiweek`

// Store persists observations in a single SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database at path, ensures the observations
// schema, and backfills epiweeks on rows written before that column
// existed. The parent directory is created if missing.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.migrateLegacyRows(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// ensureSchema creates the observations table and adds the epiweek column
// to databases created before it existed.
func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create observations table: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `PRAGMA table_info(observations)`)
	if err != nil {
		return fmt.Errorf("inspect observations schema: %w", err)
	}
	defer rows.Close()

	hasEpiweek := false
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return fmt.Errorf("scan observations schema: %w", err)
		}
		if name == "epiweek" {
			hasEpiweek = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect observations schema: %w", err)
	}
	if hasEpiweek {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, `ALTER TABLE observations ADD COLUMN epiweek INTEGER`); err != nil {
		return fmt.Errorf("add epiweek column: %w", err)
	}
	return nil
}

// migrateLegacyRows backfills epiweek and recomputes date for rows saved
// before the epiweek column existed. The week is recovered from the
// source_id suffix; ids that do not end in a valid epiweek are left
// untouched and counted.
func (s *Store) migrateLegacyRows(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id FROM observations WHERE epiweek IS NULL OR epiweek = ''`)
	if err != nil {
		return fmt.Errorf("find legacy rows: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan legacy row: %w", err)
		}
		ids = append(ids, id.String)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("find legacy rows: %w", err)
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return nil
	}

	fixed, skipped := 0, 0
	for _, id := range ids {
		epi, err := domain.EpiweekFromSourceID(id)
		if err != nil {
			skipped++
			continue
		}
		monday, err := epiweek.Monday(epi)
		if err != nil {
			skipped++
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE observations SET epiweek = ?, date = ? WHERE source_id = ?`,
			epi, domain.NewDay(monday), id,
		); err != nil {
			return fmt.Errorf("backfill epiweek for %s: %w", id, err)
		}
		fixed++
	}

	s.logger.Info("backfilled legacy observation rows", "fixed", fixed, "skipped", skipped)
	return nil
}

// Save upserts each observation keyed on source_id. Rows are written one at
// a time without a wrapping transaction, so a failure part way through
// leaves the earlier rows saved; the returned count covers only the rows
// actually written.
func (s *Store) Save(ctx context.Context, obs []domain.Observation) (int, error) {
	stmt, err := s.db.PrepareContext(ctx, upsertRow)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	count := 0
	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx, o.Date, o.Region, o.Value, o.Metric, o.SourceID, o.Epiweek); err != nil {
			return count, fmt.Errorf("upsert %s: %w", o.SourceID, err)
		}
		count++
	}
	return count, nil
}

// ReadAll returns every stored observation. A database without the
// observations table reads as empty. Legacy rows whose date cannot be
// parsed keep a zero date rather than failing the read.
func (s *Store) ReadAll(ctx context.Context) ([]domain.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, region, value, metric, source_id, epiweek FROM observations`)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return []domain.Observation{}, nil
		}
		return nil, fmt.Errorf("read observations: %w", err)
	}
	defer rows.Close()

	out := []domain.Observation{}
	for rows.Next() {
		var (
			date     sql.NullString
			region   sql.NullString
			value    sql.NullFloat64
			metric   sql.NullString
			sourceID sql.NullString
			epi      sql.NullInt64
		)
		if err := rows.Scan(&date, &region, &value, &metric, &sourceID, &epi); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}

		o := domain.Observation{
			Region:   region.String,
			Metric:   metric.String,
			SourceID: sourceID.String,
			Epiweek:  int(epi.Int64),
		}
		if value.Valid {
			v := value.Float64
			o.Value = &v
		}
		if date.Valid {
			if d, err := domain.ParseDay(date.String); err == nil {
				o.Date = d
			}
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read observations: %w", err)
	}
	return out, nil
}

// Ping reports whether the database is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
