// Package postgres implements the observation store on PostgreSQL through
// the pgx driver's database/sql adapter.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/fluview-etl/internal/domain"
	"github.com/couchcryptid/fluview-etl/internal/epiweek"
	"github.com/jackc/pgx/v5/pgconn"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// undefinedTable is the PostgreSQL error code for a missing relation.
const undefinedTable = "42P01"

// Dates are stored as TEXT for parity with the sqlite schema, so a dump
// from one backend loads into the other unchanged.
const createTable = `CREATE TABLE IF NOT EXISTS observations (
	date TEXT,
	region TEXT,
	value DOUBLE PRECISION,
	metric TEXT,
	source_id TEXT PRIMARY KEY,
	epiweek INTEGER
)`

const upsertRow = `INSERT INTO observations (date, region, value, metric, source_id, epiweek)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (source_id) DO UPDATE SET
	date = EXCLUDED.date,
	region = EXCLUDED.region,
	value = EXCLUDED.value,
	metric = EXCLUDED.metric,
	epiweek = EXCLUDED.epiweek`

// Store persists observations in a PostgreSQL database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to the database named by dsn, ensures the observations
// schema, and backfills epiweeks on rows written before that column
// existed.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
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

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create observations table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`ALTER TABLE observations ADD COLUMN IF NOT EXISTS epiweek INTEGER`); err != nil {
		return fmt.Errorf("add epiweek column: %w", err)
	}
	return nil
}

// migrateLegacyRows backfills epiweek and recomputes date for rows saved
// before the epiweek column existed. Ids that do not end in a valid epiweek
// are left untouched and counted.
func (s *Store) migrateLegacyRows(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id FROM observations WHERE epiweek IS NULL`)
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
			`UPDATE observations SET epiweek = $1, date = $2 WHERE source_id = $3`,
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
// observations table reads as empty. Rows whose date cannot be parsed keep
// a zero date rather than failing the read.
func (s *Store) ReadAll(ctx context.Context) ([]domain.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, region, value, metric, source_id, epiweek FROM observations`)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
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

// Ping reports whether the database connection is still healthy.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
