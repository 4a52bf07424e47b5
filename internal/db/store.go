// Package db implements the historical store on PostgreSQL. The uniqueness
// constraints of the three family tables are the sole correctness mechanism
// under concurrent upsert: simultaneous writes for the same key converge to
// last write wins without application-level locking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/1509Chamma/ukenergydashboard/internal/models"
)

// Store wraps database access for the three family tables.
type Store struct {
	pool     *pgxpool.Pool
	pageSize int
}

// New creates a Store backed by a pgx pool. pageSize bounds one internal
// fetch during range reads; values <= 0 fall back to 1000.
func New(ctx context.Context, databaseURL string, pageSize int) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Store{pool: pool, pageSize: pageSize}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the family tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, family := range models.Families() {
		schema := models.SchemaFor(family)
		if _, err := s.pool.Exec(ctx, createTableSQL(schema)); err != nil {
			return fmt.Errorf("create table %s: %w", schema.Table, err)
		}
		for _, stmt := range createIndexSQL(schema) {
			if _, err := s.pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("create index on %s: %w", schema.Table, err)
			}
		}
	}
	return nil
}

// Upsert writes validated rows keyed by the family's uniqueness key and
// reports how many keys were newly inserted versus overwritten. Re-running
// the same batch is a no-op apart from bumping updated_at.
func (s *Store) Upsert(ctx context.Context, family models.Family, rows []models.CanonicalRow) (inserted, updated int, err error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}

	schema := models.SchemaFor(family)
	query := upsertSQL(schema)

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query, upsertArgs(schema, row)...)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range rows {
		var fresh bool
		if err := res.QueryRow().Scan(&fresh); err != nil {
			return inserted, updated, fmt.Errorf("upsert %s: %w", family, err)
		}
		if fresh {
			inserted++
		} else {
			updated++
		}
	}
	return inserted, updated, nil
}

// Filter bounds a range read. Start and End are inclusive; an empty Regions
// set means no region filter.
type Filter struct {
	Start   time.Time
	End     time.Time
	Regions []int
}

// Read returns all records of a family matching the filter, ordered by
// ascending timestamp (then region). The read pages internally so a
// long-range query is concatenated rather than silently truncated.
func (s *Store) Read(ctx context.Context, family models.Family, filter Filter) ([]models.Record, error) {
	schema := models.SchemaFor(family)

	return collectPages(s.pageSize, func(limit, offset int) ([]models.Record, error) {
		query, args := selectSQL(schema, filter, limit, offset)
		rows, err := s.pool.Query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", family, err)
		}
		defer rows.Close()

		page := make([]models.Record, 0, limit)
		dest, build := scanTargets(schema)
		for rows.Next() {
			if err := rows.Scan(dest...); err != nil {
				return nil, fmt.Errorf("read %s: %w", family, err)
			}
			page = append(page, build())
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("read %s: %w", family, err)
		}
		return page, nil
	})
}

// collectPages drains a bounded fetch until a short page signals the end.
func collectPages(pageSize int, fetch func(limit, offset int) ([]models.Record, error)) ([]models.Record, error) {
	all := make([]models.Record, 0, pageSize)
	offset := 0
	for {
		page, err := fetch(pageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		offset += pageSize
	}
}

// Watermark returns the latest stored timestamp for a family. ok is false
// when the table is empty.
func (s *Store) Watermark(ctx context.Context, family models.Family) (time.Time, bool, error) {
	schema := models.SchemaFor(family)

	var ts *time.Time
	if err := s.pool.QueryRow(ctx, watermarkSQL(schema)).Scan(&ts); err != nil {
		return time.Time{}, false, fmt.Errorf("watermark %s: %w", family, err)
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return ts.UTC(), true, nil
}

// Bounds returns the earliest and latest demand timestamps, which drive the
// date picker on the presentation tier. ok is false when no data is stored.
func (s *Store) Bounds(ctx context.Context) (min, max time.Time, ok bool, err error) {
	schema := models.SchemaFor(models.FamilyDemand)

	var lo, hi *time.Time
	query := fmt.Sprintf("SELECT MIN(ts), MAX(ts) FROM %s", schema.Table)
	if err := s.pool.QueryRow(ctx, query).Scan(&lo, &hi); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("bounds: %w", err)
	}
	if lo == nil || hi == nil {
		return time.Time{}, time.Time{}, false, nil
	}
	return lo.UTC(), hi.UTC(), true, nil
}
