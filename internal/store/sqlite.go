package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const (
	defaultRunsPerPage = 50
	defaultHitsPerPage = 100
	maxSettingKeyLen   = 64
	writeAttempts      = 5
)

// SQLiteDB implements the DB interface using SQLite
type SQLiteDB struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

// NewSQLiteDB opens a SQLite database. ":memory:" gives a private in-memory
// database; the pool is held to one connection so it is shared by all calls.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to apply %q: %w", pragma, err), db.Close())
		}
	}

	return &SQLiteDB{
		db:     db,
		logger: log.New(io.Discard, "", 0),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetLogger sets the logger for migration and write events
func (s *SQLiteDB) SetLogger(l *log.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Close optimizes and closes the database connection
func (s *SQLiteDB) Close() error {
	_, optErr := s.db.Exec("PRAGMA optimize")
	return multierr.Append(optErr, s.db.Close())
}

func (s *SQLiteDB) provider() (*goose.Provider, error) {
	fsys, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
}

// Migrate applies pending embedded migrations. Running it again is a no-op.
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	p, err := s.provider()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	for _, r := range results {
		s.logger.Printf("migration_applied version=%d duration=%s", r.Source.Version, r.Duration)
	}
	return nil
}

// Version returns the current schema version
func (s *SQLiteDB) Version(ctx context.Context) (int64, error) {
	p, err := s.provider()
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}

// isBusy reports whether err is a transient lock error worth retrying
func isBusy(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
		return true
	}
	return false
}

// write runs fn in a transaction, retrying while the database is busy
func (s *SQLiteDB) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	backoff := retry.WithMaxRetries(writeAttempts, retry.NewExponential(20*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.tx(ctx, fn)
		if isBusy(err) {
			s.logger.Printf("write_retry err=%v", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *SQLiteDB) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return multierr.Append(err, ignoreDone(tx.Rollback()))
	}
	return tx.Commit()
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// storable converts a counter to SQLite's signed integer
func storable(name string, v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%s %d exceeds storable range", name, v)
	}
	return int64(v), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func jsonOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

// SaveRun stores a run and its hits in one transaction. An empty ID is
// filled with a new uuid and a zero CreatedAt with the current time.
func (s *SQLiteDB) SaveRun(ctx context.Context, run *Run, hits []Hit) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	if run.Kind != KindSearch && run.Kind != KindScan {
		return fmt.Errorf("unknown run kind %q", run.Kind)
	}

	skipStart, err := storable("skip_start", run.SkipStart)
	if err != nil {
		return err
	}
	skipEnd, err := storable("skip_end", run.SkipEnd)
	if err != nil {
		return err
	}
	evaluated, err := storable("total_evaluated", run.TotalEvaluated)
	if err != nil {
		return err
	}
	hitSkips := make([]int64, len(hits))
	for i, h := range hits {
		if hitSkips[i], err = storable("hit skips", h.Skips); err != nil {
			return err
		}
	}

	query := `INSERT INTO runs (
		id, kind, species, alt_form, encounter_json, seed, skip_start, skip_end,
		filter_json, script, hit_limit, hit_count, total_evaluated, timed_out,
		truncated, engine_version, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err = s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			run.ID, run.Kind, run.Species, run.AltForm, jsonOrEmpty(run.Encounter), run.Seed,
			skipStart, skipEnd, jsonOrEmpty(run.Filter), run.Script, run.HitLimit, run.HitCount,
			evaluated, boolInt(run.TimedOut), boolInt(run.Truncated), run.EngineVersion,
			run.CreatedAt.UTC().UnixMilli(),
		)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, "INSERT INTO hits (run_id, skips, seed, frame_json) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, hit := range hits {
			if _, err := stmt.ExecContext(ctx, run.ID, hitSkips[i], hit.Seed, jsonOrEmpty(hit.Frame)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Printf("run_saved id=%s kind=%s species=%d seed=%s hits=%d", run.ID, run.Kind, run.Species, run.Seed, len(hits))
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const runColumns = `id, kind, species, alt_form, encounter_json, seed, skip_start, skip_end,
	filter_json, script, hit_limit, hit_count, total_evaluated, timed_out,
	truncated, engine_version, created_at`

func scanRun(row rowScanner) (Run, error) {
	var (
		run                           Run
		encounter, filter             string
		skipStart, skipEnd, evaluated int64
		timedOut, truncated           int
		createdAt                     int64
	)
	err := row.Scan(
		&run.ID, &run.Kind, &run.Species, &run.AltForm, &encounter, &run.Seed,
		&skipStart, &skipEnd, &filter, &run.Script, &run.HitLimit, &run.HitCount,
		&evaluated, &timedOut, &truncated, &run.EngineVersion, &createdAt,
	)
	if err != nil {
		return Run{}, err
	}
	run.Encounter = json.RawMessage(encounter)
	run.Filter = json.RawMessage(filter)
	run.SkipStart = uint64(skipStart)
	run.SkipEnd = uint64(skipEnd)
	run.TotalEvaluated = uint64(evaluated)
	run.TimedOut = timedOut == 1
	run.Truncated = truncated == 1
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	return run, nil
}

// GetRun retrieves a run by ID
func (s *SQLiteDB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns retrieves runs newest first with pagination and filtering
func (s *SQLiteDB) ListRuns(ctx context.Context, query RunsQuery) (*RunsList, error) {
	var (
		conds []string
		args  []any
	)
	if query.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, query.Kind)
	}
	if query.Species != 0 {
		conds = append(conds, "species = ?")
		args = append(args, query.Species)
	}
	if query.Seed != "" {
		conds = append(conds, "seed = ?")
		args = append(args, strings.ToLower(query.Seed))
	}
	whereClause := ""
	if len(conds) > 0 {
		whereClause = "WHERE " + strings.Join(conds, " AND ")
	}

	var totalCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs "+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	page, perPage := paginate(query.Page, query.PerPage, defaultRunsPerPage)
	offset := (page - 1) * perPage

	mainQuery := "SELECT " + runColumns + " FROM runs " + whereClause +
		" ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, mainQuery, append(args, perPage, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return &RunsList{
		Runs:       runs,
		TotalCount: totalCount,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages(totalCount, perPage),
	}, nil
}

func paginate(page, perPage, def int) (int, int) {
	if perPage <= 0 {
		perPage = def
	}
	if page <= 0 {
		page = 1
	}
	return page, perPage
}

func totalPages(count, perPage int) int {
	return (count + perPage - 1) / perPage
}

// GetRunHits returns a page of a run's hits in skip order, each with the
// distance from the hit before it (across page boundaries too).
func (s *SQLiteDB) GetRunHits(ctx context.Context, runID string, page, perPage int) (*HitsPage, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	var totalCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM hits WHERE run_id = ?", runID).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to get hits count: %w", err)
	}

	page, perPage = paginate(page, perPage, defaultHitsPerPage)
	offset := (page - 1) * perPage

	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, skips, seed, frame_json
		FROM hits WHERE run_id = ?
		ORDER BY skips
		LIMIT ? OFFSET ?`, runID, perPage, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query hits: %w", err)
	}
	defer rows.Close()

	hits := []HitWithDelta{}
	for rows.Next() {
		var (
			hit   Hit
			skips int64
			frame string
		)
		if err := rows.Scan(&hit.ID, &hit.RunID, &skips, &hit.Seed, &frame); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		hit.Skips = uint64(skips)
		hit.Frame = json.RawMessage(frame)
		hits = append(hits, HitWithDelta{Hit: hit})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hits: %w", err)
	}

	for i := range hits {
		if i > 0 {
			delta := hits[i].Skips - hits[i-1].Skips
			hits[i].DeltaSkips = &delta
			continue
		}
		if page == 1 {
			continue
		}
		var prev int64
		err := s.db.QueryRowContext(ctx,
			"SELECT skips FROM hits WHERE run_id = ? AND skips < ? ORDER BY skips DESC LIMIT 1",
			runID, int64(hits[0].Skips)).Scan(&prev)
		if err == nil {
			delta := hits[0].Skips - uint64(prev)
			hits[0].DeltaSkips = &delta
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to get previous hit: %w", err)
		}
	}

	return &HitsPage{
		Hits:       hits,
		TotalCount: totalCount,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages(totalCount, perPage),
	}, nil
}

// DeleteRun removes a run and its hits
func (s *SQLiteDB) DeleteRun(ctx context.Context, id string) error {
	var affected int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM hits WHERE run_id = ?", id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	return nil
}

// ValidSettingKey reports whether key may name a setting
func ValidSettingKey(key string) bool {
	if key == "" || len(key) > maxSettingKeyLen {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}

// GetSetting returns the stored value for key
func (s *SQLiteDB) GetSetting(ctx context.Context, key string) (*Setting, error) {
	if !ValidSettingKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	var (
		value     string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, "SELECT value, updated_at FROM settings WHERE key = ?", key).Scan(&value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return &Setting{Key: key, Value: json.RawMessage(value), UpdatedAt: time.UnixMilli(updatedAt).UTC()}, nil
}

// PutSetting stores value under key, replacing any previous value
func (s *SQLiteDB) PutSetting(ctx context.Context, key string, value json.RawMessage) (*Setting, error) {
	if !ValidSettingKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if !json.Valid(value) {
		return nil, ErrInvalidValue
	}

	setting := &Setting{Key: key, Value: value, UpdatedAt: s.now()}
	err := s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, string(value), setting.UpdatedAt.UnixMilli())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save setting: %w", err)
	}
	return setting, nil
}
