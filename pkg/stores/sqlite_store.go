package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/kemicky/forage/pkg/forageable"
	"github.com/kemicky/forage/pkg/telemetry"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Live query names, also used as metric labels.
const (
	QueryAllName  = "all"
	QueryByIDName = "by_id"
)

// SQLiteStore implements Gateway on SQLite.
type SQLiteStore struct {
	db      *sql.DB
	cfg     Config
	feed    *ChangeFeed
	watcher *FileWatcher
	tel     *telemetry.Telemetry
	logger  *telemetry.Logger
}

var _ Gateway = (*SQLiteStore)(nil)

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithTelemetry attaches logging, tracing and metrics to the store.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(s *SQLiteStore) {
		if tel != nil {
			s.tel = tel
		}
	}
}

// NewSQLiteStore creates a new SQLite store instance. Call Init and Migrate
// before use.
func NewSQLiteStore(cfg Config, opts ...Option) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.IsMemory() {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
		cfg.WatchExternal = false
	}

	s := &SQLiteStore{
		cfg: cfg,
		tel: telemetry.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.tel.Logger.NewComponentLogger("store")
	s.feed = NewChangeFeed(s.tel.Metrics)

	return s, nil
}

// dsn builds the modernc connection string with per-connection pragmas.
func (s *SQLiteStore) dsn() string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", s.cfg.BusyTimeout.Milliseconds()))
	if !s.cfg.IsMemory() {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
		q.Set("_txlock", "immediate")
	}
	return s.cfg.Path + "?" + q.Encode()
}

// Init opens the database connection pool and, when configured, starts
// watching the database file for writes by other processes.
func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db

	if s.cfg.WatchExternal {
		s.watcher = NewFileWatcher(s.cfg.Path, s.feed, s.logger)
		if err := s.watcher.Start(); err != nil {
			s.logger.WithError(err).Warn("External change watching disabled")
			s.watcher = nil
		}
	}

	s.logger.WithField("path", s.cfg.Path).Debug("Database opened")
	return nil
}

// Close stops the watcher, closes the change feed and the database.
func (s *SQLiteStore) Close() error {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	s.feed.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Changes returns the store's change feed.
func (s *SQLiteStore) Changes() *ChangeFeed {
	return s.feed
}

// QueryAll implements Gateway.
func (s *SQLiteStore) QueryAll() *Live[[]forageable.Forageable] {
	return NewLive(QueryAllName, s.feed, s.ListForageables,
		WithLiveLogger(s.logger), WithLiveMetrics(s.tel.Metrics))
}

// QueryByID implements Gateway.
func (s *SQLiteStore) QueryByID(id int64) *Live[*forageable.Forageable] {
	return NewLive(QueryByIDName, s.feed, func(ctx context.Context) (*forageable.Forageable, error) {
		return s.FindForageable(ctx, id)
	}, WithLiveLogger(s.logger.WithRecordID(id)), WithLiveMetrics(s.tel.Metrics))
}

// ListForageables returns every stored forageable ordered by ID. An empty
// store yields an empty, non-nil slice.
func (s *SQLiteStore) ListForageables(ctx context.Context) ([]forageable.Forageable, error) {
	query := `
		SELECT id, name, address, in_season, notes
		FROM forageables
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list forageables: %w", err)
	}
	defer rows.Close()

	list := []forageable.Forageable{}
	for rows.Next() {
		f, err := scanForageable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan forageable: %w", err)
		}
		list = append(list, *f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating forageables: %w", err)
	}

	return list, nil
}

// FindForageable returns the forageable with id, or nil when there is none.
func (s *SQLiteStore) FindForageable(ctx context.Context, id int64) (*forageable.Forageable, error) {
	query := `
		SELECT id, name, address, in_season, notes
		FROM forageables
		WHERE id = ?
	`

	f, err := scanForageable(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get forageable: %w", err)
	}

	return f, nil
}

// GetForageable returns the forageable with id or a not-found error.
func (s *SQLiteStore) GetForageable(ctx context.Context, id int64) (*forageable.Forageable, error) {
	f, err := s.FindForageable(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, forageable.NewNotFoundError(id)
	}
	return f, nil
}

// Count returns the number of stored forageables.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM forageables`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count forageables: %w", err)
	}
	return n, nil
}

// Insert implements Gateway.
func (s *SQLiteStore) Insert(ctx context.Context, f *forageable.Forageable) (err error) {
	ctx, span := s.tel.Tracer.StartMutationSpan(ctx, "insert", f.ID)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	query := `
		INSERT INTO forageables (name, address, in_season, notes)
		VALUES (?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query, f.Name, f.Address, f.InSeason, nullString(f.Notes))
	if err != nil {
		return fmt.Errorf("failed to insert forageable: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted id: %w", err)
	}
	f.ID = id

	s.published(ChangeInserted, id)
	return nil
}

// Replace implements Gateway. An unknown ID affects no rows and is not an
// error.
func (s *SQLiteStore) Replace(ctx context.Context, f *forageable.Forageable) (err error) {
	ctx, span := s.tel.Tracer.StartMutationSpan(ctx, "replace", f.ID)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	query := `
		UPDATE forageables
		SET name = ?, address = ?, in_season = ?, notes = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, f.Name, f.Address, f.InSeason, nullString(f.Notes), f.ID)
	if err != nil {
		return fmt.Errorf("failed to replace forageable: %w", err)
	}

	return s.publishIfAffected(result, ChangeReplaced, f.ID)
}

// Remove implements Gateway. An unknown ID affects no rows and is not an
// error.
func (s *SQLiteStore) Remove(ctx context.Context, f *forageable.Forageable) (err error) {
	ctx, span := s.tel.Tracer.StartMutationSpan(ctx, "remove", f.ID)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	result, err := s.db.ExecContext(ctx, `DELETE FROM forageables WHERE id = ?`, f.ID)
	if err != nil {
		return fmt.Errorf("failed to remove forageable: %w", err)
	}

	return s.publishIfAffected(result, ChangeRemoved, f.ID)
}

func (s *SQLiteStore) publishIfAffected(result sql.Result, kind ChangeKind, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		s.logger.WithRecordID(id).Debugf("No forageable to %s", kindVerb(kind))
		return nil
	}

	s.published(kind, id)
	return nil
}

func (s *SQLiteStore) published(kind ChangeKind, id int64) {
	s.logger.WithRecordID(id).WithField("change", kind).Debug("Forageable changed")
	s.feed.Publish(Change{Kind: kind, ID: id})
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanForageable(row rowScanner) (*forageable.Forageable, error) {
	var (
		f     forageable.Forageable
		notes sql.NullString
	)
	if err := row.Scan(&f.ID, &f.Name, &f.Address, &f.InSeason, &notes); err != nil {
		return nil, err
	}
	f.Notes = notes.String
	return &f, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func kindVerb(kind ChangeKind) string {
	switch kind {
	case ChangeReplaced:
		return "replace"
	case ChangeRemoved:
		return "remove"
	default:
		return string(kind)
	}
}
