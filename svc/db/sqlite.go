package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/binary"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"raisu/pkg/domain"
)

var ErrCircuitOpen = errors.New("database circuit breaker open")

const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
	maxFailures     = 5
	cooldownSeconds = 30
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5
	defaultQueryTimeout = 5 * time.Second
	cleanupBatch        = 100
	maxCleanupBatches   = 10000
)

// SQLite stores sealed pastes. Lookups by id are padded to a jittered floor
// so response time does not reveal whether an id exists.
type SQLite struct {
	db            *sql.DB
	failures      int32
	circuitState  int32
	circuitOpened int64
	queryTimeout  time.Duration
	floor         time.Duration
	floorJitter   time.Duration
}

func (s *SQLite) DB() *sql.DB {
	return s.db
}

func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(path, defaultMaxOpenConns, defaultMaxIdleConns, defaultQueryTimeout)
}

func NewSQLiteWithConfig(path string, maxOpenConns, maxIdleConns int, queryTimeout time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping db")
	}
	s := &SQLite{
		db:           db,
		queryTimeout: queryTimeout,
		floor:        30 * time.Millisecond,
		floorJitter:  15 * time.Millisecond,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous=FULL",
	} {
		if _, err := s.db.Exec(pragma); err != nil {
			return errors.Wrap(err, pragma)
		}
	}
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS pastes (
		id TEXT PRIMARY KEY,
		sealed_blob BLOB NOT NULL,
		wrapped_dek BLOB NOT NULL,
		deletion_token_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		views INTEGER NOT NULL DEFAULT 0,
		client_ip_hash TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_pastes_expires_at ON pastes(expires_at);
	`)
	return err
}

func (s *SQLite) checkCircuit() error {
	switch atomic.LoadInt32(&s.circuitState) {
	case circuitOpen:
		opened := atomic.LoadInt64(&s.circuitOpened)
		if time.Now().Unix()-opened >= cooldownSeconds &&
			atomic.CompareAndSwapInt32(&s.circuitState, circuitOpen, circuitHalfOpen) {
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (s *SQLite) recordError(err error) {
	if err == nil {
		atomic.StoreInt32(&s.failures, 0)
		atomic.StoreInt32(&s.circuitState, circuitClosed)
		return
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	failures := atomic.AddInt32(&s.failures, 1)
	if atomic.LoadInt32(&s.circuitState) == circuitHalfOpen || failures >= maxFailures {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
		atomic.StoreInt32(&s.failures, 0)
	}
}

func (s *SQLite) pad(start time.Time) {
	if s.floor <= 0 {
		return
	}
	target := s.floor
	if s.floorJitter > 0 {
		var b [8]byte
		if _, err := rand.Read(b[:]); err == nil {
			target += time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(s.floorJitter))
		}
	}
	if elapsed := time.Since(start); elapsed < target {
		time.Sleep(target - elapsed)
	}
}

func (s *SQLite) Create(ctx context.Context, p *domain.Paste) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO pastes (id, sealed_blob, wrapped_dek, deletion_token_hash, created_at, expires_at, client_ip_hash)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SealedBlob, p.WrappedDEK, p.DeletionTokenHash, p.CreatedAt.UTC(), p.ExpiresAt.UTC(), p.ClientIPHash,
	)
	s.recordError(err)
	return errors.Wrap(err, "db create")
}

// Get returns an unexpired paste with its blob still sealed.
func (s *SQLite) Get(ctx context.Context, id string) (*domain.Paste, error) {
	defer s.pad(time.Now())
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var p domain.Paste
	var ipHash sql.NullString
	err := s.db.QueryRowContext(ctx, `
	SELECT id, sealed_blob, wrapped_dek, deletion_token_hash, created_at, expires_at, views, client_ip_hash
	FROM pastes WHERE id = ? AND expires_at > ?`, id, time.Now().UTC(),
	).Scan(&p.ID, &p.SealedBlob, &p.WrappedDEK, &p.DeletionTokenHash, &p.CreatedAt, &p.ExpiresAt, &p.Views, &ipHash)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPasteNotFound
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db get")
	}
	p.ClientIPHash = ipHash.String
	return &p, nil
}

// Delete reports ErrPasteNotFound when no row matched.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	defer s.pad(time.Now())
	if err := s.checkCircuit(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM pastes WHERE id = ?`, id)
	s.recordError(err)
	if err != nil {
		return errors.Wrap(err, "delete paste")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPasteNotFound
	}
	return nil
}

func (s *SQLite) IncrViews(ctx context.Context, id string) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `UPDATE pastes SET views = views + 1 WHERE id = ?`, id)
	s.recordError(err)
	return errors.Wrap(err, "incr views")
}

func (s *SQLite) Exists(ctx context.Context, id string) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM pastes WHERE id = ? LIMIT 1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "exists check failed")
	}
	return true, nil
}

// CleanupExpired deletes expired rows in small batches so writers are not
// starved.
func (s *SQLite) CleanupExpired(ctx context.Context) (int, error) {
	if err := s.checkCircuit(); err != nil {
		return 0, err
	}
	total := 0
	for i := 0; i < maxCleanupBatches; i++ {
		qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		res, err := s.db.ExecContext(qctx, `
		DELETE FROM pastes WHERE id IN (
			SELECT id FROM pastes WHERE expires_at <= ? LIMIT ?
		)`, time.Now().UTC(), cleanupBatch)
		cancel()
		s.recordError(err)
		if err != nil {
			return total, errors.Wrap(err, "cleanup batch failed")
		}
		n, _ := res.RowsAffected()
		total += int(n)
		if n < cleanupBatch {
			return total, nil
		}
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return total, errors.New("cleanup hit batch limit, more records may exist")
}

func (s *SQLite) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
