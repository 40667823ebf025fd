// Package sqlite is a docstore.Store persisted in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/CrestNiraj12/rantfeed/domain"
	"github.com/CrestNiraj12/rantfeed/infra/docstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	version    INTEGER NOT NULL,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (collection, id)
)`

// Store keeps every document as a JSON row in a single table.
type Store struct {
	db     *sql.DB
	policy docstore.RetryPolicy
	log    *zap.Logger
	now    func() time.Time
}

var _ docstore.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, policy docstore.RetryPolicy, log *zap.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}
	// One connection serializes commits and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			log.Debug("sqlite pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	s := NewWithDB(db, policy, log)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("sqlite store ready", zap.String("path", path))
	return s, nil
}

// NewWithDB wraps an already-open database. The schema is not applied.
func NewWithDB(db *sql.DB, policy docstore.RetryPolicy, log *zap.Logger) *Store {
	return &Store{db: db, policy: policy, log: log, now: time.Now}
}

// Migrate creates the documents table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating documents table: %w", mapErr(err))
	}
	return nil
}

func (s *Store) Get(ctx context.Context, ref docstore.Ref) (docstore.Document, error) {
	const q = `SELECT version, data, updated_at FROM documents WHERE collection = ? AND id = ?`

	var (
		version   int64
		raw       string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, q, ref.Collection, ref.ID).Scan(&version, &raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, fmt.Errorf("%s: %w", ref, domain.ErrNotFound)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("reading %s: %w", ref, mapErr(err))
	}
	return decodeRow(ref, version, raw, updatedAt)
}

func (s *Store) Create(ctx context.Context, ref docstore.Ref, data map[string]any) (docstore.Document, error) {
	const q = `INSERT INTO documents (collection, id, version, data, updated_at)
	VALUES (?, ?, 1, ?, ?)
	ON CONFLICT (collection, id) DO NOTHING`

	raw, err := docstore.Encode(data)
	if err != nil {
		return docstore.Document{}, err
	}
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx, q, ref.Collection, ref.ID, string(raw), domain.FormatTime(now))
	if err != nil {
		return docstore.Document{}, fmt.Errorf("creating %s: %w", ref, mapErr(err))
	}
	if n, err := res.RowsAffected(); err != nil {
		return docstore.Document{}, fmt.Errorf("creating %s: %w", ref, mapErr(err))
	} else if n == 0 {
		return docstore.Document{}, fmt.Errorf("%s: %w", ref, domain.ErrAlreadyExists)
	}
	return docstore.Document{Ref: ref, Version: 1, Data: docstore.Clone(data), UpdatedAt: now}, nil
}

func (s *Store) Delete(ctx context.Context, ref docstore.Ref) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, ref.Collection, ref.ID)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", ref, mapErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting %s: %w", ref, mapErr(err))
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", ref, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) List(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}

	var (
		query string
		args  []any
	)
	if q.OrderBy != "" {
		query = fmt.Sprintf(`SELECT id, version, data, updated_at FROM documents
		WHERE collection = ?
		ORDER BY json_extract(data, ?) %[1]s, id %[1]s
		LIMIT ?`, dir)
		args = []any{collection, "$." + q.OrderBy, limit}
	} else {
		query = fmt.Sprintf(`SELECT id, version, data, updated_at FROM documents
		WHERE collection = ?
		ORDER BY id %s
		LIMIT ?`, dir)
		args = []any{collection, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", collection, mapErr(err))
	}
	defer rows.Close()

	var out []docstore.Document
	for rows.Next() {
		var (
			id        string
			version   int64
			raw       string
			updatedAt string
		)
		if err := rows.Scan(&id, &version, &raw, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", mapErr(err))
		}
		doc, err := decodeRow(docstore.Ref{Collection: collection, ID: id}, version, raw, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing %s: %w", collection, mapErr(err))
	}
	return out, nil
}

func (s *Store) RunTransaction(ctx context.Context, fn docstore.TxFunc) error {
	return s.policy.Run(ctx, func(ctx context.Context) error {
		tx := docstore.NewTxn(s.Get)
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return s.commit(ctx, tx)
	})
}

func (s *Store) commit(ctx context.Context, txn *docstore.Txn) error {
	writes := txn.Writes()
	if len(writes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", mapErr(err))
	}
	defer tx.Rollback()

	for _, read := range txn.Reads() {
		var version int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM documents WHERE collection = ? AND id = ?`,
			read.Ref.Collection, read.Ref.ID).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			version = 0
		} else if err != nil {
			return fmt.Errorf("validating %s: %w", read.Ref, mapErr(err))
		}
		if version != read.Version {
			return fmt.Errorf("%s changed since read: %w", read.Ref, domain.ErrConflict)
		}
	}

	now := domain.FormatTime(s.now())
	for _, w := range writes {
		var res sql.Result
		if w.Delete {
			res, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ? AND version = ?`,
				w.Ref.Collection, w.Ref.ID, w.Base.Version)
		} else {
			data, applyErr := w.Result()
			if applyErr != nil {
				return fmt.Errorf("applying %v to %s: %w", w.Ops, w.Ref, applyErr)
			}
			raw, encErr := docstore.Encode(data)
			if encErr != nil {
				return encErr
			}
			res, err = tx.ExecContext(ctx, `UPDATE documents SET version = version + 1, data = ?, updated_at = ?
			WHERE collection = ? AND id = ? AND version = ?`,
				string(raw), now, w.Ref.Collection, w.Ref.ID, w.Base.Version)
		}
		if err != nil {
			return fmt.Errorf("writing %s: %w", w.Ref, mapErr(err))
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("writing %s: %w", w.Ref, mapErr(err))
		} else if n == 0 {
			return fmt.Errorf("%s changed since read: %w", w.Ref, domain.ErrConflict)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapErr(err))
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func decodeRow(ref docstore.Ref, version int64, raw, updatedAt string) (docstore.Document, error) {
	data, err := docstore.Decode([]byte(raw))
	if err != nil {
		return docstore.Document{}, fmt.Errorf("%s: %w", ref, err)
	}
	at, _ := time.Parse(time.RFC3339Nano, updatedAt)
	return docstore.Document{Ref: ref, Version: version, Data: data, UpdatedAt: at}, nil
}

// mapErr classifies driver errors into the domain taxonomy. Lock contention
// is a conflict, so the transaction is retried; anything else means the
// database is unusable for this call.
func mapErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var serr *msqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
}
