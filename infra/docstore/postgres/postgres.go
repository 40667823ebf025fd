// Package postgres is a docstore.Store backed by a PostgreSQL jsonb table.
// Committed changes are broadcast with LISTEN/NOTIFY, so every server
// sharing the database wakes its subscriptions.
package postgres

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/CrestNiraj12/rantfeed/domain"
	"github.com/CrestNiraj12/rantfeed/infra/docstore"
)

// Channel is the NOTIFY channel written on every committed change.
const Channel = "rantfeed_documents"

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	version    BIGINT      NOT NULL,
	data       JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (collection, id)
);

CREATE OR REPLACE FUNCTION rantfeed_notify_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('` + Channel + `', TG_OP);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS documents_changed ON documents;
CREATE TRIGGER documents_changed
	AFTER INSERT OR UPDATE OR DELETE ON documents
	FOR EACH STATEMENT EXECUTE FUNCTION rantfeed_notify_change();
`

// Options configures the connection pool.
type Options struct {
	DSN      string
	MaxConns int32
	Policy   docstore.RetryPolicy
}

// Store is a PostgreSQL document store.
type Store struct {
	pool   *pgxpool.Pool
	policy docstore.RetryPolicy
	log    *zap.Logger

	// One LISTEN connection outside the pool serves all subscribers.
	listenCfg  *pgx.ConnConfig
	listenOnce sync.Once
	listening  bool
	hub        *hub
	listenCtx  context.Context
	stop       context.CancelFunc
	stopped    chan struct{}
}

var (
	_ docstore.Store    = (*Store)(nil)
	_ docstore.Notifier = (*Store)(nil)
)

// Open connects to the database and applies the schema.
func Open(ctx context.Context, opts Options, log *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	cfg.ConnConfig.StatementCacheCapacity = 256

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", mapErr(err))
	}

	s := newStore(pool, opts.Policy, log)
	s.listenCfg = cfg.ConnConfig.Copy()
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	log.Info("postgres store ready", zap.Int32("max_conns", cfg.MaxConns))
	return s, nil
}

func newStore(pool *pgxpool.Pool, policy docstore.RetryPolicy, log *zap.Logger) *Store {
	ctx, stop := context.WithCancel(context.Background())
	return &Store{
		pool:      pool,
		policy:    policy,
		log:       log,
		hub:       newHub(),
		listenCtx: ctx,
		stop:      stop,
		stopped:   make(chan struct{}),
	}
}

// Migrate creates the documents table and its change trigger.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema, pgx.QueryExecModeSimpleProtocol); err != nil {
		return fmt.Errorf("migrate documents: %w", mapErr(err))
	}
	return nil
}

func (s *Store) Get(ctx context.Context, ref docstore.Ref) (docstore.Document, error) {
	var (
		version   int64
		raw       string
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT version, data::text, updated_at FROM documents WHERE collection = $1 AND id = $2`,
		ref.Collection, ref.ID,
	).Scan(&version, &raw, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Document{}, fmt.Errorf("%s: %w", ref, domain.ErrNotFound)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("reading %s: %w", ref, mapErr(err))
	}
	return decodeRow(ref, version, raw, updatedAt)
}

func (s *Store) Create(ctx context.Context, ref docstore.Ref, data map[string]any) (docstore.Document, error) {
	raw, err := docstore.Encode(data)
	if err != nil {
		return docstore.Document{}, err
	}
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, version, data, updated_at)
		VALUES ($1, $2, 1, $3::jsonb, $4)
		ON CONFLICT (collection, id) DO NOTHING`,
		ref.Collection, ref.ID, string(raw), now,
	)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("creating %s: %w", ref, mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return docstore.Document{}, fmt.Errorf("%s: %w", ref, domain.ErrAlreadyExists)
	}
	return docstore.Document{Ref: ref, Version: 1, Data: docstore.Clone(data), UpdatedAt: now}, nil
}

func (s *Store) Delete(ctx context.Context, ref docstore.Ref) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, ref.Collection, ref.ID)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", ref, mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", ref, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) List(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}

	var (
		rows pgx.Rows
		err  error
	)
	if q.OrderBy != "" {
		rows, err = s.pool.Query(ctx, fmt.Sprintf(`SELECT id, version, data::text, updated_at FROM documents
			WHERE collection = $1
			ORDER BY data->>$2 %[1]s, id %[1]s
			LIMIT $3`, dir), collection, q.OrderBy, limit)
	} else {
		rows, err = s.pool.Query(ctx, fmt.Sprintf(`SELECT id, version, data::text, updated_at FROM documents
			WHERE collection = $1
			ORDER BY id %s
			LIMIT $2`, dir), collection, limit)
	}
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
			updatedAt time.Time
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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", mapErr(err))
	}
	defer tx.Rollback(ctx)

	// Lock rows in a stable order so concurrent commits cannot deadlock.
	reads := txn.Reads()
	slices.SortFunc(reads, func(a, b docstore.Document) int {
		return cmp.Or(cmp.Compare(a.Ref.Collection, b.Ref.Collection), cmp.Compare(a.Ref.ID, b.Ref.ID))
	})
	for _, read := range reads {
		var version int64
		err := tx.QueryRow(ctx,
			`SELECT version FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
			read.Ref.Collection, read.Ref.ID,
		).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			version = 0
		} else if err != nil {
			return fmt.Errorf("validating %s: %w", read.Ref, mapErr(err))
		}
		if version != read.Version {
			return fmt.Errorf("%s changed since read: %w", read.Ref, domain.ErrConflict)
		}
	}

	now := time.Now().UTC()
	for _, w := range writes {
		var tag pgconn.CommandTag
		if w.Delete {
			tag, err = tx.Exec(ctx,
				`DELETE FROM documents WHERE collection = $1 AND id = $2 AND version = $3`,
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
			tag, err = tx.Exec(ctx,
				`UPDATE documents SET version = version + 1, data = $1::jsonb, updated_at = $2
				WHERE collection = $3 AND id = $4 AND version = $5`,
				string(raw), now, w.Ref.Collection, w.Ref.ID, w.Base.Version)
		}
		if err != nil {
			return fmt.Errorf("writing %s: %w", w.Ref, mapErr(err))
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%s changed since read: %w", w.Ref, domain.ErrConflict)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", mapErr(err))
	}
	return nil
}

// Notify implements docstore.Notifier. The first call starts the store's
// listener; every subscriber shares it. The channel is closed when ctx
// ends or the store is closed.
func (s *Store) Notify(ctx context.Context) <-chan struct{} {
	s.listenOnce.Do(func() {
		s.listening = true
		go s.listenLoop(s.listenCtx)
	})
	return s.hub.subscribe(ctx)
}

// listenLoop keeps a LISTEN connection open until ctx ends, reconnecting
// after failures.
func (s *Store) listenLoop(ctx context.Context) {
	defer close(s.stopped)
	for {
		err := s.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("postgres listener lost, reconnecting", zap.Error(err))
		// Changes may have been missed while disconnected.
		s.hub.broadcast()

		timer := time.NewTimer(time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Store) listen(ctx context.Context) error {
	conn, err := pgx.ConnectConfig(ctx, s.listenCfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel, pgx.QueryExecModeSimpleProtocol); err != nil {
		return err
	}
	for {
		if _, err := conn.WaitForNotification(ctx); err != nil {
			return err
		}
		s.hub.broadcast()
	}
}

// Close stops the listener, ends all subscriptions and closes the pool.
func (s *Store) Close() error {
	s.stop()
	// Later Notify calls must not start a listener.
	s.listenOnce.Do(func() {})
	if s.listening {
		<-s.stopped
	}
	s.hub.close()
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func decodeRow(ref docstore.Ref, version int64, raw string, updatedAt time.Time) (docstore.Document, error) {
	data, err := docstore.Decode([]byte(raw))
	if err != nil {
		return docstore.Document{}, fmt.Errorf("%s: %w", ref, err)
	}
	return docstore.Document{Ref: ref, Version: version, Data: data, UpdatedAt: updatedAt}, nil
}

// mapErr maps serialization failures and deadlocks to domain.ErrConflict and
// everything else to domain.ErrUnavailable.
func mapErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
}
