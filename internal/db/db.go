package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/d20core/internal/model"
)

// PostgresStore хранит акторов как JSONB-документы в PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and returns a store.
func New(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (d *PostgresStore) Close() error {
	d.pool.Close()
	return nil
}

// Pool returns the underlying pgx pool (for goose migrations).
func (d *PostgresStore) Pool() *pgxpool.Pool {
	return d.pool
}

func (d *PostgresStore) LoadActor(ctx context.Context, id string) (*model.Actor, error) {
	var doc []byte
	err := d.pool.QueryRow(ctx, `SELECT doc FROM actors WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", id, ErrActorNotFound)
		}
		return nil, fmt.Errorf("querying actor %s: %w", id, err)
	}
	return decodeActor(id, doc)
}

func (d *PostgresStore) SaveActor(ctx context.Context, a *model.Actor) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding actor %s: %w", a.ID, err)
	}
	_, err = d.pool.Exec(ctx,
		`INSERT INTO actors (id, name, doc, updated_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, doc = EXCLUDED.doc, updated_at = now()`,
		a.ID, a.Name, doc,
	)
	if err != nil {
		return fmt.Errorf("saving actor %s: %w", a.ID, err)
	}
	return nil
}

// Commit applies cs under row locks in a single transaction.
func (d *PostgresStore) Commit(ctx context.Context, cs *model.Changeset) error {
	ids := cs.ActorIDs()
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("rollback failed", "actors", ids, "error", err)
		}
	}()

	for _, id := range ids {
		var doc []byte
		err := tx.QueryRow(ctx, `SELECT doc FROM actors WHERE id = $1 FOR UPDATE`, id).Scan(&doc)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("commit: %s: %w", id, ErrActorNotFound)
			}
			return fmt.Errorf("locking actor %s: %w", id, err)
		}
		a, out, err := applyDoc(id, doc, cs)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE actors SET name = $2, doc = $3, updated_at = now() WHERE id = $1`, id, a.Name, out); err != nil {
			return fmt.Errorf("updating actor %s: %w", id, err)
		}
	}

	ops, err := json.Marshal(cs.Ops)
	if err != nil {
		return fmt.Errorf("encoding ops: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO commit_log (actor_ids, ops) VALUES ($1, $2)`, ids, ops); err != nil {
		return fmt.Errorf("writing commit log: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (d *PostgresStore) ActorIDs(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `SELECT id FROM actors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing actors: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning actor ids: %w", err)
	}
	return ids, nil
}
