package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/udisondev/d20core/internal/model"
)

// SQLiteStore is a single-file Store on modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	// one writer; serializes commits
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging sqlite %s: %w", path, err)
	}
	if err := RunMigrations(ctx, DialectSQLite, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &SQLiteStore{db: sqlDB}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadActor(ctx context.Context, id string) (*model.Actor, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM actors WHERE id = ?`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", id, ErrActorNotFound)
		}
		return nil, fmt.Errorf("querying actor %s: %w", id, err)
	}
	return decodeActor(id, []byte(doc))
}

func (s *SQLiteStore) SaveActor(ctx context.Context, a *model.Actor) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding actor %s: %w", a.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO actors (id, name, doc, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, doc = excluded.doc, updated_at = CURRENT_TIMESTAMP`,
		a.ID, a.Name, string(doc),
	)
	if err != nil {
		return fmt.Errorf("saving actor %s: %w", a.ID, err)
	}
	return nil
}

// Commit applies cs in a single transaction.
func (s *SQLiteStore) Commit(ctx context.Context, cs *model.Changeset) error {
	ids := cs.ActorIDs()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Error("rollback failed", "actors", ids, "error", err)
		}
	}()

	for _, id := range ids {
		var doc string
		err := tx.QueryRowContext(ctx, `SELECT doc FROM actors WHERE id = ?`, id).Scan(&doc)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("commit: %s: %w", id, ErrActorNotFound)
			}
			return fmt.Errorf("reading actor %s: %w", id, err)
		}
		a, out, err := applyDoc(id, []byte(doc), cs)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE actors SET name = ?, doc = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, a.Name, string(out), id); err != nil {
			return fmt.Errorf("updating actor %s: %w", id, err)
		}
	}

	idsDoc, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encoding actor ids: %w", err)
	}
	ops, err := json.Marshal(cs.Ops)
	if err != nil {
		return fmt.Errorf("encoding ops: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO commit_log (actor_ids, ops) VALUES (?, ?)`, string(idsDoc), string(ops)); err != nil {
		return fmt.Errorf("writing commit log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ActorIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM actors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing actors: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning actor id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CommitCount returns the number of logged commits.
func (s *SQLiteStore) CommitCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM commit_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting commits: %w", err)
	}
	return n, nil
}
