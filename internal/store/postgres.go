package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
)

// PostgresStore keeps every entity as a JSONB document in the entities table,
// with status and last_updated lifted into columns for conditional updates.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, kind model.Kind, id uuid.UUID) (model.Entity, error) {
	var data []byte
	err := s.db.QueryRow(ctx,
		`SELECT data FROM entities WHERE kind = $1 AND id = $2`, kind, id,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select %s %s: %w", kind, id, err)
	}
	return model.Decode(kind, data)
}

func (s *PostgresStore) List(ctx context.Context, kind model.Kind) ([]model.Entity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT data FROM entities WHERE kind = $1 ORDER BY created_at, id`, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		ent, err := model.Decode(kind, data)
		if err != nil {
			return nil, err
		}
		out = append(out, ent)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, ent model.Entity) (model.Entity, error) {
	ent = prepareCreate(ent, time.Now)
	data, err := model.Encode(ent)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO entities (kind, id, status, data, created_at, last_updated)
		VALUES ($1, $2, $3, $4, now(), $5)`,
		ent.Kind(), ent.EntityID(), ent.CurrentStatus(), data, ent.Touched(),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, ErrExists
	}
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", ent.Kind(), err)
	}
	return ent, nil
}

func (s *PostgresStore) Apply(ctx context.Context, cmd Command) (model.Entity, error) {
	if err := checkCommand(cmd, true); err != nil {
		return nil, err
	}
	data, err := model.Encode(cmd.Entity)
	if err != nil {
		return nil, err
	}
	var stored []byte
	err = s.db.QueryRow(ctx, `
		UPDATE entities SET status = $3, data = $4, last_updated = $5
		WHERE kind = $1 AND id = $2 AND status = $6
		  AND ($7::timestamptz IS NULL OR last_updated = $7)
		RETURNING data`,
		cmd.Kind, cmd.ID, cmd.Entity.CurrentStatus(), data, cmd.Entity.Touched(),
		cmd.ExpectedStatus, expectedStamp(cmd),
	).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missOrStale(ctx, cmd)
	}
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", cmd.Kind, cmd.ID, err)
	}
	return model.Decode(cmd.Kind, stored)
}

func (s *PostgresStore) Remove(ctx context.Context, cmd Command) error {
	if err := checkCommand(cmd, false); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		DELETE FROM entities
		WHERE kind = $1 AND id = $2 AND status = $3
		  AND ($4::timestamptz IS NULL OR last_updated = $4)`,
		cmd.Kind, cmd.ID, cmd.ExpectedStatus, expectedStamp(cmd),
	)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", cmd.Kind, cmd.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrStale(ctx, cmd)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// missOrStale distinguishes a vanished row from a lost race after a
// conditional statement matched nothing.
func (s *PostgresStore) missOrStale(ctx context.Context, cmd Command) error {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM entities WHERE kind = $1 AND id = $2)`, cmd.Kind, cmd.ID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check %s %s: %w", cmd.Kind, cmd.ID, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStale
}

func expectedStamp(cmd Command) *time.Time {
	if cmd.ExpectedUpdatedAt.IsZero() {
		return nil
	}
	t := cmd.ExpectedUpdatedAt.UTC()
	return &t
}
