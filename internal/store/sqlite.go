package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteStore is a single-file store for one console process. Reads are
// served from memory; every successful write is mirrored into an entities
// table so the working set survives restarts.
type SQLiteStore struct {
	*MemoryStore
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at path and loads it.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "console.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entities (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		data BLOB NOT NULL,
		UNIQUE (kind, id)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create entities table: %w", err)
	}
	s := &SQLiteStore{MemoryStore: NewMemoryStore(), db: db}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) load() error {
	rows, err := s.db.Query(`SELECT kind, data FROM entities ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("select entities: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			kind string
			data []byte
		)
		if err := rows.Scan(&kind, &data); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		ent, err := model.Decode(model.Kind(kind), data)
		if err != nil {
			return err
		}
		if _, err := s.MemoryStore.Create(context.Background(), ent); err != nil {
			return fmt.Errorf("load %s %s: %w", kind, ent.EntityID(), err)
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) Create(ctx context.Context, ent model.Entity) (model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created, err := s.MemoryStore.Create(ctx, ent)
	if err != nil {
		return nil, err
	}
	if err := s.write(ctx, created); err != nil {
		_ = s.MemoryStore.Remove(ctx, Command{
			Kind:           created.Kind(),
			ID:             created.EntityID(),
			ExpectedStatus: created.CurrentStatus(),
		})
		return nil, err
	}
	return created, nil
}

func (s *SQLiteStore) Apply(ctx context.Context, cmd Command) (model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, err := s.MemoryStore.Get(ctx, cmd.Kind, cmd.ID)
	if err != nil {
		return nil, err
	}
	out, err := s.MemoryStore.Apply(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if err := s.write(ctx, out); err != nil {
		s.MemoryStore.restore(prev)
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, cmd Command) error {
	if err := checkCommand(cmd, false); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.MemoryStore.Get(ctx, cmd.Kind, cmd.ID)
	if err != nil {
		return err
	}
	if !matches(stored, cmd) {
		return ErrStale
	}
	// The row goes first so a failed delete leaves both copies in place.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM entities WHERE kind = ? AND id = ?`, string(cmd.Kind), cmd.ID.String(),
	); err != nil {
		return fmt.Errorf("delete %s %s: %w", cmd.Kind, cmd.ID, err)
	}
	return s.MemoryStore.Remove(ctx, cmd)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) write(ctx context.Context, ent model.Entity) error {
	data, err := model.Encode(ent)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (kind, id, data) VALUES (?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET data = excluded.data`,
		string(ent.Kind()), ent.EntityID().String(), data,
	)
	if err != nil {
		return fmt.Errorf("write %s %s: %w", ent.Kind(), ent.EntityID(), err)
	}
	return nil
}
