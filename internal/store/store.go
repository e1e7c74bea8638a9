// Package store persists moderated entities. Every write is a conditional
// update: it names the status and lastUpdated stamp it was computed from and
// is rejected with ErrStale when the stored record has moved on.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
)

var (
	// ErrNotFound is returned when no entity has the requested kind and id.
	ErrNotFound = errors.New("entity not found")
	// ErrStale is returned when a conditional write loses a race.
	ErrStale = errors.New("entity changed since it was read")
	// ErrExists is returned by Create when the id is taken.
	ErrExists = errors.New("entity already exists")
)

// Command is one transition write.
type Command struct {
	Kind              model.Kind           `json:"kind"`
	ID                uuid.UUID            `json:"id"`
	Action            model.TransitionName `json:"action"`
	Status            string               `json:"status"`
	ExpectedStatus    string               `json:"expected_status"`
	ExpectedUpdatedAt time.Time            `json:"expected_updated_at"`
	Reason            string               `json:"reason,omitempty"`
	// Entity is the full new snapshot. Removals may leave it nil.
	Entity model.Entity `json:"-"`
}

// Store is the persistence contract the moderation service depends on.
type Store interface {
	Get(ctx context.Context, kind model.Kind, id uuid.UUID) (model.Entity, error)
	List(ctx context.Context, kind model.Kind) ([]model.Entity, error)
	Create(ctx context.Context, ent model.Entity) (model.Entity, error)
	// Apply writes cmd.Entity if the stored record still matches the
	// expectation and returns the authoritative result.
	Apply(ctx context.Context, cmd Command) (model.Entity, error)
	// Remove deletes the record under the same condition as Apply.
	Remove(ctx context.Context, cmd Command) error
	Ping(ctx context.Context) error
}

// matches reports whether stored still satisfies the command's expectation.
// A zero ExpectedUpdatedAt skips the timestamp comparison.
func matches(stored model.Entity, cmd Command) bool {
	if stored.CurrentStatus() != cmd.ExpectedStatus {
		return false
	}
	if cmd.ExpectedUpdatedAt.IsZero() {
		return true
	}
	return stored.Touched().Equal(cmd.ExpectedUpdatedAt)
}

func checkCommand(cmd Command, needEntity bool) error {
	if !cmd.Kind.Valid() {
		return &model.ErrValidation{Msg: "unknown entity kind " + string(cmd.Kind)}
	}
	if cmd.ID == uuid.Nil {
		return &model.ErrValidation{Msg: "entity id is required"}
	}
	if needEntity {
		if cmd.Entity == nil {
			return &model.ErrValidation{Msg: "entity snapshot is required"}
		}
		if cmd.Entity.Kind() != cmd.Kind || cmd.Entity.EntityID() != cmd.ID {
			return &model.ErrValidation{Msg: "entity snapshot does not match command"}
		}
	}
	return nil
}
