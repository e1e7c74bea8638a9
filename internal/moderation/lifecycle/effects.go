package lifecycle

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
)

// Effect is an I/O intent produced by the engine and executed by its caller.
// The only implementations are Persist and Notify.
type Effect interface {
	effect()
}

// Persist asks the store to write the new snapshot, or to remove the entity
// when Delete is set. ExpectedStatus and ExpectedUpdatedAt carry the state the
// transition was computed from so the store can reject stale writes.
type Persist struct {
	Kind              model.Kind
	ID                uuid.UUID
	Action            model.TransitionName
	Status            string
	ExpectedStatus    string
	ExpectedUpdatedAt time.Time
	Reason            string
	Entity            model.Entity
	Delete            bool
}

// Notify asks the dispatcher to deliver an event about the entity.
type Notify struct {
	Event     model.EventType
	Kind      model.Kind
	EntityID  uuid.UUID
	Recipient model.Recipient
	Data      map[string]string
	Reason    string
}

func (Persist) effect() {}
func (Notify) effect() {}

// Outcome is the result of a successful Apply.
type Outcome struct {
	Transition model.TransitionName
	// Previous is the untouched input snapshot.
	Previous model.Entity
	// Entity is the new snapshot. For removals it is the final state before
	// deletion.
	Entity  model.Entity
	Removed bool
	Effects []Effect
}

// Persist returns the outcome's persist intent. Every outcome carries exactly one.
func (o *Outcome) Persist() Persist {
	for _, eff := range o.Effects {
		if p, ok := eff.(Persist); ok {
			return p
		}
	}
	return Persist{}
}

// Notification returns the notify intent, if the transition emits one.
func (o *Outcome) Notification() (Notify, bool) {
	for _, eff := range o.Effects {
		if n, ok := eff.(Notify); ok {
			return n, true
		}
	}
	return Notify{}, false
}

// notifyPayload extracts the fields the dispatcher templates need.
func notifyPayload(ent model.Entity) map[string]string {
	switch v := ent.(type) {
	case *model.Dealer:
		return map[string]string{
			"dealer_name":           v.Name,
			"business_registration": v.BusinessRegistration,
			"plan_id":               v.Subscription.PlanID,
			"account_status":        string(v.AccountStatus),
		}
	case *model.Listing:
		return map[string]string{
			"title":          v.Title,
			"make":           v.Vehicle.Make,
			"model":          v.Vehicle.Model,
			"dealer_id":      v.DealerID.String(),
			"listing_status": string(v.ListingStatus),
		}
	case *model.Report:
		return map[string]string{
			"target_type":  string(v.Target.Type),
			"target_title": v.Target.Title,
			"status":       string(v.Status),
		}
	}
	return nil
}
