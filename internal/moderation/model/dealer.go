package model

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus is the lifecycle state of a dealer account.
type AccountStatus string

const (
	DealerPending   AccountStatus = "pending"
	DealerApproved  AccountStatus = "approved"
	DealerSuspended AccountStatus = "suspended"
	DealerRejected  AccountStatus = "rejected"
	DealerBanned    AccountStatus = "banned"
)

// VerificationStatus tracks the business-document check of a dealer.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFlagged  VerificationStatus = "flagged"
	VerificationRejected VerificationStatus = "rejected"
)

// Subscription is the billing plan a dealer is on.
type Subscription struct {
	PlanID     string  `json:"plan_id"`
	MonthlyFee float64 `json:"monthly_fee"`
}

// Performance holds counters maintained by the marketplace, read-only here.
type Performance struct {
	Listings int     `json:"listings"`
	Sales    int     `json:"sales"`
	Rating   float64 `json:"rating"`
}

// Dealer is a business account that publishes listings.
type Dealer struct {
	ID                   uuid.UUID          `json:"id"`
	Name                 string             `json:"name"`
	ContactName          string             `json:"contact_name"`
	Email                string             `json:"email"`
	Phone                string             `json:"phone,omitempty"`
	BusinessRegistration string             `json:"business_registration"`
	AccountStatus        AccountStatus      `json:"account_status"`
	VerificationStatus   VerificationStatus `json:"verification_status"`
	Subscription         Subscription       `json:"subscription"`
	Performance          Performance        `json:"performance"`
	StatusReason         string             `json:"status_reason,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	LastUpdated          time.Time          `json:"last_updated"`
}

func (d *Dealer) Kind() Kind { return KindDealer }
func (d *Dealer) EntityID() uuid.UUID { return d.ID }
func (d *Dealer) CurrentStatus() string { return string(d.AccountStatus) }
func (d *Dealer) Touched() time.Time { return d.LastUpdated }
func (d *Dealer) Touch(t time.Time) { d.LastUpdated = t }
func (d *Dealer) moderated() {}

// Clone returns a deep copy; Dealer has no reference fields.
func (d *Dealer) Clone() Entity {
	cp := *d
	return &cp
}

// Recipient addresses notifications to the dealer's contact email.
func (d *Dealer) Recipient() Recipient {
	name := d.ContactName
	if name == "" {
		name = d.Name
	}
	return Recipient{ID: d.ID.String(), Name: name, Email: d.Email}
}

// SubType groups dealers by subscription plan.
func (d *Dealer) SubType() string {
	if d.Subscription.PlanID == "" {
		return "none"
	}
	return d.Subscription.PlanID
}
