package model

import (
	"time"

	"github.com/google/uuid"
)

// ListingStatus is the moderation state of a vehicle listing.
type ListingStatus string

const (
	ListingPending     ListingStatus = "pending"
	ListingApproved    ListingStatus = "approved"
	ListingRejected    ListingStatus = "rejected"
	ListingUnderReview ListingStatus = "under_review"
	ListingSuspended   ListingStatus = "suspended"
)

// Visibility controls whether a listing is shown publicly.
type Visibility string

const (
	VisibilityActive    Visibility = "active"
	VisibilityInactive  Visibility = "inactive"
	VisibilitySuspended Visibility = "suspended"
)

// Vehicle describes the car being sold.
type Vehicle struct {
	Make     string  `json:"make"`
	Model    string  `json:"model"`
	Year     int     `json:"year"`
	Mileage  int     `json:"mileage"`
	Price    float64 `json:"price"`
	BodyType string  `json:"body_type,omitempty"`
}

// Listing is a vehicle advertisement owned by a dealer.
type Listing struct {
	ID            uuid.UUID     `json:"id"`
	DealerID      uuid.UUID     `json:"dealer_id"`
	Title         string        `json:"title"`
	Vehicle       Vehicle       `json:"vehicle"`
	ListingStatus ListingStatus `json:"listing_status"`
	Visibility    Visibility    `json:"visibility"`
	Featured      bool          `json:"featured"`
	Views         int           `json:"views"`
	Inquiries     int           `json:"inquiries"`
	// DealerName and DealerEmail are denormalised for notifications.
	DealerName   string    `json:"dealer_name,omitempty"`
	DealerEmail  string    `json:"dealer_email,omitempty"`
	StatusReason string    `json:"status_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastUpdated  time.Time `json:"last_updated"`
}

func (l *Listing) Kind() Kind { return KindListing }
func (l *Listing) EntityID() uuid.UUID { return l.ID }
func (l *Listing) CurrentStatus() string { return string(l.ListingStatus) }
func (l *Listing) Touched() time.Time { return l.LastUpdated }
func (l *Listing) Touch(t time.Time) { l.LastUpdated = t }
func (l *Listing) moderated() {}

func (l *Listing) Clone() Entity {
	cp := *l
	return &cp
}

// Recipient addresses listing notifications to the owning dealer.
func (l *Listing) Recipient() Recipient {
	return Recipient{ID: l.DealerID.String(), Name: l.DealerName, Email: l.DealerEmail}
}

// SubType groups listings by owning dealer.
func (l *Listing) SubType() string { return l.DealerID.String() }

// Consistent reports whether the visibility and featured flags agree with
// the listing status.
func (l *Listing) Consistent() bool {
	if l.Visibility == VisibilityActive && l.ListingStatus != ListingApproved {
		return false
	}
	if l.Featured && l.ListingStatus != ListingApproved {
		return false
	}
	return true
}
