// Package model holds the marketplace entities that moderation operates on,
// the operator input that accompanies a transition and the error taxonomy
// returned by the lifecycle engine.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Kind names an entity family. It doubles as the path segment used by the
// persistence store contract (/entities/{kind}/{id}).
type Kind string

const (
	KindDealer  Kind = "dealer"
	KindListing Kind = "listing"
	KindReport  Kind = "report"
)

// Kinds lists every entity kind in a stable order.
var Kinds = []Kind{KindDealer, KindListing, KindReport}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDealer, KindListing, KindReport:
		return true
	}
	return false
}

// Recipient identifies who a notification about an entity is addressed to.
type Recipient struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Entity is the closed set of moderated records: *Dealer, *Listing and *Report.
// The unexported marker keeps other packages from adding variants.
type Entity interface {
	Kind() Kind
	EntityID() uuid.UUID
	// CurrentStatus is the primary lifecycle status used for rule matching.
	CurrentStatus() string
	// Touched is the lastUpdated stamp; stores use it as a concurrency token.
	Touched() time.Time
	Touch(t time.Time)
	Clone() Entity
	Recipient() Recipient
	// SubType is the grouping key used by bulk summaries.
	SubType() string

	moderated()
}
