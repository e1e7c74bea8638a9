package model

import (
	"time"

	"github.com/google/uuid"
)

// Severity ranks how urgent a report is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ReportStatus is the lifecycle state of an abuse report.
type ReportStatus string

const (
	ReportPending     ReportStatus = "pending"
	ReportUnderReview ReportStatus = "under_review"
	ReportResolved    ReportStatus = "resolved"
)

// TargetType is the kind of thing a report was filed against.
type TargetType string

const (
	TargetListing TargetType = "listing"
	TargetUser    TargetType = "user"
	TargetDealer  TargetType = "dealer"
	TargetComment TargetType = "comment"
)

// Resolution actions recorded on a resolved report.
const (
	ResolutionActionTaken = "action_taken"
	ResolutionDismissed   = "dismissed"
)

// ReportTarget references the reported item.
type ReportTarget struct {
	Type  TargetType `json:"type"`
	ID    string     `json:"id"`
	Title string     `json:"title"`
}

// Reporter is the user who filed the report.
type Reporter struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Resolution is filled in once a report reaches resolved.
type Resolution struct {
	Action     string    `json:"action"`
	Note       string    `json:"note,omitempty"`
	ResolvedBy string    `json:"resolved_by,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Report is a user-filed abuse report awaiting moderation.
type Report struct {
	ID           uuid.UUID    `json:"id"`
	Target       ReportTarget `json:"target"`
	Reporter     Reporter     `json:"reporter"`
	Severity     Severity     `json:"severity"`
	Status       ReportStatus `json:"status"`
	AssignedTo   *string      `json:"assigned_to,omitempty"`
	Reason       string       `json:"reason"`
	Category     string       `json:"category"`
	Description  string       `json:"description,omitempty"`
	Resolution   *Resolution  `json:"resolution,omitempty"`
	DateReported time.Time    `json:"date_reported"`
	LastUpdated  time.Time    `json:"last_updated"`
}

func (r *Report) Kind() Kind { return KindReport }
func (r *Report) EntityID() uuid.UUID { return r.ID }
func (r *Report) CurrentStatus() string { return string(r.Status) }
func (r *Report) Touched() time.Time { return r.LastUpdated }
func (r *Report) Touch(t time.Time) { r.LastUpdated = t }
func (r *Report) moderated() {}

// Clone copies the report including its pointer fields.
func (r *Report) Clone() Entity {
	cp := *r
	if r.AssignedTo != nil {
		a := *r.AssignedTo
		cp.AssignedTo = &a
	}
	if r.Resolution != nil {
		res := *r.Resolution
		cp.Resolution = &res
	}
	return &cp
}

func (r *Report) Recipient() Recipient {
	return Recipient{ID: r.Reporter.ID, Name: r.Reporter.Name, Email: r.Reporter.Email}
}

// SubType groups reports by the type of their target.
func (r *Report) SubType() string { return string(r.Target.Type) }

// Assignee returns the assigned operator or "".
func (r *Report) Assignee() string {
	if r.AssignedTo == nil {
		return ""
	}
	return *r.AssignedTo
}
