package model

import "strings"

// TransitionName is the operator-facing name of a lifecycle move.
type TransitionName string

const (
	TransitionApprove        TransitionName = "approve"
	TransitionReject         TransitionName = "reject"
	TransitionSuspend        TransitionName = "suspend"
	TransitionReactivate     TransitionName = "reactivate"
	TransitionBan            TransitionName = "ban"
	TransitionDelete         TransitionName = "delete"
	TransitionChangePlan     TransitionName = "changePlan"
	TransitionPutUnderReview TransitionName = "putUnderReview"
	TransitionToggleFeatured TransitionName = "toggleFeatured"
	TransitionAssign         TransitionName = "assign"
)

// Input is the operator-supplied data accompanying a transition.
type Input struct {
	// Reason justifies reject, ban and delete. It is optional elsewhere and
	// recorded when given.
	Reason string `json:"reason,omitempty"`
	// OperatorID identifies the acting staff member. It becomes assignedTo on
	// report assignment and the actor of the audit entry.
	OperatorID string `json:"operator_id,omitempty"`
	// PlanID and MonthlyFee are the target subscription for changePlan.
	PlanID     string  `json:"plan_id,omitempty"`
	MonthlyFee float64 `json:"monthly_fee,omitempty"`
}

// TrimmedReason returns the reason without surrounding whitespace.
func (in Input) TrimmedReason() string {
	return strings.TrimSpace(in.Reason)
}

// EventType names a notification sent to the notification dispatcher.
type EventType string

const (
	EventUserSuspended       EventType = "user_suspended"
	EventUserReactivated     EventType = "user_reactivated"
	EventUserCreated         EventType = "user_created"
	EventDealerApproved      EventType = "dealer_approved"
	EventDealerRejected      EventType = "dealer_rejected"
	EventDealerBanned        EventType = "dealer_banned"
	EventDealerDeleted       EventType = "dealer_deleted"
	EventSubscriptionChanged EventType = "subscription_changed"
	EventListingApproved     EventType = "listing_approved"
	EventListingRejected     EventType = "listing_rejected"
	EventListingSuspended    EventType = "listing_suspended"
	EventListingReactivated  EventType = "listing_reactivated"
	EventListingUnderReview  EventType = "listing_under_review"
	EventListingDeleted      EventType = "listing_deleted"
)
