package lifecycle

import (
	"time"

	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
)

// State describes one status value of a machine.
type State struct {
	Terminal bool
}

// Rule is one legal move. From lists the statuses it applies to; an empty
// From means any non-terminal status. When narrows the match further on the
// entity's shape; a rule whose When fails does not match at all.
type Rule struct {
	Transition model.TransitionName
	From       []string
	When       func(ent model.Entity, in model.Input) bool
	Guards     []Guard
	Mutate     func(ent model.Entity, in model.Input, now time.Time)
	Event      model.EventType
	Removes    bool
	// Note is a human description used by Describe.
	Note string
}

// Machine is the status table and rule list of one entity kind.
type Machine struct {
	Kind   model.Kind
	States map[string]State
	Rules  []Rule
}

func (m *Machine) terminal(status string) bool {
	return m.States[status].Terminal
}

func (m *Machine) declared(status string) bool {
	_, ok := m.States[status]
	return ok
}

// match returns the first rule for name that applies to ent.
func (m *Machine) match(ent model.Entity, name model.TransitionName, in model.Input) (*Rule, bool) {
	status := ent.CurrentStatus()
	for i := range m.Rules {
		r := &m.Rules[i]
		if r.Transition != name {
			continue
		}
		if len(r.From) > 0 && !contains(r.From, status) {
			continue
		}
		if r.When != nil && !r.When(ent, in) {
			continue
		}
		return r, true
	}
	return nil, false
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func statuses[S ~string](values ...S) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func onDealer(fn func(d *model.Dealer, in model.Input, now time.Time)) func(model.Entity, model.Input, time.Time) {
	return func(ent model.Entity, in model.Input, now time.Time) { fn(ent.(*model.Dealer), in, now) }
}

func onListing(fn func(l *model.Listing, in model.Input, now time.Time)) func(model.Entity, model.Input, time.Time) {
	return func(ent model.Entity, in model.Input, now time.Time) { fn(ent.(*model.Listing), in, now) }
}

func onReport(fn func(r *model.Report, in model.Input, now time.Time)) func(model.Entity, model.Input, time.Time) {
	return func(ent model.Entity, in model.Input, now time.Time) { fn(ent.(*model.Report), in, now) }
}

// DefaultMachines returns the marketplace transition tables.
func DefaultMachines() map[model.Kind]*Machine {
	return map[model.Kind]*Machine{
		model.KindDealer:  dealerMachine(),
		model.KindListing: listingMachine(),
		model.KindReport:  reportMachine(),
	}
}

func dealerMachine() *Machine {
	return &Machine{
		Kind: model.KindDealer,
		States: map[string]State{
			string(model.DealerPending):   {},
			string(model.DealerApproved):  {},
			string(model.DealerSuspended): {},
			string(model.DealerRejected):  {Terminal: true},
			string(model.DealerBanned):    {Terminal: true},
		},
		Rules: []Rule{
			{
				Transition: model.TransitionApprove,
				From:       statuses(model.DealerPending),
				Guards:     []Guard{requireVerificationPending},
				Mutate: onDealer(func(d *model.Dealer, _ model.Input, _ time.Time) {
					d.AccountStatus = model.DealerApproved
					d.VerificationStatus = model.VerificationVerified
					d.StatusReason = ""
				}),
				Event: model.EventDealerApproved,
				Note:  "approved / verified",
			},
			{
				Transition: model.TransitionReject,
				From:       statuses(model.DealerPending),
				Guards:     []Guard{requireReason},
				Mutate: onDealer(func(d *model.Dealer, in model.Input, _ time.Time) {
					d.AccountStatus = model.DealerRejected
					d.VerificationStatus = model.VerificationRejected
					d.StatusReason = in.TrimmedReason()
				}),
				Event: model.EventDealerRejected,
				Note:  "rejected (terminal)",
			},
			{
				Transition: model.TransitionSuspend,
				From:       statuses(model.DealerApproved),
				Mutate: onDealer(func(d *model.Dealer, in model.Input, _ time.Time) {
					d.AccountStatus = model.DealerSuspended
					d.StatusReason = in.TrimmedReason()
				}),
				Event: model.EventUserSuspended,
				Note:  "suspended",
			},
			{
				Transition: model.TransitionReactivate,
				From:       statuses(model.DealerSuspended),
				Mutate: onDealer(func(d *model.Dealer, _ model.Input, _ time.Time) {
					d.AccountStatus = model.DealerApproved
					d.StatusReason = ""
				}),
				Event: model.EventUserReactivated,
				Note:  "approved",
			},
			{
				Transition: model.TransitionChangePlan,
				From:       statuses(model.DealerApproved),
				// Moving to the plan the dealer is already on is not a move.
				When: func(ent model.Entity, in model.Input) bool {
					sub := ent.(*model.Dealer).Subscription
					return in.PlanID == "" || sub.PlanID != in.PlanID || sub.MonthlyFee != in.MonthlyFee
				},
				Guards: []Guard{requirePlan},
				Mutate: onDealer(func(d *model.Dealer, in model.Input, _ time.Time) {
					d.Subscription = model.Subscription{PlanID: in.PlanID, MonthlyFee: in.MonthlyFee}
				}),
				Event: model.EventSubscriptionChanged,
				Note:  "subscription replaced",
			},
			{
				Transition: model.TransitionBan,
				Guards:     []Guard{requireReason},
				Mutate: onDealer(func(d *model.Dealer, in model.Input, _ time.Time) {
					d.AccountStatus = model.DealerBanned
					d.StatusReason = in.TrimmedReason()
				}),
				Event: model.EventDealerBanned,
				Note:  "banned (terminal)",
			},
			{
				Transition: model.TransitionDelete,
				Guards:     []Guard{requireReason},
				Mutate: onDealer(func(d *model.Dealer, in model.Input, _ time.Time) {
					d.StatusReason = in.TrimmedReason()
				}),
				Event:   model.EventDealerDeleted,
				Removes: true,
				Note:    "removed",
			},
		},
	}
}

func listingMachine() *Machine {
	reviewable := statuses(model.ListingPending, model.ListingUnderReview)
	return &Machine{
		Kind: model.KindListing,
		States: map[string]State{
			string(model.ListingPending):     {},
			string(model.ListingApproved):    {},
			string(model.ListingRejected):    {},
			string(model.ListingUnderReview): {},
			string(model.ListingSuspended):   {},
		},
		Rules: []Rule{
			{
				Transition: model.TransitionApprove,
				From:       reviewable,
				Guards:     []Guard{requireDealerApproved},
				Mutate: onListing(func(l *model.Listing, _ model.Input, _ time.Time) {
					l.ListingStatus = model.ListingApproved
					l.Visibility = model.VisibilityActive
					l.StatusReason = ""
				}),
				Event: model.EventListingApproved,
				Note:  "approved / active",
			},
			{
				Transition: model.TransitionReject,
				From:       reviewable,
				Guards:     []Guard{requireReason},
				Mutate: onListing(func(l *model.Listing, in model.Input, _ time.Time) {
					l.ListingStatus = model.ListingRejected
					l.Visibility = model.VisibilityInactive
					l.Featured = false
					l.StatusReason = in.TrimmedReason()
				}),
				Event: model.EventListingRejected,
				Note:  "rejected / inactive",
			},
			{
				Transition: model.TransitionPutUnderReview,
				From:       statuses(model.ListingApproved),
				Mutate: onListing(func(l *model.Listing, in model.Input, _ time.Time) {
					l.ListingStatus = model.ListingUnderReview
					l.Visibility = model.VisibilityInactive
					l.Featured = false
					l.StatusReason = in.TrimmedReason()
				}),
				Event: model.EventListingUnderReview,
				Note:  "under_review / inactive",
			},
			{
				Transition: model.TransitionSuspend,
				From:       statuses(model.ListingApproved),
				When: func(ent model.Entity, _ model.Input) bool {
					return ent.(*model.Listing).Visibility == model.VisibilityActive
				},
				Mutate: onListing(func(l *model.Listing, in model.Input, _ time.Time) {
					l.ListingStatus = model.ListingSuspended
					l.Visibility = model.VisibilitySuspended
					l.Featured = false
					l.StatusReason = in.TrimmedReason()
				}),
				Event: model.EventListingSuspended,
				Note:  "suspended / suspended (only while active)",
			},
			{
				Transition: model.TransitionReactivate,
				From:       statuses(model.ListingSuspended),
				Guards:     []Guard{requireDealerApproved},
				Mutate: onListing(func(l *model.Listing, _ model.Input, _ time.Time) {
					l.ListingStatus = model.ListingApproved
					l.Visibility = model.VisibilityActive
					l.StatusReason = ""
				}),
				Event: model.EventListingReactivated,
				Note:  "approved / active",
			},
			{
				Transition: model.TransitionToggleFeatured,
				From:       statuses(model.ListingApproved),
				Mutate: onListing(func(l *model.Listing, _ model.Input, _ time.Time) {
					l.Featured = !l.Featured
				}),
				Note: "featured flips",
			},
			{
				Transition: model.TransitionDelete,
				Guards:     []Guard{requireReason},
				Mutate: onListing(func(l *model.Listing, in model.Input, _ time.Time) {
					l.Visibility = model.VisibilityInactive
					l.Featured = false
					l.StatusReason = in.TrimmedReason()
				}),
				Event:   model.EventListingDeleted,
				Removes: true,
				Note:    "removed",
			},
		},
	}
}

func reportMachine() *Machine {
	open := statuses(model.ReportPending, model.ReportUnderReview)
	resolve := func(action string) func(model.Entity, model.Input, time.Time) {
		return onReport(func(r *model.Report, in model.Input, now time.Time) {
			if r.AssignedTo == nil && in.OperatorID != "" {
				op := in.OperatorID
				r.AssignedTo = &op
			}
			r.Status = model.ReportResolved
			r.Resolution = &model.Resolution{
				Action:     action,
				Note:       in.TrimmedReason(),
				ResolvedBy: in.OperatorID,
				ResolvedAt: now,
			}
		})
	}
	assign := onReport(func(r *model.Report, in model.Input, _ time.Time) {
		op := in.OperatorID
		r.Status = model.ReportUnderReview
		r.AssignedTo = &op
	})
	return &Machine{
		Kind: model.KindReport,
		States: map[string]State{
			string(model.ReportPending):     {},
			string(model.ReportUnderReview): {},
			string(model.ReportResolved):    {Terminal: true},
		},
		Rules: []Rule{
			{
				Transition: model.TransitionApprove,
				From:       open,
				Mutate:     resolve(model.ResolutionActionTaken),
				Note:       "resolved (action taken)",
			},
			{
				Transition: model.TransitionReject,
				From:       open,
				Guards:     []Guard{requireReason},
				Mutate:     resolve(model.ResolutionDismissed),
				Note:       "resolved (dismissed)",
			},
			{
				Transition: model.TransitionAssign,
				From:       statuses(model.ReportPending),
				Guards:     []Guard{requireOperator},
				Mutate:     assign,
				Note:       "under_review, assignedTo set",
			},
			{
				Transition: model.TransitionAssign,
				From:       statuses(model.ReportUnderReview),
				When: func(ent model.Entity, in model.Input) bool {
					return ent.(*model.Report).Assignee() != in.OperatorID
				},
				Guards: []Guard{requireOperator},
				Mutate: assign,
				Note:   "reassigned to another operator",
			},
		},
	}
}
