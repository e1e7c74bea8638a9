package bulk

import "github.com/jmerrifield20/marketplace-console/internal/moderation/model"

// PendingListings matches listings awaiting a first decision.
func PendingListings(ent model.Entity) bool {
	l, ok := ent.(*model.Listing)
	return ok && l.ListingStatus == model.ListingPending
}

// OpenCriticalReports matches critical reports that are not yet resolved.
func OpenCriticalReports(ent model.Entity) bool {
	r, ok := ent.(*model.Report)
	if !ok || r.Severity != model.SeverityCritical {
		return false
	}
	return r.Status == model.ReportPending || r.Status == model.ReportUnderReview
}

// Operation is a named, reusable bulk action.
type Operation struct {
	Name       string
	Kind       model.Kind
	Predicate  Predicate
	Transition model.TransitionName
}

var (
	ApproveAllPending = Operation{
		Name:       "approve-all-pending",
		Kind:       model.KindListing,
		Predicate:  PendingListings,
		Transition: model.TransitionApprove,
	}
	ResolveAllCritical = Operation{
		Name:       "resolve-all-critical",
		Kind:       model.KindReport,
		Predicate:  OpenCriticalReports,
		Transition: model.TransitionApprove,
	}
)

// Operations lists the predefined bulk actions by name.
var Operations = map[string]Operation{
	ApproveAllPending.Name:  ApproveAllPending,
	ResolveAllCritical.Name: ResolveAllCritical,
}
