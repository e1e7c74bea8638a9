// Package filter holds the read-path views over moderated entities. Nothing
// here changes state.
package filter

import (
	"strings"

	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
)

// ReportQuery narrows the moderation queue. Zero values match everything.
type ReportQuery struct {
	// Type restricts to one target type (listing, user, dealer, comment).
	Type model.TargetType
	// Search is matched case-insensitively against the target title,
	// reporter name, reason and category.
	Search   string
	Status   model.ReportStatus
	Severity model.Severity
}

// Reports returns the reports matching q in their original order.
func Reports(reports []*model.Report, q ReportQuery) []*model.Report {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]*model.Report, 0, len(reports))
	for _, r := range reports {
		if q.Type != "" && r.Target.Type != q.Type {
			continue
		}
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		if q.Severity != "" && r.Severity != q.Severity {
			continue
		}
		if needle != "" && !matchesReport(r, needle) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesReport(r *model.Report, needle string) bool {
	for _, field := range []string{r.Target.Title, r.Reporter.Name, r.Reason, r.Category} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// PublicListings returns the listings a buyer may see: approved, active and
// owned by an approved dealer. Listings whose dealer is unknown are hidden.
func PublicListings(listings []*model.Listing, dealerStatus func(id string) (model.AccountStatus, bool)) []*model.Listing {
	out := make([]*model.Listing, 0, len(listings))
	for _, l := range listings {
		if l.ListingStatus != model.ListingApproved || l.Visibility != model.VisibilityActive {
			continue
		}
		status, ok := dealerStatus(l.DealerID.String())
		if !ok || status != model.DealerApproved {
			continue
		}
		out = append(out, l)
	}
	return out
}
