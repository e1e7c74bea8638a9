package bulk_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/bulk"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/lifecycle"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
	"go.uber.org/zap"
)

func criticalReport(target model.TargetType, status model.ReportStatus) *model.Report {
	return &model.Report{
		ID:       uuid.New(),
		Target:   model.ReportTarget{Type: target, ID: uuid.NewString(), Title: "reported " + string(target)},
		Severity: model.SeverityCritical,
		Status:   status,
	}
}

func criticalSet() []model.Entity {
	var out []model.Entity
	for i := 0; i < 3; i++ {
		out = append(out, criticalReport(model.TargetListing, model.ReportPending))
	}
	for i := 0; i < 2; i++ {
		out = append(out, criticalReport(model.TargetUser, model.ReportPending))
	}
	out = append(out, criticalReport(model.TargetComment, model.ReportPending))
	// Not critical, must be left alone.
	low := criticalReport(model.TargetListing, model.ReportPending)
	low.Severity = model.SeverityLow
	out = append(out, low)
	return out
}

func newCoordinator(dealers lifecycle.DealerLookup) *bulk.Coordinator {
	return bulk.New(lifecycle.NewEngine(dealers), zap.NewNop())
}

func TestApply_resolveAllCritical(t *testing.T) {
	c := newCoordinator(nil)
	op := bulk.ResolveAllCritical

	res := c.Apply(context.Background(), criticalSet(), op.Predicate, op.Transition, model.Input{OperatorID: "admin-1"}, nil)
	if res.NoOp {
		t.Fatal("unexpected NoOp")
	}
	if res.Matched != 6 || res.Succeeded != 6 || res.Failed != 0 {
		t.Fatalf("counts: matched=%d succeeded=%d failed=%d", res.Matched, res.Succeeded, res.Failed)
	}
	want := map[string]int{"listing": 3, "user": 2, "comment": 1}
	for k, v := range want {
		if res.SucceededBy[k] != v {
			t.Errorf("SucceededBy[%s]: got %d, want %d", k, res.SucceededBy[k], v)
		}
	}
	if len(res.SucceededBy) != len(want) {
		t.Errorf("SucceededBy: got %v, want %v", res.SucceededBy, want)
	}
	for _, out := range res.Outcomes {
		if got := out.Entity.(*model.Report).Status; got != model.ReportResolved {
			t.Errorf("report %s: status %q, want resolved", out.Entity.EntityID(), got)
		}
	}
	if len(res.Notifications) != 0 {
		t.Errorf("report resolution should not notify, got %d", len(res.Notifications))
	}
}

func TestApply_emptyMatchIsNoOp(t *testing.T) {
	c := newCoordinator(nil)
	committed := 0
	commit := func(context.Context, *lifecycle.Outcome) (model.Entity, error) {
		committed++
		return nil, nil
	}

	res := c.Apply(context.Background(), nil, bulk.PendingListings, model.TransitionApprove, model.Input{}, commit)
	if !res.NoOp {
		t.Error("expected NoOp for empty input")
	}
	if len(res.Outcomes) != 0 || len(res.Notifications) != 0 || committed != 0 {
		t.Errorf("NoOp produced effects: outcomes=%d notifications=%d commits=%d",
			len(res.Outcomes), len(res.Notifications), committed)
	}
}

func TestApply_rerunIsNoOp(t *testing.T) {
	c := newCoordinator(nil)
	op := bulk.ResolveAllCritical
	set := criticalSet()

	first := c.Apply(context.Background(), set, op.Predicate, op.Transition, model.Input{}, nil)

	var after []model.Entity
	for _, out := range first.Outcomes {
		after = append(after, out.Entity)
	}
	second := c.Apply(context.Background(), after, op.Predicate, op.Transition, model.Input{}, nil)
	if !second.NoOp {
		t.Errorf("second run: expected NoOp, got %+v", second)
	}
}

func TestApply_collectsIndividualFailures(t *testing.T) {
	approved := &model.Dealer{ID: uuid.New(), AccountStatus: model.DealerApproved}
	suspended := &model.Dealer{ID: uuid.New(), AccountStatus: model.DealerSuspended}
	dealers := lifecycle.DealerMap{approved.ID: approved, suspended.ID: suspended}

	ok1 := &model.Listing{ID: uuid.New(), DealerID: approved.ID, ListingStatus: model.ListingPending, DealerEmail: "a@example.com"}
	bad := &model.Listing{ID: uuid.New(), DealerID: suspended.ID, ListingStatus: model.ListingPending}
	ok2 := &model.Listing{ID: uuid.New(), DealerID: approved.ID, ListingStatus: model.ListingPending, DealerEmail: "a@example.com"}

	c := newCoordinator(dealers)
	op := bulk.ApproveAllPending
	res := c.Apply(context.Background(), []model.Entity{ok1, bad, ok2}, op.Predicate, op.Transition, model.Input{}, nil)

	if res.Succeeded != 2 || res.Failed != 1 {
		t.Fatalf("succeeded=%d failed=%d, want 2/1", res.Succeeded, res.Failed)
	}
	if res.FailedBy[suspended.ID.String()] != 1 {
		t.Errorf("FailedBy: got %v", res.FailedBy)
	}
	if res.Failures[0].Code != model.CodeGuardFailed {
		t.Errorf("failure code: got %q, want guard_failed", res.Failures[0].Code)
	}
	if len(res.Notifications) != 2 {
		t.Errorf("notifications: got %d, want 2", len(res.Notifications))
	}
}

func TestApply_commitFailureCountsAsPersistenceFailure(t *testing.T) {
	c := newCoordinator(nil)
	op := bulk.ResolveAllCritical
	calls := 0
	commit := func(_ context.Context, out *lifecycle.Outcome) (model.Entity, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("store unavailable")
		}
		return out.Entity, nil
	}

	res := c.Apply(context.Background(), criticalSet(), op.Predicate, op.Transition, model.Input{}, commit)
	if res.Succeeded != 5 || res.Failed != 1 {
		t.Fatalf("succeeded=%d failed=%d, want 5/1", res.Succeeded, res.Failed)
	}
	if res.Failures[0].Code != model.CodePersistenceFailure {
		t.Errorf("failure code: got %q, want persistence_failure", res.Failures[0].Code)
	}
}

func TestApply_cancellationKeepsCommitted(t *testing.T) {
	c := newCoordinator(nil)
	op := bulk.ResolveAllCritical
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var committed []uuid.UUID
	commit := func(_ context.Context, out *lifecycle.Outcome) (model.Entity, error) {
		committed = append(committed, out.Entity.EntityID())
		if len(committed) == 2 {
			cancel()
		}
		out.Entity.Touch(time.Now())
		return out.Entity, nil
	}

	res := c.Apply(ctx, criticalSet(), op.Predicate, op.Transition, model.Input{}, commit)
	if !res.Cancelled {
		t.Fatal("expected Cancelled")
	}
	if res.Succeeded != 2 || len(committed) != 2 {
		t.Errorf("succeeded=%d committed=%d, want 2/2", res.Succeeded, len(committed))
	}
	if res.Remaining != 4 {
		t.Errorf("remaining: got %d, want 4", res.Remaining)
	}
}

func TestPresets(t *testing.T) {
	underReview := criticalReport(model.TargetDealer, model.ReportUnderReview)
	resolved := criticalReport(model.TargetDealer, model.ReportResolved)
	if !bulk.OpenCriticalReports(underReview) {
		t.Error("under_review critical report should match")
	}
	if bulk.OpenCriticalReports(resolved) {
		t.Error("resolved report should not match")
	}
	if bulk.PendingListings(underReview) {
		t.Error("a report is not a pending listing")
	}
	if _, ok := bulk.Operations["approve-all-pending"]; !ok {
		t.Error("approve-all-pending not registered")
	}
}
