package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/marketplace-console/internal/auditlog"
	"github.com/jmerrifield20/marketplace-console/internal/cache"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/filter"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/service"
	"github.com/jmerrifield20/marketplace-console/internal/notify"
	"github.com/jmerrifield20/marketplace-console/internal/store"
	"go.uber.org/zap"
)

var ctx = context.Background()

// stubNotifier records notices and optionally fails.
type stubNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
	err     error
}

func (n *stubNotifier) Dispatch(_ context.Context, notice notify.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *stubNotifier) events() []model.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.EventType, len(n.notices))
	for i, x := range n.notices {
		out[i] = x.Event
	}
	return out
}

// flakyStore fails writes while failWrites is set.
type flakyStore struct {
	*store.MemoryStore
	failWrites bool
}

func (s *flakyStore) Apply(ctx context.Context, cmd store.Command) (model.Entity, error) {
	if s.failWrites {
		return nil, errors.New("backend unavailable")
	}
	return s.MemoryStore.Apply(ctx, cmd)
}

type fixture struct {
	svc      *service.ModerationService
	store    *flakyStore
	notifier *stubNotifier
	ledger   *auditlog.MemoryLedger
	results  []model.ErrorCode
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    &flakyStore{MemoryStore: store.NewMemoryStore()},
		notifier: &stubNotifier{},
		ledger:   auditlog.NewMemoryLedger(),
	}
	f.svc = service.New(f.store, cache.New(time.Minute), zap.NewNop())
	f.svc.SetNotifier(f.notifier)
	f.svc.SetLedger(f.ledger)
	f.svc.SetTransitionRecorder(func(_ model.Kind, _ model.TransitionName, code model.ErrorCode) {
		f.results = append(f.results, code)
	})
	return f
}

func (f *fixture) create(t *testing.T, ent model.Entity) model.Entity {
	t.Helper()
	created, err := f.store.Create(ctx, ent)
	if err != nil {
		t.Fatal(err)
	}
	return created
}

func (f *fixture) dealer(t *testing.T, status model.AccountStatus) *model.Dealer {
	return f.create(t, &model.Dealer{
		Name:               "Harbour Motors",
		Email:              "ops@harbour.example",
		AccountStatus:      status,
		VerificationStatus: model.VerificationPending,
	}).(*model.Dealer)
}

func (f *fixture) listing(t *testing.T, owner *model.Dealer, status model.ListingStatus) *model.Listing {
	vis := model.VisibilityInactive
	if status == model.ListingApproved {
		vis = model.VisibilityActive
	}
	return f.create(t, &model.Listing{
		DealerID:      owner.ID,
		DealerEmail:   owner.Email,
		Title:         "2020 Mazda CX-5",
		ListingStatus: status,
		Visibility:    vis,
	}).(*model.Listing)
}

func (f *fixture) report(t *testing.T, severity model.Severity, target model.TargetType) *model.Report {
	return f.create(t, &model.Report{
		Target:   model.ReportTarget{Type: target, ID: uuid.NewString(), Title: "target " + string(target)},
		Reporter: model.Reporter{Name: "Sam Lee"},
		Severity: severity,
		Status:   model.ReportPending,
		Reason:   "spam",
	}).(*model.Report)
}

func TestTransition_dealerApprove(t *testing.T) {
	f := newFixture(t)
	d := f.dealer(t, model.DealerPending)

	res, err := f.svc.Transition(ctx, model.KindDealer, d.ID, model.TransitionApprove, model.Input{OperatorID: "admin-1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Entity.CurrentStatus() != "approved" || !res.Notified {
		t.Errorf("result: status=%q notified=%v", res.Entity.CurrentStatus(), res.Notified)
	}

	stored, _ := f.store.Get(ctx, model.KindDealer, d.ID)
	if stored.CurrentStatus() != "approved" {
		t.Errorf("store status: got %q, want approved", stored.CurrentStatus())
	}
	if got := f.notifier.events(); len(got) != 1 || got[0] != model.EventDealerApproved {
		t.Errorf("notifications: got %v", got)
	}
	entry, err := f.ledger.Get(ctx, res.AuditIndex)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Actor != "admin-1" || entry.FromStatus != "pending" || entry.ToStatus != "approved" {
		t.Errorf("audit entry: %+v", entry)
	}
}

func TestTransition_blockingErrorTouchesNothing(t *testing.T) {
	f := newFixture(t)
	d := f.dealer(t, model.DealerApproved)

	_, err := f.svc.Transition(ctx, model.KindDealer, d.ID, model.TransitionBan, model.Input{Reason: "  "})
	if model.CodeOf(err) != model.CodeMissingReason {
		t.Fatalf("got %v, want missing_reason", err)
	}
	if n, _ := f.ledger.Len(ctx); n != 1 {
		t.Errorf("audit entries written on failure: %d", n-1)
	}
	if len(f.notifier.events()) != 0 {
		t.Error("notification sent on failure")
	}
	if len(f.results) != 1 || f.results[0] != model.CodeMissingReason {
		t.Errorf("metrics: got %v", f.results)
	}
}

func TestTransition_persistenceFailure(t *testing.T) {
	f := newFixture(t)
	d := f.dealer(t, model.DealerApproved)

	// Warm the working set.
	if _, err := f.svc.Get(ctx, model.KindDealer, d.ID); err != nil {
		t.Fatal(err)
	}

	f.store.failWrites = true
	_, err := f.svc.Transition(ctx, model.KindDealer, d.ID, model.TransitionSuspend, model.Input{Reason: "late payments"})
	if !errors.Is(err, model.ErrPersistenceFailure) {
		t.Fatalf("got %v, want persistence failure", err)
	}
	if len(f.notifier.events()) != 0 {
		t.Error("notification sent for an unpersisted transition")
	}

	got, err := f.svc.Get(ctx, model.KindDealer, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentStatus() != "approved" {
		t.Errorf("working set kept the failed snapshot: %q", got.CurrentStatus())
	}

	f.store.failWrites = false
	if _, err := f.svc.Transition(ctx, model.KindDealer, d.ID, model.TransitionSuspend, model.Input{}); err != nil {
		t.Errorf("retry after recovery: %v", err)
	}
}

func TestTransition_staleSnapshot(t *testing.T) {
	f := newFixture(t)
	d := f.dealer(t, model.DealerApproved)
	if _, err := f.svc.Get(ctx, model.KindDealer, d.ID); err != nil {
		t.Fatal(err)
	}

	// Another console suspends the dealer behind our back.
	next := d.Clone().(*model.Dealer)
	next.AccountStatus = model.DealerSuspended
	next.LastUpdated = d.LastUpdated.Add(time.Second)
	if _, err := f.store.MemoryStore.Apply(ctx, store.Command{
		Kind: model.KindDealer, ID: d.ID, ExpectedStatus: "approved", Entity: next,
	}); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Transition(ctx, model.KindDealer, d.ID, model.TransitionChangePlan, model.Input{PlanID: "pro", MonthlyFee: 99})
	if !errors.Is(err, store.ErrStale) || model.CodeOf(err) != model.CodePersistenceFailure {
		t.Fatalf("got %v, want stale persistence failure", err)
	}

	// The next attempt sees the store's state.
	_, err = f.svc.Transition(ctx, model.KindDealer, d.ID, model.TransitionChangePlan, model.Input{PlanID: "pro", MonthlyFee: 99})
	if model.CodeOf(err) != model.CodeInvalidTransition {
		t.Errorf("after reload: got %v, want invalid_transition", err)
	}
}

func TestTransition_notificationFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")
	d := f.dealer(t, model.DealerApproved)

	res, err := f.svc.Transition(ctx, model.KindDealer, d.ID, model.TransitionSuspend, model.Input{Reason: "fraud"})
	if err != nil {
		t.Fatalf("notification failure leaked: %v", err)
	}
	if res.Notified || res.NotificationError == "" {
		t.Errorf("result: notified=%v error=%q", res.Notified, res.NotificationError)
	}
	stored, _ := f.store.Get(ctx, model.KindDealer, d.ID)
	if stored.CurrentStatus() != "suspended" {
		t.Errorf("store status: got %q, want suspended", stored.CurrentStatus())
	}
}

func TestTransition_listingNeedsApprovedDealer(t *testing.T) {
	f := newFixture(t)
	owner := f.dealer(t, model.DealerSuspended)
	l := f.listing(t, owner, model.ListingPending)

	_, err := f.svc.Transition(ctx, model.KindListing, l.ID, model.TransitionApprove, model.Input{})
	if model.CodeOf(err) != model.CodeGuardFailed {
		t.Fatalf("got %v, want guard_failed", err)
	}
	stored, _ := f.store.Get(ctx, model.KindListing, l.ID)
	if stored.CurrentStatus() != "pending" {
		t.Errorf("listing changed: %q", stored.CurrentStatus())
	}
}

func TestTransition_deleteRemoves(t *testing.T) {
	f := newFixture(t)
	owner := f.dealer(t, model.DealerApproved)
	l := f.listing(t, owner, model.ListingApproved)

	res, err := f.svc.Transition(ctx, model.KindListing, l.ID, model.TransitionDelete, model.Input{Reason: "sold elsewhere"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Removed {
		t.Error("expected Removed")
	}
	if _, err := f.svc.Get(ctx, model.KindListing, l.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after delete: got %v, want ErrNotFound", err)
	}
	if got := f.notifier.events(); len(got) != 1 || got[0] != model.EventListingDeleted {
		t.Errorf("notifications: got %v", got)
	}
}

func TestTransition_unknownEntity(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Transition(ctx, model.KindReport, uuid.New(), model.TransitionAssign, model.Input{OperatorID: "a"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestResolveAllCriticalReports(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.report(t, model.SeverityCritical, model.TargetListing)
	}
	for i := 0; i < 2; i++ {
		f.report(t, model.SeverityCritical, model.TargetUser)
	}
	f.report(t, model.SeverityCritical, model.TargetComment)
	low := f.report(t, model.SeverityLow, model.TargetListing)

	res, err := f.svc.ResolveAllCriticalReports(ctx, model.Input{OperatorID: "admin-1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Succeeded != 6 || res.Failed != 0 {
		t.Fatalf("succeeded=%d failed=%d", res.Succeeded, res.Failed)
	}
	want := map[string]int{"listing": 3, "user": 2, "comment": 1}
	for k, v := range want {
		if res.SucceededBy[k] != v {
			t.Errorf("SucceededBy[%s]: got %d, want %d", k, res.SucceededBy[k], v)
		}
	}

	reports, _ := f.store.List(ctx, model.KindReport)
	for _, ent := range reports {
		r := ent.(*model.Report)
		want := model.ReportResolved
		if r.ID == low.ID {
			want = model.ReportPending
		}
		if r.Status != want {
			t.Errorf("report %s: got %q, want %q", r.ID, r.Status, want)
		}
	}

	again, err := f.svc.ResolveAllCriticalReports(ctx, model.Input{OperatorID: "admin-1"})
	if err != nil {
		t.Fatal(err)
	}
	if !again.NoOp {
		t.Errorf("second run: expected NoOp, got %+v", again)
	}
}

func TestApproveAllPendingListings(t *testing.T) {
	f := newFixture(t)
	good := f.dealer(t, model.DealerApproved)
	bad := f.dealer(t, model.DealerSuspended)
	f.listing(t, good, model.ListingPending)
	f.listing(t, good, model.ListingPending)
	f.listing(t, bad, model.ListingPending)
	f.listing(t, good, model.ListingApproved)

	res, err := f.svc.ApproveAllPendingListings(ctx, model.Input{OperatorID: "admin-2"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Matched != 3 || res.Succeeded != 2 || res.Failed != 1 {
		t.Errorf("matched=%d succeeded=%d failed=%d", res.Matched, res.Succeeded, res.Failed)
	}
	if got := f.notifier.events(); len(got) != 2 {
		t.Errorf("notifications: got %d, want 2", len(got))
	}

	public, err := f.svc.PublicListings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(public) != 3 {
		t.Errorf("public listings: got %d, want 3", len(public))
	}
	for _, l := range public {
		if l.DealerID == bad.ID {
			t.Error("listing of suspended dealer is public")
		}
	}
}

// slowNotifier takes a while per notice so a small queue fills up.
type slowNotifier struct {
	stubNotifier
}

func (n *slowNotifier) Dispatch(ctx context.Context, notice notify.Notice) error {
	time.Sleep(10 * time.Millisecond)
	return n.stubNotifier.Dispatch(ctx, notice)
}

func TestApproveAllPendingListings_waitsForQueueRoom(t *testing.T) {
	f := newFixture(t)
	slow := &slowNotifier{}
	queue := notify.NewAsync(slow, 1, 0, zap.NewNop())
	f.svc.SetNotifier(queue)

	good := f.dealer(t, model.DealerApproved)
	for i := 0; i < 6; i++ {
		f.listing(t, good, model.ListingPending)
	}

	res, err := f.svc.ApproveAllPendingListings(ctx, model.Input{OperatorID: "admin-2"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Succeeded != 6 {
		t.Fatalf("succeeded=%d, want 6", res.Succeeded)
	}
	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := queue.Close(closeCtx); err != nil {
		t.Fatal(err)
	}
	if got := slow.events(); len(got) != 6 {
		t.Errorf("notifications delivered: got %d, want 6", len(got))
	}
}

func TestApproveAllPending_noneIsNoOp(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.ApproveAllPendingListings(ctx, model.Input{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.NoOp {
		t.Error("expected NoOp")
	}
	if n, _ := f.ledger.Len(ctx); n != 1 {
		t.Error("NoOp run wrote audit entries")
	}
}

func TestReportQueue(t *testing.T) {
	f := newFixture(t)
	f.report(t, model.SeverityHigh, model.TargetUser)
	f.report(t, model.SeverityHigh, model.TargetDealer)
	f.report(t, model.SeverityLow, model.TargetUser)

	got, err := f.svc.ReportQueue(ctx, filter.ReportQuery{Type: model.TargetUser})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d reports, want 2", len(got))
	}
}

func TestCreate_dealerGreeting(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(ctx, &model.Dealer{
		Name:          "New Dealer",
		Email:         "new@dealer.example",
		AccountStatus: model.DealerPending,
	}, "signup-flow")
	if err != nil {
		t.Fatal(err)
	}
	if created.EntityID() == uuid.Nil {
		t.Error("no id assigned")
	}
	if got := f.notifier.events(); len(got) != 1 || got[0] != model.EventUserCreated {
		t.Errorf("notifications: got %v", got)
	}
}

func TestCreate_forcesInitialState(t *testing.T) {
	f := newFixture(t)
	owner := f.dealer(t, model.DealerApproved)
	operator := "op-9"

	tests := []struct {
		name  string
		in    model.Entity
		check func(t *testing.T, got model.Entity)
	}{
		{
			name: "dealer sent as banned",
			in: &model.Dealer{
				Name:               "Shortcut Motors",
				AccountStatus:      model.DealerBanned,
				VerificationStatus: model.VerificationVerified,
				StatusReason:       "self-declared",
			},
			check: func(t *testing.T, got model.Entity) {
				d := got.(*model.Dealer)
				if d.AccountStatus != model.DealerPending || d.VerificationStatus != model.VerificationPending || d.StatusReason != "" {
					t.Errorf("dealer: %+v", d)
				}
			},
		},
		{
			name: "dealer sent without status",
			in:   &model.Dealer{Name: "Budget Wheels"},
			check: func(t *testing.T, got model.Entity) {
				if got.CurrentStatus() != string(model.DealerPending) {
					t.Errorf("status = %q", got.CurrentStatus())
				}
			},
		},
		{
			name: "listing sent as active and featured",
			in: &model.Listing{
				DealerID:      owner.ID,
				Title:         "2020 Golf",
				ListingStatus: model.ListingPending,
				Visibility:    model.VisibilityActive,
				Featured:      true,
			},
			check: func(t *testing.T, got model.Entity) {
				l := got.(*model.Listing)
				if l.ListingStatus != model.ListingPending || l.Visibility != model.VisibilityInactive || l.Featured {
					t.Errorf("listing: %+v", l)
				}
			},
		},
		{
			name: "report sent as resolved and assigned",
			in: &model.Report{
				Target:     model.ReportTarget{Type: model.TargetUser, ID: "u-1"},
				Severity:   model.SeverityHigh,
				Status:     model.ReportResolved,
				AssignedTo: &operator,
				Resolution: &model.Resolution{Action: model.ResolutionDismissed},
			},
			check: func(t *testing.T, got model.Entity) {
				r := got.(*model.Report)
				if r.Status != model.ReportPending || r.AssignedTo != nil || r.Resolution != nil {
					t.Errorf("report: %+v", r)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created, err := f.svc.Create(ctx, tt.in, "intake")
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, created)
			stored, err := f.store.Get(ctx, created.Kind(), created.EntityID())
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, stored)
		})
	}

	d, err := f.svc.Create(ctx, &model.Dealer{Name: "Fresh Start"}, "intake")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Transition(ctx, model.KindDealer, d.EntityID(), model.TransitionApprove, model.Input{OperatorID: "op-1"}); err != nil {
		t.Errorf("approve after intake: %v", err)
	}
}
