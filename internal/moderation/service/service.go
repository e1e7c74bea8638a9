// Package service executes the effects the lifecycle engine asks for. It is
// the only place a moderation decision touches the store, the working set,
// the audit log and the notification dispatcher.
//
// Writes follow one discipline: the working set is only updated with the
// store's confirmed response. A failed persist invalidates the cached
// snapshot so the next read goes back to the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/marketplace-console/internal/auditlog"
	"github.com/jmerrifield20/marketplace-console/internal/cache"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/bulk"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/filter"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/lifecycle"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
	"github.com/jmerrifield20/marketplace-console/internal/notify"
	"github.com/jmerrifield20/marketplace-console/internal/store"
	"go.uber.org/zap"
)

// bulkNotifyWait bounds how long a bulk run waits for queue room per batch.
const bulkNotifyWait = time.Minute

// TransitionRecorder is an optional callback for transition outcomes. code is
// empty on success.
type TransitionRecorder func(kind model.Kind, name model.TransitionName, code model.ErrorCode)

// NotificationRecorder is an optional callback for notification outcomes.
type NotificationRecorder func(event model.EventType, ok bool)

// Result is returned by Transition.
type Result struct {
	Entity  model.Entity `json:"entity"`
	Removed bool         `json:"removed"`
	// Notified is false when the transition emits no event or delivery failed.
	Notified          bool   `json:"notified"`
	NotificationError string `json:"notification_error,omitempty"`
	AuditIndex        int    `json:"audit_index,omitempty"`
}

// ModerationService applies operator actions to marketplace entities.
type ModerationService struct {
	store    store.Store
	ws       *cache.WorkingSet
	engine   *lifecycle.Engine
	bulk     *bulk.Coordinator
	ledger   auditlog.Ledger   // nil = no audit entries
	notifier notify.Dispatcher // nil = notifications are dropped
	onResult TransitionRecorder
	onNotify NotificationRecorder
	logger   *zap.Logger
}

// New creates a ModerationService. The engine's dealer lookup is the working
// set, so listing guards see the dealers the service has loaded.
func New(st store.Store, ws *cache.WorkingSet, logger *zap.Logger) *ModerationService {
	engine := lifecycle.NewEngine(ws)
	return &ModerationService{
		store:  st,
		ws:     ws,
		engine: engine,
		bulk:   bulk.New(engine, logger),
		logger: logger,
	}
}

// SetLedger configures the audit log.
func (s *ModerationService) SetLedger(l auditlog.Ledger) {
	s.ledger = l
}

// SetNotifier configures the notification dispatcher.
func (s *ModerationService) SetNotifier(d notify.Dispatcher) {
	s.notifier = d
}

// SetTransitionRecorder configures the transition metrics callback.
func (s *ModerationService) SetTransitionRecorder(fn TransitionRecorder) {
	s.onResult = fn
}

// SetNotificationRecorder configures the notification metrics callback.
func (s *ModerationService) SetNotificationRecorder(fn NotificationRecorder) {
	s.onNotify = fn
}

// SetClock replaces the engine's time source.
func (s *ModerationService) SetClock(clock func() time.Time) {
	s.engine.SetClock(clock)
}

// Rules returns the transition table.
func (s *ModerationService) Rules() []lifecycle.RuleRow {
	return s.engine.Describe()
}

// Get returns one entity, reading through the working set.
func (s *ModerationService) Get(ctx context.Context, kind model.Kind, id uuid.UUID) (model.Entity, error) {
	if ent, ok := s.ws.Get(kind, id); ok {
		return ent, nil
	}
	ent, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", kind, id, err)
	}
	s.ws.Put(ent)
	return ent, nil
}

// List returns every entity of kind in store order.
func (s *ModerationService) List(ctx context.Context, kind model.Kind) ([]model.Entity, error) {
	if ents, ok := s.ws.Listed(kind); ok {
		return ents, nil
	}
	ents, err := s.store.List(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	s.ws.Fill(kind, ents)
	return ents, nil
}

// Create stores a new entity submitted by an outside flow. Whatever lifecycle
// fields the caller sent are replaced by the kind's initial state; status only
// moves through Transition. New dealers are greeted with a user_created
// notification.
func (s *ModerationService) Create(ctx context.Context, ent model.Entity, actor string) (model.Entity, error) {
	created, err := s.store.Create(ctx, initial(ent))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", ent.Kind(), err)
	}
	s.ws.Put(created)
	s.appendAudit(ctx, auditlog.Record{
		Kind:     string(created.Kind()),
		EntityID: created.EntityID().String(),
		Action:   "create",
		ToStatus: created.CurrentStatus(),
		Actor:    actor,
		Snapshot: created,
	})
	if created.Kind() == model.KindDealer {
		s.dispatch(ctx, notify.Notice{
			Event:     model.EventUserCreated,
			Kind:      created.Kind(),
			EntityID:  created.EntityID().String(),
			Recipient: created.Recipient(),
			Timestamp: created.Touched(),
		})
	}
	return created, nil
}

// initial returns a copy of ent in the state every new entity starts from.
func initial(ent model.Entity) model.Entity {
	ent = ent.Clone()
	switch v := ent.(type) {
	case *model.Dealer:
		v.AccountStatus = model.DealerPending
		v.VerificationStatus = model.VerificationPending
		v.StatusReason = ""
	case *model.Listing:
		v.ListingStatus = model.ListingPending
		v.Visibility = model.VisibilityInactive
		v.Featured = false
		v.StatusReason = ""
	case *model.Report:
		v.Status = model.ReportPending
		v.AssignedTo = nil
		v.Resolution = nil
	}
	ent.Touch(time.Time{})
	return ent
}

// Allowed lists the transitions currently open for an entity.
func (s *ModerationService) Allowed(ctx context.Context, kind model.Kind, id uuid.UUID, in model.Input) ([]model.TransitionName, error) {
	ent, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return s.engine.Allowed(ent, in), nil
}

// Transition applies one named transition to one entity.
func (s *ModerationService) Transition(ctx context.Context, kind model.Kind, id uuid.UUID, name model.TransitionName, in model.Input) (*Result, error) {
	ent, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if l, ok := ent.(*model.Listing); ok {
		s.ensureDealer(ctx, l.DealerID)
	}

	out, err := s.engine.Apply(ent, name, in)
	if err != nil {
		s.record(kind, name, err)
		return nil, err
	}

	fresh, auditIdx, err := s.commit(ctx, out, in.OperatorID)
	s.record(kind, name, err)
	if err != nil {
		return nil, err
	}

	res := &Result{Entity: fresh, Removed: out.Removed, AuditIndex: auditIdx}
	if n, ok := out.Notification(); ok {
		if err := s.dispatch(ctx, notice(n, fresh)); err != nil {
			res.NotificationError = err.Error()
		} else {
			res.Notified = true
		}
	}
	return res, nil
}

// Bulk runs a predefined bulk operation over the current entities of its
// kind. Each item is committed as it succeeds; notifications are sent once
// the run ends.
func (s *ModerationService) Bulk(ctx context.Context, op bulk.Operation, in model.Input) (*bulk.Result, error) {
	ents, err := s.List(ctx, op.Kind)
	if err != nil {
		return nil, err
	}
	if op.Kind == model.KindListing {
		// Approval guards read owning dealers from the working set.
		if _, err := s.List(ctx, model.KindDealer); err != nil {
			return nil, err
		}
	}

	commit := func(ctx context.Context, out *lifecycle.Outcome) (model.Entity, error) {
		fresh, _, err := s.commit(ctx, out, in.OperatorID)
		s.record(op.Kind, op.Transition, err)
		return fresh, err
	}
	res := s.bulk.Apply(ctx, ents, op.Predicate, op.Transition, in, commit)
	for _, f := range res.Failures {
		// Commit failures were recorded above.
		if f.Code != model.CodePersistenceFailure {
			s.record(op.Kind, op.Transition, &model.TransitionError{Code: f.Code})
		}
	}

	// Delivery outlives a cancelled run: the items were committed.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bulkNotifyWait)
	defer cancel()
	for _, out := range res.Outcomes {
		if n, ok := out.Notification(); ok {
			_ = s.dispatchWait(dctx, notice(n, out.Entity))
		}
	}
	return res, nil
}

// ApproveAllPendingListings approves every pending listing.
func (s *ModerationService) ApproveAllPendingListings(ctx context.Context, in model.Input) (*bulk.Result, error) {
	return s.Bulk(ctx, bulk.ApproveAllPending, in)
}

// ResolveAllCriticalReports resolves every open critical report.
func (s *ModerationService) ResolveAllCriticalReports(ctx context.Context, in model.Input) (*bulk.Result, error) {
	return s.Bulk(ctx, bulk.ResolveAllCritical, in)
}

// ReportQueue returns the filtered moderation queue.
func (s *ModerationService) ReportQueue(ctx context.Context, q filter.ReportQuery) ([]*model.Report, error) {
	ents, err := s.List(ctx, model.KindReport)
	if err != nil {
		return nil, err
	}
	reports := make([]*model.Report, 0, len(ents))
	for _, ent := range ents {
		reports = append(reports, ent.(*model.Report))
	}
	return filter.Reports(reports, q), nil
}

// PublicListings returns the listings buyers can see.
func (s *ModerationService) PublicListings(ctx context.Context) ([]*model.Listing, error) {
	dealers, err := s.List(ctx, model.KindDealer)
	if err != nil {
		return nil, err
	}
	status := make(map[string]model.AccountStatus, len(dealers))
	for _, ent := range dealers {
		d := ent.(*model.Dealer)
		status[d.ID.String()] = d.AccountStatus
	}
	ents, err := s.List(ctx, model.KindListing)
	if err != nil {
		return nil, err
	}
	listings := make([]*model.Listing, 0, len(ents))
	for _, ent := range ents {
		listings = append(listings, ent.(*model.Listing))
	}
	return filter.PublicListings(listings, func(id string) (model.AccountStatus, bool) {
		st, ok := status[id]
		return st, ok
	}), nil
}

// commit executes the outcome's persist intent and, once the store has
// confirmed it, updates the working set and the audit log.
func (s *ModerationService) commit(ctx context.Context, out *lifecycle.Outcome, actor string) (model.Entity, int, error) {
	p := out.Persist()
	cmd := store.Command{
		Kind:              p.Kind,
		ID:                p.ID,
		Action:            p.Action,
		Status:            p.Status,
		ExpectedStatus:    p.ExpectedStatus,
		ExpectedUpdatedAt: p.ExpectedUpdatedAt,
		Reason:            p.Reason,
		Entity:            p.Entity,
	}

	fresh := out.Entity
	var err error
	if p.Delete {
		err = s.store.Remove(ctx, cmd)
	} else {
		fresh, err = s.store.Apply(ctx, cmd)
	}
	if err != nil {
		s.ws.Invalidate(p.Kind, p.ID)
		s.logger.Warn("persist failed",
			zap.String("kind", string(p.Kind)),
			zap.String("id", p.ID.String()),
			zap.String("action", string(p.Action)),
			zap.Error(err),
		)
		return nil, 0, &model.TransitionError{
			Code:       model.CodePersistenceFailure,
			Kind:       p.Kind,
			ID:         p.ID.String(),
			Transition: p.Action,
			Status:     p.ExpectedStatus,
			Msg:        "store rejected the update",
			Err:        err,
		}
	}

	if p.Delete {
		s.ws.Remove(p.Kind, p.ID)
	} else {
		s.ws.Put(fresh)
	}

	idx := s.appendAudit(ctx, auditlog.Record{
		Kind:       string(p.Kind),
		EntityID:   p.ID.String(),
		Action:     string(p.Action),
		FromStatus: p.ExpectedStatus,
		ToStatus:   p.Status,
		Actor:      actor,
		Reason:     p.Reason,
		Snapshot:   fresh,
	})
	return fresh, idx, nil
}

// ensureDealer loads a listing's owner into the working set so the approval
// guards can see it. A missing dealer is left for the guard to report.
func (s *ModerationService) ensureDealer(ctx context.Context, id uuid.UUID) {
	if _, ok := s.ws.Dealer(id); ok {
		return
	}
	if _, err := s.Get(ctx, model.KindDealer, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("load owning dealer", zap.String("dealer_id", id.String()), zap.Error(err))
	}
}

// appendAudit writes an audit entry. Failures are logged, never returned.
func (s *ModerationService) appendAudit(ctx context.Context, rec auditlog.Record) int {
	if s.ledger == nil {
		return 0
	}
	e, err := s.ledger.Append(ctx, rec)
	if err != nil {
		s.logger.Warn("audit append failed",
			zap.String("entity_id", rec.EntityID),
			zap.String("action", rec.Action),
			zap.Error(err),
		)
		return 0
	}
	return e.Index
}

// dispatch sends a notice. Failures are logged and counted but never undo
// the transition.
func (s *ModerationService) dispatch(ctx context.Context, n notify.Notice) error {
	if s.notifier == nil {
		return nil
	}
	return s.notified(n, s.notifier.Dispatch(ctx, n))
}

// dispatchWait is dispatch that waits for queue room until ctx ends.
func (s *ModerationService) dispatchWait(ctx context.Context, n notify.Notice) error {
	if w, ok := s.notifier.(notify.Waiter); ok {
		return s.notified(n, w.DispatchWait(ctx, n))
	}
	return s.dispatch(ctx, n)
}

func (s *ModerationService) notified(n notify.Notice, err error) error {
	if s.onNotify != nil {
		s.onNotify(n.Event, err == nil)
	}
	if err != nil {
		err = &model.TransitionError{
			Code:   model.CodeNotificationFailure,
			Kind:   n.Kind,
			ID:     n.EntityID,
			Status: string(n.Event),
			Msg:    "notification not delivered",
			Err:    err,
		}
		s.logger.Warn("notification failed",
			zap.String("event", string(n.Event)),
			zap.String("entity_id", n.EntityID),
			zap.Error(err),
		)
	}
	return err
}

func (s *ModerationService) record(kind model.Kind, name model.TransitionName, err error) {
	if s.onResult != nil {
		s.onResult(kind, name, model.CodeOf(err))
	}
}

// notice converts an engine intent into a dispatcher notice, stamped with the
// confirmed snapshot's time.
func notice(n lifecycle.Notify, ent model.Entity) notify.Notice {
	out := notify.Notice{
		Event:     n.Event,
		Kind:      n.Kind,
		EntityID:  n.EntityID.String(),
		Recipient: n.Recipient,
		Data:      n.Data,
		Reason:    n.Reason,
	}
	if ent != nil {
		out.Timestamp = ent.Touched()
	}
	return out
}
