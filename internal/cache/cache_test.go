package cache

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
)

func dealer(status model.AccountStatus) *model.Dealer {
	return &model.Dealer{ID: uuid.New(), Name: "Dealer", AccountStatus: status}
}

func TestWorkingSet_PutAndGet(t *testing.T) {
	w := New(time.Minute)
	d := dealer(model.DealerApproved)
	w.Put(d)

	got, ok := w.Get(model.KindDealer, d.ID)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.CurrentStatus() != "approved" {
		t.Errorf("status: got %q, want approved", got.CurrentStatus())
	}

	// Stored copy is independent of the caller's value.
	d.AccountStatus = model.DealerBanned
	got, _ = w.Get(model.KindDealer, d.ID)
	if got.CurrentStatus() != "approved" {
		t.Error("cache shares memory with caller")
	}
}

func TestWorkingSet_Miss(t *testing.T) {
	w := New(time.Minute)
	if _, ok := w.Get(model.KindListing, uuid.New()); ok {
		t.Error("expected cache miss")
	}
}

func TestWorkingSet_Expiry(t *testing.T) {
	w := New(time.Minute)
	now := time.Now()
	w.now = func() time.Time { return now }

	d := dealer(model.DealerPending)
	w.Put(d)
	w.Fill(model.KindReport, nil)

	now = now.Add(2 * time.Minute)
	if _, ok := w.Get(model.KindDealer, d.ID); ok {
		t.Error("expected miss after TTL")
	}
	if _, ok := w.Listed(model.KindReport); ok {
		t.Error("expected listing to expire")
	}
	if n := w.Evict(); n != 1 {
		t.Errorf("Evict() removed %d, want 1", n)
	}
	if w.Len() != 0 {
		t.Errorf("Len after evict: got %d, want 0", w.Len())
	}
}

func TestWorkingSet_FillAndListed(t *testing.T) {
	w := New(0)
	a, b, c := dealer(model.DealerPending), dealer(model.DealerApproved), dealer(model.DealerSuspended)
	w.Put(dealer(model.DealerBanned)) // replaced by Fill
	w.Fill(model.KindDealer, []model.Entity{a, b, c})

	got, ok := w.Listed(model.KindDealer)
	if !ok {
		t.Fatal("expected listing")
	}
	if len(got) != 3 || got[0].EntityID() != a.ID || got[2].EntityID() != c.ID {
		t.Errorf("listing order: got %d entries", len(got))
	}

	w.Remove(model.KindDealer, b.ID)
	got, ok = w.Listed(model.KindDealer)
	if !ok || len(got) != 2 {
		t.Errorf("after Remove: ok=%v len=%d, want true/2", ok, len(got))
	}

	w.Invalidate(model.KindDealer, a.ID)
	if _, ok := w.Listed(model.KindDealer); ok {
		t.Error("Invalidate should drop the listing")
	}
	if _, ok := w.Get(model.KindDealer, c.ID); !ok {
		t.Error("Invalidate dropped an unrelated entity")
	}
}

func TestWorkingSet_DealerLookup(t *testing.T) {
	w := New(time.Minute)
	d := dealer(model.DealerSuspended)
	w.Put(d)

	got, ok := w.Dealer(d.ID)
	if !ok || got.AccountStatus != model.DealerSuspended {
		t.Errorf("Dealer: got %v, %v", got, ok)
	}
	status, ok := w.DealerStatus(d.ID.String())
	if !ok || status != model.DealerSuspended {
		t.Errorf("DealerStatus: got %q, %v", status, ok)
	}
	if _, ok := w.DealerStatus("not-a-uuid"); ok {
		t.Error("DealerStatus should reject bad ids")
	}
}
