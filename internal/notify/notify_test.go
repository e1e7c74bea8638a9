package notify_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
	"github.com/jmerrifield20/marketplace-console/internal/notify"
	"go.uber.org/zap"
)

var ctx = context.Background()

func suspendNotice() notify.Notice {
	return notify.Notice{
		Event:     model.EventUserSuspended,
		Kind:      model.KindDealer,
		EntityID:  "d-1",
		Recipient: model.Recipient{ID: "d-1", Name: "Ana Ruiz", Email: "ana@harbour.example"},
		Data:      map[string]string{"dealer_name": "Harbour Motors"},
		Reason:    "unpaid invoices",
	}
}

func TestHTTPDispatcher_payloadAndSignature(t *testing.T) {
	var (
		gotPath string
		gotSig  string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSig = r.Header.Get(notify.SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := notify.NewHTTPDispatcher(srv.URL, "s3cret", zap.NewNop())
	if err := d.Dispatch(ctx, suspendNotice()); err != nil {
		t.Fatal(err)
	}

	if gotPath != "/notify" {
		t.Errorf("path: got %q, want /notify", gotPath)
	}
	if gotSig != notify.Sign(gotBody, "s3cret") {
		t.Errorf("signature mismatch: %q", gotSig)
	}

	var body struct {
		Type       string            `json:"type"`
		DealerData map[string]string `json:"dealerData"`
		Reason     string            `json:"reason"`
	}
	if err := json.Unmarshal(gotBody, &body); err != nil {
		t.Fatal(err)
	}
	if body.Type != "user_suspended" {
		t.Errorf("type: got %q", body.Type)
	}
	if body.DealerData["email"] != "ana@harbour.example" || body.DealerData["id"] != "d-1" {
		t.Errorf("dealerData: got %v", body.DealerData)
	}
	if body.DealerData["dealer_name"] != "Harbour Motors" {
		t.Errorf("dealerData lost extra fields: %v", body.DealerData)
	}
	if body.Reason != "unpaid invoices" {
		t.Errorf("reason: got %q", body.Reason)
	}
}

func TestHTTPDispatcher_retries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var outcomes []bool
	d := notify.NewHTTPDispatcher(srv.URL, "", zap.NewNop())
	d.SetRetryDelays([]time.Duration{0, time.Millisecond, time.Millisecond})
	d.SetMetricsRecorder(func(_ model.EventType, ok bool) { outcomes = append(outcomes, ok) })

	if err := d.Dispatch(ctx, suspendNotice()); err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
	if len(outcomes) != 3 || !outcomes[2] {
		t.Errorf("metrics: got %v", outcomes)
	}
}

func TestHTTPDispatcher_givesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := notify.NewHTTPDispatcher(srv.URL, "", zap.NewNop())
	d.SetRetryDelays([]time.Duration{0, time.Millisecond})
	if err := d.Dispatch(ctx, suspendNotice()); err == nil {
		t.Error("expected error after all attempts failed")
	}
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to+"|"+subject+"|"+body)
	return m.err
}

func TestEmailDispatcher(t *testing.T) {
	m := &recordingMailer{}
	d := notify.NewEmailDispatcher(m, "Marketplace Trust & Safety")

	n := notify.Notice{
		Event:     model.EventListingRejected,
		Kind:      model.KindListing,
		EntityID:  "l-1",
		Recipient: model.Recipient{Name: "Harbour Motors", Email: "ops@harbour.example"},
		Data:      map[string]string{"title": "2019 Toyota Corolla"},
		Reason:    "photos missing",
	}
	if err := d.Dispatch(ctx, n); err != nil {
		t.Fatal(err)
	}
	if len(m.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(m.sent))
	}
	parts := strings.SplitN(m.sent[0], "|", 3)
	if parts[0] != "ops@harbour.example" {
		t.Errorf("to: got %q", parts[0])
	}
	if parts[1] != `Your listing "2019 Toyota Corolla" was rejected` {
		t.Errorf("subject: got %q", parts[1])
	}
	if !strings.Contains(parts[2], "Reason: photos missing") {
		t.Errorf("body missing reason: %q", parts[2])
	}

	n.Recipient.Email = ""
	if err := d.Dispatch(ctx, n); err == nil {
		t.Error("expected error without recipient email")
	}
}

func TestMulti_joinsErrors(t *testing.T) {
	ok := &recordingMailer{}
	bad := &recordingMailer{err: errors.New("relay down")}
	m := notify.Multi{
		notify.NewEmailDispatcher(ok, ""),
		notify.NewEmailDispatcher(bad, ""),
		notify.NewLogDispatcher(zap.NewNop()),
	}
	err := m.Dispatch(ctx, suspendNotice())
	if err == nil || !strings.Contains(err.Error(), "relay down") {
		t.Errorf("got %v, want joined relay error", err)
	}
	if len(ok.sent) != 1 {
		t.Error("healthy dispatcher was skipped")
	}
}

// gatedDispatcher holds every delivery until gate is closed.
type gatedDispatcher struct {
	gate      chan struct{}
	delivered atomic.Int32
}

func (g *gatedDispatcher) Dispatch(_ context.Context, _ notify.Notice) error {
	<-g.gate
	g.delivered.Add(1)
	return nil
}

func TestAsync_dispatchWaitHoldsNoticeUntilRoom(t *testing.T) {
	g := &gatedDispatcher{gate: make(chan struct{})}
	a := notify.NewAsync(g, 1, 0, zap.NewNop())

	// One notice is held by the worker, the second fills the queue.
	for i := 0; i < 2; i++ {
		if err := a.DispatchWait(ctx, suspendNotice()); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.Dispatch(ctx, suspendNotice()); !errors.Is(err, notify.ErrQueueFull) {
		t.Fatalf("Dispatch on full queue: got %v, want ErrQueueFull", err)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := a.DispatchWait(short, suspendNotice()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("DispatchWait past deadline: got %v, want DeadlineExceeded", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(g.gate)
	}()
	waitCtx, cancelWait := context.WithTimeout(ctx, 5*time.Second)
	defer cancelWait()
	if err := a.DispatchWait(waitCtx, suspendNotice()); err != nil {
		t.Fatalf("DispatchWait after room: %v", err)
	}
	if err := a.Close(waitCtx); err != nil {
		t.Fatal(err)
	}
	if got := g.delivered.Load(); got != 3 {
		t.Errorf("delivered %d, want 3", got)
	}
	if err := a.DispatchWait(ctx, suspendNotice()); !errors.Is(err, notify.ErrClosed) {
		t.Errorf("after Close: got %v, want ErrClosed", err)
	}
}

func TestAsync_deliversAndDrains(t *testing.T) {
	m := &recordingMailer{}
	a := notify.NewAsync(notify.NewEmailDispatcher(m, ""), 8, time.Second, zap.NewNop())

	for i := 0; i < 5; i++ {
		if err := a.Dispatch(ctx, suspendNotice()); err != nil {
			t.Fatal(err)
		}
	}
	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		t.Fatal(err)
	}
	if len(m.sent) != 5 {
		t.Errorf("delivered %d, want 5", len(m.sent))
	}
	if err := a.Dispatch(ctx, suspendNotice()); !errors.Is(err, notify.ErrClosed) {
		t.Errorf("after Close: got %v, want ErrClosed", err)
	}
}
