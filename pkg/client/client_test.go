package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/marketplace-console/internal/auditlog"
	"github.com/jmerrifield20/marketplace-console/internal/cache"
	"github.com/jmerrifield20/marketplace-console/internal/console/handler"
	"github.com/jmerrifield20/marketplace-console/internal/identity"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/service"
	"github.com/jmerrifield20/marketplace-console/internal/store"
	"github.com/jmerrifield20/marketplace-console/pkg/client"
	"go.uber.org/zap"
)

const adminSecret = "client-test-secret"

// consoleServer runs the real admin API over an in-memory store.
func consoleServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ledger := auditlog.NewMemoryLedger()
	svc := service.New(store.NewMemoryStore(), cache.New(time.Minute), zap.NewNop())
	svc.SetLedger(ledger)

	tokens := identity.NewOperatorTokenIssuer([]byte("client-test-key"), "console-test", time.Hour)
	tokens.SetAdminSecret(adminSecret)

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewAuthHandler(tokens, zap.NewNop()).Register(v1)
	api := v1.Group("", identity.RequireOperator(tokens))
	handler.NewModerationHandler(svc, zap.NewNop()).Register(api)
	handler.NewAuditHandler(ledger, zap.NewNop()).Register(api)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func loggedIn(t *testing.T, srv *httptest.Server) *client.Client {
	t.Helper()
	c := client.MustNew(srv.URL)
	if _, err := c.Login(context.Background(), adminSecret, "op-1", "Jordan"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	return c
}

func TestNew_requiresURL(t *testing.T) {
	if _, err := client.New(""); err == nil {
		t.Error("expected error for empty URL")
	}
}

func TestLogin_badSecret(t *testing.T) {
	srv := consoleServer(t)
	c := client.MustNew(srv.URL)
	_, err := c.Login(context.Background(), "nope", "op-1", "")
	var ae *client.APIError
	if !asAPIError(err, &ae) || ae.StatusCode != http.StatusUnauthorized {
		t.Errorf("got %v, want 401 APIError", err)
	}
}

func TestUnauthenticated(t *testing.T) {
	srv := consoleServer(t)
	_, err := client.MustNew(srv.URL).List(context.Background(), "dealers")
	var ae *client.APIError
	if !asAPIError(err, &ae) || ae.StatusCode != http.StatusUnauthorized {
		t.Errorf("got %v, want 401 APIError", err)
	}
}

func TestDealerLifecycle(t *testing.T) {
	srv := consoleServer(t)
	c := loggedIn(t, srv)
	ctx := context.Background()

	d, err := c.Create(ctx, "dealer", map[string]any{
		"name":                "Harbour Motors",
		"email":               "ops@harbour.example",
		"account_status":      "approved",
		"verification_status": "verified",
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	// Intake always starts a dealer as pending, whatever the body says.
	if d.Status() != "pending" || d["verification_status"] != "pending" || d.Title() != "Harbour Motors" {
		t.Errorf("created: status=%q title=%q", d.Status(), d.Title())
	}

	allowed, err := c.Allowed(ctx, "dealer", d.ID())
	if err != nil || len(allowed) == 0 {
		t.Fatalf("Allowed() = %v, %v", allowed, err)
	}

	res, err := c.Transition(ctx, "dealer", d.ID(), "approve", client.TransitionInput{})
	if err != nil {
		t.Fatalf("Transition() error: %v", err)
	}
	if res.Entity.Status() != "approved" {
		t.Errorf("status after approve: %q", res.Entity.Status())
	}

	_, err = c.Transition(ctx, "dealer", d.ID(), "ban", client.TransitionInput{})
	if client.CodeOf(err) != "missing_reason" {
		t.Errorf("ban without reason: got %v", err)
	}

	if _, err := c.Transition(ctx, "dealer", d.ID(), "ban", client.TransitionInput{Reason: "fraud"}); err != nil {
		t.Fatalf("ban: %v", err)
	}
	got, err := c.Get(ctx, "dealers", d.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got.Status() != "banned" {
		t.Errorf("stored status: %q", got.Status())
	}

	audit, err := c.Audit(ctx, client.AuditQuery{EntityID: d.ID()})
	if err != nil {
		t.Fatal(err)
	}
	if len(audit.Recent) != 3 { // create, approve, ban
		t.Errorf("audit entries for dealer: got %d, want 3", len(audit.Recent))
	}
	if audit.Recent[0].Action != "ban" || audit.Recent[0].Actor != "op-1" {
		t.Errorf("newest entry: %+v", audit.Recent[0])
	}
	ok, reason, err := c.VerifyAudit(ctx)
	if err != nil || !ok {
		t.Errorf("VerifyAudit() = %v, %q, %v", ok, reason, err)
	}
}

func TestReportsAndBulk(t *testing.T) {
	srv := consoleServer(t)
	c := loggedIn(t, srv)
	ctx := context.Background()

	for _, target := range []string{"listing", "user", "user"} {
		_, err := c.Create(ctx, "report", map[string]any{
			"target":   map[string]string{"type": target, "id": "t-1", "title": "Silver Astra"},
			"reporter": map[string]string{"name": "Kim"},
			"severity": "critical",
			"status":   "pending",
			"reason":   "scam",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	users, err := c.Reports(ctx, client.ReportFilter{Type: "user", Search: "astra"})
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Errorf("user reports: got %d, want 2", len(users))
	}

	_, err = c.Reports(ctx, client.ReportFilter{Severity: "apocalyptic"})
	var ae *client.APIError
	if !asAPIError(err, &ae) || len(ae.Fields["Severity"]) == 0 {
		t.Errorf("bad severity: got %v", err)
	}

	sum, err := c.ResolveAllCritical(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Succeeded != 3 || sum.SucceededBy["user"] != 2 || sum.SucceededBy["listing"] != 1 {
		t.Errorf("summary: %+v", sum)
	}
	again, err := c.ResolveAllCritical(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if !again.NoOp {
		t.Errorf("second run: %+v", again)
	}

	pub, err := c.PublicListings(ctx)
	if err != nil || len(pub) != 0 {
		t.Errorf("PublicListings() = %d, %v", len(pub), err)
	}
	sum, err = c.ApproveAllPending(ctx, "")
	if err != nil || !sum.NoOp {
		t.Errorf("ApproveAllPending() with no listings = %+v, %v", sum, err)
	}
}

func TestGet_notFound(t *testing.T) {
	srv := consoleServer(t)
	c := loggedIn(t, srv)
	_, err := c.Get(context.Background(), "listing", "3b241101-e2bb-4255-8caf-4136c566a962")
	if !client.IsNotFound(err) {
		t.Errorf("got %v, want not found", err)
	}
	if _, err := c.List(context.Background(), "vehicles"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestRules(t *testing.T) {
	srv := consoleServer(t)
	rules, err := loggedIn(t, srv).Rules(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	kinds := map[string]bool{}
	for _, r := range rules {
		kinds[r.Kind] = true
	}
	for _, k := range []string{"dealer", "listing", "report"} {
		if !kinds[k] {
			t.Errorf("no rules for %s", k)
		}
	}
}

func TestWithOperator_openMode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen string
	r := gin.New()
	r.GET("/api/v1/dealers", func(ctx *gin.Context) {
		seen = ctx.GetHeader(client.OperatorHeader)
		ctx.JSON(http.StatusOK, gin.H{"items": []any{}})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := client.MustNew(srv.URL, client.WithOperator("op-open"))
	if _, err := c.List(context.Background(), "dealer"); err != nil {
		t.Fatal(err)
	}
	if seen != "op-open" {
		t.Errorf("operator header: got %q", seen)
	}
}

func asAPIError(err error, target **client.APIError) bool {
	ae, ok := err.(*client.APIError)
	if ok {
		*target = ae
	}
	return ok
}
