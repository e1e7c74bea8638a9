package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// OperatorHeader carries the operator id when the console runs without
// token auth.
const OperatorHeader = "X-Operator-ID"

// APIError is a non-2xx response from the console.
type APIError struct {
	StatusCode int
	// Code is the transition error code (missing_reason, guard_failed, ...)
	// when the console returned one.
	Code    string
	Message string
	// Fields holds per-field validation messages.
	Fields map[string][]string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("console error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("console error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the console.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// CodeOf returns the transition error code carried by err, or "".
func CodeOf(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Entity is a dealer, listing or report as returned by the console.
type Entity map[string]any

// ID returns the entity id.
func (e Entity) ID() string {
	s, _ := e["id"].(string)
	return s
}

// Status returns the lifecycle status whichever kind the entity is.
func (e Entity) Status() string {
	for _, k := range []string{"account_status", "listing_status", "status"} {
		if s, ok := e[k].(string); ok {
			return s
		}
	}
	return ""
}

// Title returns a display name for the entity.
func (e Entity) Title() string {
	for _, k := range []string{"name", "title"} {
		if s, ok := e[k].(string); ok && s != "" {
			return s
		}
	}
	if t, ok := e["target"].(map[string]any); ok {
		s, _ := t["title"].(string)
		return s
	}
	return ""
}

// TransitionInput is the operator input of a transition.
type TransitionInput struct {
	Reason     string  `json:"reason,omitempty"`
	PlanID     string  `json:"plan_id,omitempty"`
	MonthlyFee float64 `json:"monthly_fee,omitempty"`
}

// TransitionResult is the console's answer to a successful transition.
type TransitionResult struct {
	Entity            Entity `json:"entity"`
	Removed           bool   `json:"removed"`
	Notified          bool   `json:"notified"`
	NotificationError string `json:"notification_error,omitempty"`
	AuditIndex        int    `json:"audit_index,omitempty"`
}

// BulkFailure is one item a bulk operation could not process.
type BulkFailure struct {
	ID      string `json:"id" yaml:"id"`
	SubType string `json:"sub_type" yaml:"sub_type"`
	Code    string `json:"code" yaml:"code"`
	Error   string `json:"error" yaml:"error"`
}

// BulkResult summarises a bulk operation.
type BulkResult struct {
	Transition  string         `json:"transition" yaml:"transition"`
	NoOp        bool           `json:"no_op" yaml:"no_op"`
	Matched     int            `json:"matched" yaml:"matched"`
	Succeeded   int            `json:"succeeded" yaml:"succeeded"`
	Failed      int            `json:"failed" yaml:"failed"`
	SucceededBy map[string]int `json:"succeeded_by" yaml:"succeeded_by"`
	FailedBy    map[string]int `json:"failed_by" yaml:"failed_by"`
	Failures    []BulkFailure  `json:"failures,omitempty" yaml:"failures,omitempty"`
	Cancelled   bool           `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	Remaining   int            `json:"remaining,omitempty" yaml:"remaining,omitempty"`
}

// Rule is one row of the console's transition table.
type Rule struct {
	Kind       string   `json:"kind" yaml:"kind"`
	From       string   `json:"from" yaml:"from"`
	Transition string   `json:"transition" yaml:"transition"`
	Guards     []string `json:"guards,omitempty" yaml:"guards,omitempty"`
	Result     string   `json:"result" yaml:"result"`
	Event      string   `json:"event,omitempty" yaml:"event,omitempty"`
}

// ReportFilter narrows the report queue. Zero values match everything.
type ReportFilter struct {
	Type     string
	Search   string
	Status   string
	Severity string
}

// AuditEntry is one row of the console's audit log.
type AuditEntry struct {
	Index      int       `json:"index" yaml:"index"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
	Kind       string    `json:"kind" yaml:"kind"`
	EntityID   string    `json:"entity_id" yaml:"entity_id"`
	Action     string    `json:"action" yaml:"action"`
	FromStatus string    `json:"from_status" yaml:"from_status"`
	ToStatus   string    `json:"to_status" yaml:"to_status"`
	Actor      string    `json:"actor" yaml:"actor"`
	Reason     string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Hash       string    `json:"hash" yaml:"hash"`
}

// AuditOverview is returned by Audit.
type AuditOverview struct {
	Entries int          `json:"entries" yaml:"entries"`
	Root    string       `json:"root" yaml:"root"`
	Recent  []AuditEntry `json:"recent" yaml:"recent"`
}

// AuditQuery selects recent audit entries.
type AuditQuery struct {
	Kind     string
	EntityID string
	Limit    int
}

// Client talks to the console's admin API.
type Client struct {
	base       string
	httpClient *http.Client
	operator   string

	mu          sync.Mutex
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches an operator token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithOperator sends id in the operator header. Only consoles running
// without token auth honour it.
func WithOperator(id string) Option {
	return func(c *Client) error {
		c.operator = id
		return nil
	}
}

// New creates a Client for the console at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("console URL is required")
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Token returns the bearer token in use.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bearerToken
}

// Login exchanges the admin secret for an operator token. The token is kept
// for later calls and returned.
func (c *Client) Login(ctx context.Context, secret, operatorID, name string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"secret": secret, "operator_id": operatorID, "name": name}
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/token", body, &resp); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.bearerToken = resp.Token
	c.mu.Unlock()
	return resp.Token, nil
}

// List returns every entity of kind (dealer, listing or report).
func (c *Client) List(ctx context.Context, kind string) ([]Entity, error) {
	path, err := kindPath(kind)
	if err != nil {
		return nil, err
	}
	return c.items(ctx, path)
}

// Reports returns the filtered report queue.
func (c *Client) Reports(ctx context.Context, f ReportFilter) ([]Entity, error) {
	q := url.Values{}
	setIf(q, "type", f.Type)
	setIf(q, "q", f.Search)
	setIf(q, "status", f.Status)
	setIf(q, "severity", f.Severity)
	path := "/api/v1/reports"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.items(ctx, path)
}

// PublicListings returns the listings visible to buyers.
func (c *Client) PublicListings(ctx context.Context) ([]Entity, error) {
	return c.items(ctx, "/api/v1/listings/public")
}

// Get returns one entity.
func (c *Client) Get(ctx context.Context, kind, id string) (Entity, error) {
	path, err := kindPath(kind)
	if err != nil {
		return nil, err
	}
	var ent Entity
	if err := c.call(ctx, http.MethodGet, path+"/"+url.PathEscape(id), nil, &ent); err != nil {
		return nil, err
	}
	return ent, nil
}

// Create submits a new entity. body is any JSON-encodable value.
func (c *Client) Create(ctx context.Context, kind string, body any) (Entity, error) {
	path, err := kindPath(kind)
	if err != nil {
		return nil, err
	}
	var ent Entity
	if err := c.call(ctx, http.MethodPost, path, body, &ent); err != nil {
		return nil, err
	}
	return ent, nil
}

// Allowed lists the transitions currently open for an entity.
func (c *Client) Allowed(ctx context.Context, kind, id string) ([]string, error) {
	path, err := kindPath(kind)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Transitions []string `json:"transitions"`
	}
	if err := c.call(ctx, http.MethodGet, path+"/"+url.PathEscape(id)+"/transitions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transitions, nil
}

// Transition applies a named transition to an entity.
func (c *Client) Transition(ctx context.Context, kind, id, name string, in TransitionInput) (*TransitionResult, error) {
	path, err := kindPath(kind)
	if err != nil {
		return nil, err
	}
	var res TransitionResult
	p := path + "/" + url.PathEscape(id) + "/transitions/" + url.PathEscape(name)
	if err := c.call(ctx, http.MethodPost, p, in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ApproveAllPending approves every pending listing.
func (c *Client) ApproveAllPending(ctx context.Context, reason string) (*BulkResult, error) {
	return c.bulk(ctx, "/api/v1/bulk/listings/approve-pending", reason)
}

// ResolveAllCritical resolves every open critical report.
func (c *Client) ResolveAllCritical(ctx context.Context, reason string) (*BulkResult, error) {
	return c.bulk(ctx, "/api/v1/bulk/reports/resolve-critical", reason)
}

// Rules returns the transition table.
func (c *Client) Rules(ctx context.Context) ([]Rule, error) {
	var resp struct {
		Rules []Rule `json:"rules"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/rules", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rules, nil
}

// Audit returns the audit log overview with recent matching entries.
func (c *Client) Audit(ctx context.Context, q AuditQuery) (*AuditOverview, error) {
	v := url.Values{}
	setIf(v, "kind", q.Kind)
	setIf(v, "entity_id", q.EntityID)
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/api/v1/audit"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out AuditOverview
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyAudit asks the console to walk the audit chain. A broken chain is
// reported as (false, reason, nil).
func (c *Client) VerifyAudit(ctx context.Context) (bool, string, error) {
	var resp struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/audit/verify", nil, &resp); err != nil {
		return false, "", err
	}
	return resp.Valid, resp.Error, nil
}

func (c *Client) bulk(ctx context.Context, path, reason string) (*BulkResult, error) {
	var body any
	if reason != "" {
		body = TransitionInput{Reason: reason}
	}
	var res BulkResult
	if err := c.call(ctx, http.MethodPost, path, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) items(ctx context.Context, path string) ([]Entity, error) {
	var resp struct {
		Items []Entity `json:"items"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// call sends a JSON request and decodes a JSON response into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.operator != "" {
		req.Header.Set(OperatorHeader, c.operator)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, raw)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	var payload struct {
		Error  string              `json:"error"`
		Code   string              `json:"code"`
		Fields map[string][]string `json:"fields"`
	}
	ae := &APIError{StatusCode: status}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		ae.Code = payload.Code
		ae.Message = payload.Error
		ae.Fields = payload.Fields
	} else {
		ae.Message = strings.TrimSpace(string(raw))
	}
	return ae
}

func kindPath(kind string) (string, error) {
	switch kind {
	case "dealer", "dealers":
		return "/api/v1/dealers", nil
	case "listing", "listings":
		return "/api/v1/listings", nil
	case "report", "reports":
		return "/api/v1/reports", nil
	}
	return "", fmt.Errorf("unknown entity kind %q", kind)
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}
