package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
)

// RESTStore talks to a persistence backend over the /entities HTTP contract.
type RESTStore struct {
	base       string
	token      string
	httpClient *http.Client
}

// RESTOption configures a RESTStore.
type RESTOption func(*RESTStore)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) RESTOption {
	return func(s *RESTStore) { s.httpClient = hc }
}

// WithBearerToken sends token on every request.
func WithBearerToken(token string) RESTOption {
	return func(s *RESTStore) { s.token = token }
}

// NewRESTStore creates a client for the backend at base.
func NewRESTStore(base string, opts ...RESTOption) *RESTStore {
	s := &RESTStore{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RESTStore) Get(ctx context.Context, kind model.Kind, id uuid.UUID) (model.Entity, error) {
	env, err := s.do(ctx, http.MethodGet, entityPath(kind, id), nil)
	if err != nil {
		return nil, err
	}
	return model.Decode(kind, env.Entity)
}

func (s *RESTStore) List(ctx context.Context, kind model.Kind) ([]model.Entity, error) {
	env, err := s.do(ctx, http.MethodGet, "/entities/"+string(kind), nil)
	if err != nil {
		return nil, err
	}
	out := make([]model.Entity, 0, len(env.Entities))
	for _, raw := range env.Entities {
		ent, err := model.Decode(kind, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, ent)
	}
	return out, nil
}

func (s *RESTStore) Create(ctx context.Context, ent model.Entity) (model.Entity, error) {
	env, err := s.do(ctx, http.MethodPost, "/entities/"+string(ent.Kind()), ent)
	if err != nil {
		return nil, err
	}
	return model.Decode(ent.Kind(), env.Entity)
}

func (s *RESTStore) Apply(ctx context.Context, cmd Command) (model.Entity, error) {
	if err := checkCommand(cmd, true); err != nil {
		return nil, err
	}
	data, err := model.Encode(cmd.Entity)
	if err != nil {
		return nil, err
	}
	body := PatchRequest{
		Action:            cmd.Action,
		Status:            cmd.Status,
		ExpectedStatus:    cmd.ExpectedStatus,
		ExpectedUpdatedAt: cmd.ExpectedUpdatedAt,
		Reason:            cmd.Reason,
		Entity:            data,
	}
	env, err := s.do(ctx, http.MethodPatch, entityPath(cmd.Kind, cmd.ID), body)
	if err != nil {
		return nil, err
	}
	if len(env.Entity) == 0 {
		// Backends may acknowledge without echoing the record.
		return cmd.Entity.Clone(), nil
	}
	return model.Decode(cmd.Kind, env.Entity)
}

func (s *RESTStore) Remove(ctx context.Context, cmd Command) error {
	if err := checkCommand(cmd, false); err != nil {
		return err
	}
	body := DeleteRequest{
		Action:            cmd.Action,
		ExpectedStatus:    cmd.ExpectedStatus,
		ExpectedUpdatedAt: cmd.ExpectedUpdatedAt,
		Reason:            cmd.Reason,
	}
	_, err := s.do(ctx, http.MethodDelete, entityPath(cmd.Kind, cmd.ID), body)
	return err
}

// Ping checks that the backend answers on its health route.
func (s *RESTStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("store health check returned %d", resp.StatusCode)
	}
	return nil
}

func entityPath(kind model.Kind, id uuid.UUID) string {
	return "/entities/" + string(kind) + "/" + id.String()
}

// do sends one request and decodes the envelope. A transport success with
// success:false is still an error.
func (s *RESTStore) do(ctx context.Context, method, path string, reqBody any) (*Envelope, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var env Envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		if strings.Contains(env.Error, "exists") {
			return nil, ErrExists
		}
		return nil, ErrStale
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("store error %d: %s", resp.StatusCode, firstNonEmpty(env.Error, string(raw)))
	case !env.Success:
		return nil, fmt.Errorf("store rejected %s %s: %s", method, path, firstNonEmpty(env.Error, "success=false"))
	}
	return &env, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
