package store

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
)

// PatchRequest is the body of PATCH /entities/{kind}/{id}.
type PatchRequest struct {
	Action            model.TransitionName `json:"action"`
	Status            string               `json:"status"`
	ExpectedStatus    string               `json:"expected_status"`
	ExpectedUpdatedAt time.Time            `json:"expected_updated_at"`
	Reason            string               `json:"reason,omitempty"`
	Entity            json.RawMessage      `json:"entity"`
}

// DeleteRequest is the optional body of DELETE /entities/{kind}/{id}.
type DeleteRequest struct {
	Action            model.TransitionName `json:"action"`
	ExpectedStatus    string               `json:"expected_status"`
	ExpectedUpdatedAt time.Time            `json:"expected_updated_at"`
	Reason            string               `json:"reason,omitempty"`
}

// Envelope wraps every store response.
type Envelope struct {
	Success  bool              `json:"success"`
	Entity   json.RawMessage   `json:"entity,omitempty"`
	Entities []json.RawMessage `json:"entities,omitempty"`
	Error    string            `json:"error,omitempty"`
}
