// Package bulk applies one transition to every entity matching a predicate.
package bulk

import (
	"context"

	"github.com/jmerrifield20/marketplace-console/internal/moderation/lifecycle"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
	"go.uber.org/zap"
)

// Predicate selects the entities a bulk operation targets.
type Predicate func(model.Entity) bool

// CommitFunc persists one successful outcome and returns the authoritative
// snapshot. A nil CommitFunc leaves persistence to the caller.
type CommitFunc func(ctx context.Context, out *lifecycle.Outcome) (model.Entity, error)

// Failure records why one entity was not transitioned.
type Failure struct {
	ID      string          `json:"id"`
	SubType string          `json:"sub_type"`
	Code    model.ErrorCode `json:"code"`
	Error   string          `json:"error"`
}

// Result summarises a bulk run.
type Result struct {
	Transition model.TransitionName `json:"transition"`
	// NoOp is set when nothing matched; no effects were produced.
	NoOp        bool           `json:"no_op"`
	Matched     int            `json:"matched"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	SucceededBy map[string]int `json:"succeeded_by"`
	FailedBy    map[string]int `json:"failed_by"`
	Failures    []Failure      `json:"failures,omitempty"`
	// Cancelled is set when ctx ended the run early; Remaining matches were
	// never attempted.
	Cancelled bool `json:"cancelled,omitempty"`
	Remaining int  `json:"remaining,omitempty"`

	Outcomes      []*lifecycle.Outcome `json:"-"`
	Notifications []lifecycle.Notify   `json:"-"`
}

// Coordinator runs bulk operations through an Engine.
type Coordinator struct {
	engine *lifecycle.Engine
	logger *zap.Logger
}

// New creates a Coordinator.
func New(engine *lifecycle.Engine, logger *zap.Logger) *Coordinator {
	return &Coordinator{engine: engine, logger: logger}
}

// Apply runs transition on every entity matching pred, in order. Individual
// failures are collected and do not stop the batch. ctx is checked between
// entities; items committed before cancellation stay committed.
func (c *Coordinator) Apply(ctx context.Context, entities []model.Entity, pred Predicate, name model.TransitionName, in model.Input, commit CommitFunc) *Result {
	res := &Result{
		Transition:  name,
		SucceededBy: make(map[string]int),
		FailedBy:    make(map[string]int),
	}

	var matches []model.Entity
	for _, ent := range entities {
		if pred == nil || pred(ent) {
			matches = append(matches, ent)
		}
	}
	res.Matched = len(matches)
	if len(matches) == 0 {
		res.NoOp = true
		return res
	}

	for i, ent := range matches {
		if err := ctx.Err(); err != nil {
			res.Cancelled = true
			res.Remaining = len(matches) - i
			c.logger.Warn("bulk run cancelled",
				zap.String("transition", string(name)),
				zap.Int("done", i),
				zap.Int("remaining", res.Remaining),
			)
			break
		}

		sub := ent.SubType()
		out, err := c.engine.Apply(ent, name, in)
		if err == nil && commit != nil {
			var fresh model.Entity
			fresh, err = commit(ctx, out)
			if err == nil && fresh != nil {
				out.Entity = fresh
			}
		}
		if err != nil {
			res.fail(ent, sub, err)
			continue
		}

		res.Succeeded++
		res.SucceededBy[sub]++
		res.Outcomes = append(res.Outcomes, out)
		if n, ok := out.Notification(); ok {
			res.Notifications = append(res.Notifications, n)
		}
	}

	c.logger.Info("bulk run complete",
		zap.String("transition", string(name)),
		zap.Int("matched", res.Matched),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
	)
	return res
}

func (r *Result) fail(ent model.Entity, sub string, err error) {
	code := model.CodeOf(err)
	if code == "" {
		// Anything not raised by the engine came from the commit.
		code = model.CodePersistenceFailure
	}
	r.Failed++
	r.FailedBy[sub]++
	r.Failures = append(r.Failures, Failure{
		ID:      ent.EntityID().String(),
		SubType: sub,
		Code:    code,
		Error:   err.Error(),
	})
}
