// Package lifecycle decides whether a moderation transition may happen and,
// if so, what the entity looks like afterwards. It performs no I/O: every
// write or notification is returned to the caller as an Effect.
package lifecycle

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
)

// Engine evaluates transitions against the machine tables.
type Engine struct {
	machines map[model.Kind]*Machine
	dealers  DealerLookup
	clock    func() time.Time
}

// NewEngine creates an Engine with the default tables. dealers may be nil,
// in which case guards that need the owning dealer fail.
func NewEngine(dealers DealerLookup) *Engine {
	return &Engine{
		machines: DefaultMachines(),
		dealers:  dealers,
		clock:    time.Now,
	}
}

// SetClock replaces the time source used to stamp lastUpdated.
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
}

// SetDealers replaces the dealer lookup consulted by listing guards.
func (e *Engine) SetDealers(dealers DealerLookup) {
	e.dealers = dealers
}

// IsTerminal reports whether ent is in a status no transition may leave.
func (e *Engine) IsTerminal(ent model.Entity) bool {
	m, ok := e.machines[ent.Kind()]
	return ok && m.terminal(ent.CurrentStatus())
}

// Allowed lists the transitions whose rule matches ent, ignoring guards.
func (e *Engine) Allowed(ent model.Entity, in model.Input) []model.TransitionName {
	m, ok := e.machines[ent.Kind()]
	if !ok || !m.declared(ent.CurrentStatus()) || m.terminal(ent.CurrentStatus()) {
		return nil
	}
	var out []model.TransitionName
	seen := make(map[model.TransitionName]bool)
	for _, r := range m.Rules {
		if seen[r.Transition] {
			continue
		}
		if _, ok := m.match(ent, r.Transition, in); ok {
			seen[r.Transition] = true
			out = append(out, r.Transition)
		}
	}
	return out
}

// Apply evaluates transition name on ent. The input entity is never
// modified; on success the returned Outcome holds a fresh snapshot and the
// effects the caller must execute. On failure the error is a
// *model.TransitionError with a blocking code.
func (e *Engine) Apply(ent model.Entity, name model.TransitionName, in model.Input) (*Outcome, error) {
	if ent == nil {
		return nil, &model.ErrValidation{Msg: "entity is required"}
	}
	fail := func(code model.ErrorCode, msg string) error {
		return &model.TransitionError{
			Code:       code,
			Kind:       ent.Kind(),
			ID:         ent.EntityID().String(),
			Transition: name,
			Status:     ent.CurrentStatus(),
			Msg:        msg,
		}
	}

	m, ok := e.machines[ent.Kind()]
	if !ok {
		return nil, fail(model.CodeInvalidTransition, "no lifecycle for this kind")
	}
	if !m.declared(ent.CurrentStatus()) {
		return nil, fail(model.CodeInvalidTransition, "unknown status")
	}
	if m.terminal(ent.CurrentStatus()) {
		return nil, fail(model.CodeTerminalState, "no transition leaves a terminal status")
	}
	rule, ok := m.match(ent, name, in)
	if !ok {
		return nil, fail(model.CodeInvalidTransition, "no rule matches")
	}

	gc := GuardContext{Entity: ent, Input: in, Dealers: e.dealers}
	for _, g := range rule.Guards {
		if ge := g.Check(gc); ge != nil {
			return nil, fail(ge.code, ge.msg)
		}
	}

	now := e.clock().UTC().Truncate(time.Microsecond)
	next := ent.Clone()
	if rule.Mutate != nil {
		rule.Mutate(next, in, now)
	}
	next.Touch(now)

	out := &Outcome{
		Transition: name,
		Previous:   ent,
		Entity:     next,
		Removed:    rule.Removes,
	}
	out.Effects = append(out.Effects, Persist{
		Kind:              ent.Kind(),
		ID:                ent.EntityID(),
		Action:            name,
		Status:            next.CurrentStatus(),
		ExpectedStatus:    ent.CurrentStatus(),
		ExpectedUpdatedAt: ent.Touched(),
		Reason:            in.TrimmedReason(),
		Entity:            next,
		Delete:            rule.Removes,
	})
	if rule.Event != "" {
		out.Effects = append(out.Effects, Notify{
			Event:     rule.Event,
			Kind:      ent.Kind(),
			EntityID:  ent.EntityID(),
			Recipient: next.Recipient(),
			Data:      notifyPayload(next),
			Reason:    in.TrimmedReason(),
		})
	}
	return out, nil
}

// RuleRow is one line of the exported rule table.
type RuleRow struct {
	Kind       model.Kind `json:"kind" yaml:"kind"`
	From       string     `json:"from" yaml:"from"`
	Transition string     `json:"transition" yaml:"transition"`
	Guards     []string   `json:"guards,omitempty" yaml:"guards,omitempty"`
	Result     string     `json:"result" yaml:"result"`
	Event      string     `json:"event,omitempty" yaml:"event,omitempty"`
}

// Describe exports the rule tables in kind order.
func (e *Engine) Describe() []RuleRow {
	var rows []RuleRow
	for _, kind := range model.Kinds {
		m, ok := e.machines[kind]
		if !ok {
			continue
		}
		for _, r := range m.Rules {
			row := RuleRow{
				Kind:       kind,
				From:       describeFrom(m, r),
				Transition: string(r.Transition),
				Result:     r.Note,
				Event:      string(r.Event),
			}
			for _, g := range r.Guards {
				row.Guards = append(row.Guards, g.Name)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func describeFrom(m *Machine, r Rule) string {
	if len(r.From) > 0 {
		return strings.Join(r.From, ", ")
	}
	var open []string
	for status, st := range m.States {
		if !st.Terminal {
			open = append(open, status)
		}
	}
	sort.Strings(open)
	return fmt.Sprintf("any non-terminal (%s)", strings.Join(open, ", "))
}
