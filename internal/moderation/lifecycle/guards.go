package lifecycle

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
)

// DealerLookup gives guards read access to dealers in the working set.
type DealerLookup interface {
	Dealer(id uuid.UUID) (*model.Dealer, bool)
}

// DealerMap is a DealerLookup over a plain map.
type DealerMap map[uuid.UUID]*model.Dealer

func (m DealerMap) Dealer(id uuid.UUID) (*model.Dealer, bool) {
	d, ok := m[id]
	return d, ok
}

// GuardContext is what a guard may inspect.
type GuardContext struct {
	Entity  model.Entity
	Input   model.Input
	Dealers DealerLookup
}

// guardError is returned by guard checks; the engine turns it into a
// *model.TransitionError carrying entity details.
type guardError struct {
	code model.ErrorCode
	msg  string
}

func (g *guardError) Error() string { return g.msg }

// Guard is a named precondition on a rule.
type Guard struct {
	Name  string
	Check func(gc GuardContext) *guardError
}

func failed(format string, args ...any) *guardError {
	return &guardError{code: model.CodeGuardFailed, msg: fmt.Sprintf(format, args...)}
}

var requireReason = Guard{
	Name: "reason",
	Check: func(gc GuardContext) *guardError {
		if gc.Input.TrimmedReason() == "" {
			return &guardError{code: model.CodeMissingReason, msg: "a non-empty reason is required"}
		}
		return nil
	},
}

var requireOperator = Guard{
	Name: "operator",
	Check: func(gc GuardContext) *guardError {
		if gc.Input.OperatorID == "" {
			return failed("an operator id is required")
		}
		return nil
	},
}

var requireVerificationPending = Guard{
	Name: "verification=pending",
	Check: func(gc GuardContext) *guardError {
		d := gc.Entity.(*model.Dealer)
		if d.VerificationStatus != model.VerificationPending {
			return failed("verification status is %q, want %q", d.VerificationStatus, model.VerificationPending)
		}
		return nil
	},
}

var requirePlan = Guard{
	Name: "plan",
	Check: func(gc GuardContext) *guardError {
		if gc.Input.PlanID == "" {
			return failed("a target plan id is required")
		}
		if gc.Input.MonthlyFee < 0 {
			return failed("monthly fee must not be negative")
		}
		return nil
	},
}

// requireDealerApproved keeps listings of non-approved dealers out of the
// active state.
var requireDealerApproved = Guard{
	Name: "dealer=approved",
	Check: func(gc GuardContext) *guardError {
		l := gc.Entity.(*model.Listing)
		if gc.Dealers == nil {
			return failed("owning dealer %s is not loaded", l.DealerID)
		}
		d, ok := gc.Dealers.Dealer(l.DealerID)
		if !ok {
			return failed("owning dealer %s is not loaded", l.DealerID)
		}
		if d.AccountStatus != model.DealerApproved {
			return failed("owning dealer %s is %s", d.ID, d.AccountStatus)
		}
		return nil
	},
}
