package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
)

var subjects = map[model.EventType]string{
	model.EventUserSuspended:       "Your dealer account has been suspended",
	model.EventUserReactivated:     "Your dealer account has been reactivated",
	model.EventUserCreated:         "Welcome to the marketplace",
	model.EventDealerApproved:      "Your dealer application was approved",
	model.EventDealerRejected:      "Your dealer application was not approved",
	model.EventDealerBanned:        "Your dealer account has been closed",
	model.EventDealerDeleted:       "Your dealer account has been removed",
	model.EventSubscriptionChanged: "Your subscription plan has changed",
	model.EventListingApproved:     "Your listing %q is live",
	model.EventListingRejected:     "Your listing %q was rejected",
	model.EventListingSuspended:    "Your listing %q has been suspended",
	model.EventListingReactivated:  "Your listing %q is live again",
	model.EventListingUnderReview:  "Your listing %q is under review",
	model.EventListingDeleted:      "Your listing %q has been removed",
}

// EmailDispatcher renders notices as plain-text email to the recipient.
type EmailDispatcher struct {
	mailer Mailer
	from   string
}

// NewEmailDispatcher creates an EmailDispatcher. from is used in the
// signature line.
func NewEmailDispatcher(mailer Mailer, from string) *EmailDispatcher {
	return &EmailDispatcher{mailer: mailer, from: from}
}

func (d *EmailDispatcher) Dispatch(ctx context.Context, n Notice) error {
	if n.Recipient.Email == "" {
		return fmt.Errorf("notice %s for %s %s has no recipient email", n.Event, n.Kind, n.EntityID)
	}
	subject, body := Render(n, d.from)
	if err := d.mailer.Send(ctx, n.Recipient.Email, subject, body); err != nil {
		return fmt.Errorf("send %s email: %w", n.Event, err)
	}
	return nil
}

// Render returns the subject and body for n.
func Render(n Notice, signer string) (string, string) {
	subject, ok := subjects[n.Event]
	if !ok {
		subject = "Update on your account"
	}
	if strings.Contains(subject, "%q") {
		subject = fmt.Sprintf(subject, n.Data["title"])
	}

	var b strings.Builder
	name := n.Recipient.Name
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hello %s,\n\n%s.\n", name, subject)
	if n.Reason != "" {
		fmt.Fprintf(&b, "\nReason: %s\n", n.Reason)
	}
	if plan := n.Data["plan_id"]; plan != "" && n.Event == model.EventSubscriptionChanged {
		fmt.Fprintf(&b, "\nNew plan: %s\n", plan)
	}
	if signer != "" {
		fmt.Fprintf(&b, "\n%s\n", signer)
	}
	return subject, b.String()
}
