// Package client is the Go SDK for the marketplace moderation console.
//
// Obtain an operator token once and reuse the client:
//
//	c := client.MustNew("https://console.internal.example")
//	if _, err := c.Login(ctx, adminSecret, "op-42", "Jordan"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Single transitions
//
//	res, err := c.Transition(ctx, "dealer", id, "ban", client.TransitionInput{
//	    Reason: "chargeback fraud",
//	})
//	switch client.CodeOf(err) {
//	case "missing_reason", "guard_failed", "terminal_state":
//	    // the console refused the move; nothing changed
//	}
//
// A transition that succeeded but whose notification could not be delivered
// still returns a result; NotificationError explains what went wrong.
//
// # Bulk operations
//
//	sum, err := c.ResolveAllCritical(ctx, "")
//	fmt.Println(sum.Succeeded, sum.SucceededBy)
//
// Bulk results are summaries: a run with nothing to do reports NoOp.
package client
