// cmd/seed populates a running console with demo dealers, listings and reports.
//
// Seeding goes through the admin API so every entity passes the same
// validation, lifecycle rules and audit trail as operator traffic. Running
// it twice creates a second copy of the data.
//
// Usage:
//
//	go run ./cmd/seed
//	CONSOLE_URL=http://localhost:8080 CONSOLE_TOKEN=... go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
	"github.com/jmerrifield20/marketplace-console/pkg/client"
)

const (
	defaultURL = "http://localhost:8080"
	operatorID = "seed"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	base := os.Getenv("CONSOLE_URL")
	if base == "" {
		base = defaultURL
	}
	opts := []client.Option{client.WithOperator(operatorID)}
	if token := os.Getenv("CONSOLE_TOKEN"); token != "" {
		opts = append(opts, client.WithBearerToken(token))
	}
	c, err := client.New(base, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dealers, err := seedDealers(ctx, c)
	if err != nil {
		return fmt.Errorf("seed dealers: %w", err)
	}
	listings, err := seedListings(ctx, c, dealers)
	if err != nil {
		return fmt.Errorf("seed listings: %w", err)
	}
	if err := seedReports(ctx, c, listings); err != nil {
		return fmt.Errorf("seed reports: %w", err)
	}

	fmt.Println("\nseed complete")
	return nil
}

type dealerSeed struct {
	dealer  model.Dealer
	approve bool
}

func seedDealers(ctx context.Context, c *client.Client) ([]client.Entity, error) {
	seeds := []dealerSeed{
		{approve: true, dealer: model.Dealer{
			Name: "Harbour City Motors", ContactName: "Priya Natarajan",
			Email: "priya@harbourcitymotors.example", Phone: "+61 2 5550 1234",
			BusinessRegistration: "ABN 51 824 753 556",
			Subscription:         model.Subscription{PlanID: "pro", MonthlyFee: 149},
		}},
		{approve: true, dealer: model.Dealer{
			Name: "Northside Auto Group", ContactName: "Tom Becker",
			Email: "tom@northsideauto.example",
			BusinessRegistration: "ABN 33 102 417 032",
			Subscription:         model.Subscription{PlanID: "basic", MonthlyFee: 49},
		}},
		{dealer: model.Dealer{
			Name: "Budget Wheels", ContactName: "Sam Okafor",
			Email: "sam@budgetwheels.example",
			BusinessRegistration: "ABN 12 345 678 901",
		}},
	}

	var approved []client.Entity
	for _, s := range seeds {
		ent, err := c.Create(ctx, "dealers", s.dealer)
		if err != nil {
			return nil, fmt.Errorf("create %q: %w", s.dealer.Name, err)
		}
		fmt.Printf("  dealer   %-28s %s\n", s.dealer.Name, ent.ID())
		if !s.approve {
			continue
		}
		res, err := c.Transition(ctx, "dealers", ent.ID(), string(model.TransitionApprove), client.TransitionInput{})
		if err != nil {
			return nil, fmt.Errorf("approve %q: %w", s.dealer.Name, err)
		}
		approved = append(approved, res.Entity)
	}
	return approved, nil
}

func seedListings(ctx context.Context, c *client.Client, dealers []client.Entity) ([]client.Entity, error) {
	vehicles := []model.Vehicle{
		{Make: "Toyota", Model: "Corolla", Year: 2021, Mileage: 31000, Price: 24990, BodyType: "hatch"},
		{Make: "Mazda", Model: "CX-5", Year: 2019, Mileage: 64000, Price: 27500, BodyType: "suv"},
		{Make: "Ford", Model: "Ranger", Year: 2022, Mileage: 18000, Price: 52990, BodyType: "ute"},
		{Make: "Hyundai", Model: "i30", Year: 2018, Mileage: 88000, Price: 15990, BodyType: "hatch"},
	}

	var out []client.Entity
	for i, v := range vehicles {
		owner := dealers[i%len(dealers)]
		dealerID, err := uuid.Parse(owner.ID())
		if err != nil {
			return nil, err
		}
		l := model.Listing{
			DealerID: dealerID,
			Title:    fmt.Sprintf("%d %s %s", v.Year, v.Make, v.Model),
			Vehicle:  v,
		}
		ent, err := c.Create(ctx, "listings", l)
		if err != nil {
			return nil, fmt.Errorf("create %q: %w", l.Title, err)
		}
		fmt.Printf("  listing  %-28s %s\n", l.Title, ent.ID())
		out = append(out, ent)
	}

	res, err := c.ApproveAllPending(ctx, "")
	if err != nil {
		return nil, err
	}
	fmt.Printf("  approved %d of %d pending listings\n", res.Succeeded, res.Matched)
	last := out[len(out)-1]
	if _, err := c.Transition(ctx, "listings", last.ID(), string(model.TransitionPutUnderReview), client.TransitionInput{
		Reason: "odometer reading disputed",
	}); err != nil {
		return nil, fmt.Errorf("review %s: %w", last.ID(), err)
	}
	return out, nil
}

func seedReports(ctx context.Context, c *client.Client, listings []client.Entity) error {
	reports := []model.Report{
		{Severity: model.SeverityCritical, Reason: "Suspected stolen vehicle", Category: "fraud"},
		{Severity: model.SeverityHigh, Reason: "Price does not match advert", Category: "misleading"},
		{Severity: model.SeverityLow, Reason: "Blurry photos", Category: "quality"},
	}
	for i, r := range reports {
		target := listings[i%len(listings)]
		r.Target = model.ReportTarget{Type: model.TargetListing, ID: target.ID(), Title: target.Title()}
		r.Reporter = model.Reporter{
			ID:    fmt.Sprintf("user-%03d", i+1),
			Name:  fmt.Sprintf("Buyer %d", i+1),
			Email: fmt.Sprintf("buyer%d@mail.example", i+1),
		}
		ent, err := c.Create(ctx, "reports", r)
		if err != nil {
			return fmt.Errorf("create report %q: %w", r.Reason, err)
		}
		fmt.Printf("  report   %-28s %s\n", string(r.Severity)+": "+r.Reason, ent.ID())
	}
	return nil
}
