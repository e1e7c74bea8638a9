package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/jmerrifield20/marketplace-console/pkg/client"
	"gopkg.in/yaml.v3"
)

// printStructured writes v as JSON or YAML depending on --format.
func printStructured(v any) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", outputFormat)
	}
}

func printEntities(items []client.Entity) error {
	if outputFormat != "table" {
		return printStructured(items)
	}
	if len(items) == 0 {
		fmt.Println("No results.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTITLE\tDETAIL")
	for _, e := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID(), e.Status(), e.Title(), detail(e))
	}
	return w.Flush()
}

// detail picks the most useful secondary field for a row.
func detail(e client.Entity) string {
	for _, k := range []string{"severity", "email", "dealer_name"} {
		if v, ok := e[k]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}

func printEntityDetail(e client.Entity) {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(w, "%s:\t%v\n", k, e[k])
	}
	_ = w.Flush()
}

func printBulk(res *client.BulkResult) error {
	if outputFormat != "table" {
		return printStructured(res)
	}
	if res.NoOp {
		fmt.Printf("Nothing to %s.\n", res.Transition)
		return nil
	}
	fmt.Printf("%s: %d matched, %d succeeded, %d failed\n", res.Transition, res.Matched, res.Succeeded, res.Failed)
	if res.Cancelled {
		fmt.Printf("  cancelled with %d remaining\n", res.Remaining)
	}
	if len(res.Failures) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nID\tTYPE\tCODE\tERROR")
	for _, f := range res.Failures {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.ID, f.SubType, f.Code, f.Error)
	}
	return w.Flush()
}

func printRules(rules []client.Rule) error {
	if outputFormat != "table" {
		return printStructured(rules)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tFROM\tTRANSITION\tGUARDS\tRESULT\tEVENT")
	for _, r := range rules {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Kind, r.From, r.Transition, strings.Join(r.Guards, ","), r.Result, r.Event)
	}
	return w.Flush()
}

func printAudit(ov *client.AuditOverview) error {
	if outputFormat != "table" {
		return printStructured(ov)
	}
	fmt.Printf("Entries: %d\nRoot:    %s\n\n", ov.Entries, ov.Root)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDX\tTIME\tKIND\tENTITY\tACTION\tFROM\tTO\tACTOR")
	for _, e := range ov.Recent {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Index, e.Timestamp.Format("2006-01-02 15:04:05"), e.Kind, e.EntityID,
			e.Action, e.FromStatus, e.ToStatus, e.Actor)
	}
	return w.Flush()
}
