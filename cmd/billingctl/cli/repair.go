package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
)

// Repairer finds and fixes inconsistent installment groups.
type Repairer interface {
	FindInconsistentGroups(ctx context.Context) ([]int64, error)
	RepairGroup(ctx context.Context, billingID int64) (billing.RepairResult, error)
}

// RepairOptions defines available flags for the repair command.
type RepairOptions struct {
	BillingID  int64
	All        bool
	DryRun     bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RepairSummary describes the JSON response for repair.
type RepairSummary struct {
	DryRun       bool                   `json:"dry_run"`
	Inconsistent []int64                `json:"inconsistent"`
	Results      []billing.RepairResult `json:"results"`
	Failed       map[int64]string       `json:"failed,omitempty"`
}

// Exit codes returned by RepairCommand.
const (
	ExitOK           = 0
	ExitError        = 1
	ExitInconsistent = 10
)

// RepairCommand runs the repair workflow and prints the outcome. A dry run
// exits with ExitInconsistent when any group needs repair.
func RepairCommand(ctx context.Context, repairer Repairer, opts RepairOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if !opts.All && opts.BillingID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "repair: a positive billing id or --all is required")
		return ExitError
	}
	if opts.All && opts.BillingID > 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "repair: billing id and --all are mutually exclusive")
		return ExitError
	}

	summary := RepairSummary{DryRun: opts.DryRun, Inconsistent: []int64{}, Results: []billing.RepairResult{}}
	targets := []int64{opts.BillingID}
	if opts.All || opts.DryRun {
		ids, err := repairer.FindInconsistentGroups(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "repair: %v\n", err)
			return ExitError
		}
		if opts.All {
			targets = ids
			summary.Inconsistent = append(summary.Inconsistent, ids...)
		} else {
			for _, id := range ids {
				if id == opts.BillingID {
					summary.Inconsistent = append(summary.Inconsistent, id)
				}
			}
		}
	}

	if !opts.DryRun {
		for _, id := range targets {
			res, err := repairer.RepairGroup(ctx, id)
			if err != nil {
				if summary.Failed == nil {
					summary.Failed = make(map[int64]string)
				}
				summary.Failed[id] = err.Error()
				continue
			}
			summary.Results = append(summary.Results, res)
		}
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "repair: encode json: %v\n", err)
			return ExitError
		}
	} else {
		renderRepairHuman(opts.Stdout, summary)
	}

	switch {
	case len(summary.Failed) > 0:
		return ExitError
	case opts.DryRun && len(summary.Inconsistent) > 0:
		return ExitInconsistent
	}
	return ExitOK
}

func renderRepairHuman(out io.Writer, summary RepairSummary) {
	if summary.DryRun {
		if len(summary.Inconsistent) == 0 {
			_, _ = fmt.Fprintln(out, "All installment groups are consistent.")
			return
		}
		_, _ = fmt.Fprintf(out, "%d group(s) need repair:\n", len(summary.Inconsistent))
		for _, id := range summary.Inconsistent {
			_, _ = fmt.Fprintf(out, " - billing %d\n", id)
		}
		return
	}
	for _, res := range summary.Results {
		state := "already consistent"
		if res.Repaired {
			state = "repaired"
		}
		_, _ = fmt.Fprintf(out, "billing %d: %s (%d rows)\n", res.DefinitionID, state, res.Rows)
	}
	for id, msg := range summary.Failed {
		_, _ = fmt.Fprintf(out, "billing %d: failed: %s\n", id, msg)
	}
	if len(summary.Results) == 0 && len(summary.Failed) == 0 {
		_, _ = fmt.Fprintln(out, "Nothing to repair.")
	}
}
