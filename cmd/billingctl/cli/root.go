package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
)

// JobsClient is the queue surface used by the jobs commands.
type JobsClient interface {
	Trigger(ctx context.Context, name, target string) (*asynq.TaskInfo, error)
	InspectQueues(ctx context.Context) ([]QueueStats, error)
	ListRetries(ctx context.Context, size int) ([]*asynq.TaskInfo, error)
	Close() error
}

// Env builds the runtime collaborators lazily so --help never dials a database.
type Env struct {
	Repairer func(ctx context.Context) (Repairer, func(), error)
	Jobs     func() (JobsClient, error)
}

// NewRootCommand assembles the billingctl command tree.
func NewRootCommand(env Env) *cobra.Command {
	root := &cobra.Command{
		Use:   "billingctl",
		Short: "Operator tooling for the billing engine",
		Long: `billingctl repairs installment groups and manages billing background jobs.

Examples:
  billingctl repair 42
  billingctl repair --all --dry-run
  billingctl jobs trigger billing:group-repair
  billingctl jobs stats --json
  billingctl jobs retries --size 20`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRepairCommand(env), newJobsCommand(env))
	return root
}

func newRepairCommand(env Env) *cobra.Command {
	var opts RepairOptions
	cmd := &cobra.Command{
		Use:   "repair [billing-id]",
		Short: "Renumber an inconsistent installment group",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid billing id %q", args[0])
				}
				opts.BillingID = id
			}
			repairer, release, err := env.Repairer(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			if code := RepairCommand(cmd.Context(), repairer, opts); code != ExitOK {
				return &ExitError{Code: code}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.All, "all", false, "repair every inconsistent group")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "only report groups that need repair")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "print a JSON summary")
	return cmd
}

func newJobsCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage billing background jobs",
	}

	var target string
	trigger := &cobra.Command{
		Use:   "trigger <job>",
		Short: "Enqueue a job immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := env.Jobs()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			info, err := client.Trigger(cmd.Context(), args[0], target)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().StringVar(&target, "billing-id", "all", "billing definition to target")

	var jsonOut bool
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := env.Jobs()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			queues, err := client.InspectQueues(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(queues)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
			for _, q := range queues {
				_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", q.Queue, q.Pending, q.Active, q.Scheduled, q.Retry, q.Archived)
			}
			return w.Flush()
		},
	}
	stats.Flags().BoolVar(&jsonOut, "json", false, "print JSON")

	var size int
	retries := &cobra.Command{
		Use:   "retries",
		Short: "List cash-flow deliveries waiting for redelivery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := env.Jobs()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			tasks, err := client.ListRetries(cmd.Context(), size)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tRETRIED\tNEXT\tLAST ERROR")
			for _, t := range tasks {
				_, _ = fmt.Fprintf(w, "%s\t%d/%d\t%s\t%s\n", t.ID, t.Retried, t.MaxRetry, t.NextProcessAt.Format(time.RFC3339), t.LastErr)
			}
			return w.Flush()
		},
	}
	retries.Flags().IntVar(&size, "size", 10, "number of tasks to list")

	cmd.AddCommand(trigger, stats, retries)
	return cmd
}

// ExitError carries a non-zero exit code out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return "exit status " + strconv.Itoa(e.Code)
}
