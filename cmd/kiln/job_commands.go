package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kiln/internal/api"
	"kiln/internal/ipc"
)

var jobColumns = []column{
	{title: "ID"},
	{title: "Status"},
	{title: "Progress", alignRight: true},
	{title: "Provider"},
	{title: "Media"},
	{title: "Prompt"},
	{title: "Created"},
}

func newJobCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newSubmitCommand(ctx),
		newListCommand(ctx),
		newShowCommand(ctx),
		newCancelCommand(ctx),
		newRetryCommand(ctx),
		newClearCommand(ctx),
	}
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var req ipc.SubmitRequest
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "submit <prompt>",
		Short: "Submit a generation request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Prompt = strings.TrimSpace(strings.Join(args, " "))
			if req.Prompt == "" {
				return errors.New("prompt is empty")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					return errors.New("daemon accepted the request but created no jobs")
				}
				if len(resp.Jobs) == 1 {
					fmt.Fprintf(out, "Submitted job %s\n", resp.Jobs[0].ID)
					return nil
				}
				fmt.Fprintf(out, "Submitted %d jobs in batch %s\n", len(resp.Jobs), resp.Jobs[0].BatchID)
				for _, job := range resp.Jobs {
					fmt.Fprintf(out, "  %s\n", job.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&req.MediaType, "media", "m", "", "Media type: image or video (default image)")
	cmd.Flags().StringVarP(&req.ProviderID, "provider", "p", "", "Provider id (default from config)")
	cmd.Flags().StringVar(&req.Model, "model", "", "Model id (default from config)")
	cmd.Flags().StringVarP(&req.AspectRatio, "aspect", "a", "", "Aspect ratio such as 16:9")
	cmd.Flags().IntVarP(&req.Duration, "duration", "d", 0, "Video duration in seconds")
	cmd.Flags().IntVarP(&req.BatchSize, "batch", "n", 0, "Number of jobs to create (1-10)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobList(statuses)
				if err != nil {
					return err
				}
				jobs := api.SortJobsNewestFirst(resp.Jobs)
				if asJSON {
					if jobs == nil {
						jobs = []api.Job{}
					}
					return writeJSON(cmd, jobs)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(jobColumns, buildJobRows(jobs)))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by job status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job by id or unique id prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobShow(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Job)
				}
				for _, line := range jobDetailLines(resp.Job) {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or processing job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobCancel(args[0])
				if err != nil {
					return err
				}
				job := resp.Job
				switch job.Status {
				case "failed", "completed":
					if job.Error != "" {
						fmt.Fprintf(cmd.OutOrStdout(), "Job %s is %s: %s\n", api.ShortID(job.ID), job.Status, job.Error)
						return nil
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s is already %s\n", api.ShortID(job.ID), job.Status)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for job %s\n", api.ShortID(job.ID))
				}
				return nil
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "retry [id...]",
		Short: "Re-enqueue failed jobs (all failed jobs when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobRetry(args)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(out, "No failed jobs to retry")
					return nil
				}
				fmt.Fprintf(out, "Retrying %d jobs\n", len(resp.Jobs))
				for _, job := range resp.Jobs {
					fmt.Fprintf(out, "  %s\n", job.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove completed and failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobClear()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d jobs\n", resp.Removed)
				return nil
			})
		},
	}
}
