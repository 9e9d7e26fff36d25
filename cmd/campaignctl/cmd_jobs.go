package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/app"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

var (
	jobsStatus   string
	jobsProvider string
	jobsPage     int
	jobsPageSize int

	outcomeStatus   string
	outcomePage     int
	outcomePageSize int

	retryActorID string

	staleAfter time.Duration
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and retry campaign jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the company's campaign jobs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCompany(); err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.JobSvc.ListJobs(ctx, models.JobFilter{
				CompanyID: companyID,
				Provider:  models.Provider(jobsProvider),
				Status:    models.JobStatus(jobsStatus),
				Page:      jobsPage,
				PageSize:  jobsPageSize,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show a job record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCompany(); err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			job, err := a.JobSvc.GetJob(ctx, companyID, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		})
	},
}

var jobsRecipientsCmd = &cobra.Command{
	Use:   "recipients <job-id>",
	Short: "Page through a job's recipient outcomes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCompany(); err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.JobSvc.GetRecipientOutcomes(ctx, companyID, args[0], models.OutcomeFilter{
				Status:   models.OutcomeStatus(outcomeStatus),
				Page:     outcomePage,
				PageSize: outcomePageSize,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Dispatch a finished job again as a new job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCompany(); err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			result, err := a.Dispatch.Retry(ctx, companyID, retryActorID, args[0])
			if result != nil {
				if perr := printJSON(cmd.OutOrStdout(), result); perr != nil {
					return perr
				}
			}
			return err
		})
	},
}

var jobsFailStaleCmd = &cobra.Command{
	Use:   "fail-stale",
	Short: "Finalize as failed every job left sending longer than --older-than",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if staleAfter <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			ids, err := a.JobSvc.FailStale(ctx, time.Now().Add(-staleAfter))
			if perr := printJSON(cmd.OutOrStdout(), map[string][]string{"failed": ids}); perr != nil && err == nil {
				return perr
			}
			return err
		})
	},
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by job status")
	jobsListCmd.Flags().StringVar(&jobsProvider, "provider", "", "filter by provider")
	jobsListCmd.Flags().IntVar(&jobsPage, "page", 1, "page number")
	jobsListCmd.Flags().IntVar(&jobsPageSize, "page-size", 20, "jobs per page")

	jobsRecipientsCmd.Flags().StringVar(&outcomeStatus, "status", "", "filter by outcome status")
	jobsRecipientsCmd.Flags().IntVar(&outcomePage, "page", 1, "page number")
	jobsRecipientsCmd.Flags().IntVar(&outcomePageSize, "page-size", 100, "outcomes per page")

	jobsRetryCmd.Flags().StringVar(&retryActorID, "actor", "campaignctl", "actor recorded on the new job")

	jobsFailStaleCmd.Flags().DurationVar(&staleAfter, "older-than", time.Hour, "minimum time since the job was last updated")

	jobsCmd.AddCommand(jobsListCmd, jobsGetCmd, jobsRecipientsCmd, jobsRetryCmd, jobsFailStaleCmd)
}
