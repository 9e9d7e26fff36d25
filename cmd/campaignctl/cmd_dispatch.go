package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/app"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/queue"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/service"
)

var (
	dispatchFilePath string
	dispatchActorID  string
	dispatchEnqueue  bool
)

// dispatchCmd sends a campaign described in YAML, inline or through the worker queue
var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch a campaign from a YAML file",
	Long: `Dispatch reads a campaign (name, provider, message_template, subject,
template_mappings, list_ids, provider_config, sender_identity) and runs it
to completion, printing the job summary. With --enqueue the request is
validated and handed to the worker queue instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCompany(); err != nil {
			return err
		}
		var req service.CreateJobRequest
		if err := decodeYAMLFile(dispatchFilePath, &req); err != nil {
			return err
		}
		dispatchReq := req.ToDispatchRequest(companyID, dispatchActorID)

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if dispatchEnqueue {
				return enqueue(ctx, cmd, a, dispatchReq)
			}
			result, err := a.Dispatch.CreateAndDispatch(ctx, dispatchReq)
			if result != nil {
				if perr := printJSON(cmd.OutOrStdout(), result); perr != nil {
					return perr
				}
			}
			return err
		})
	},
}

func enqueue(ctx context.Context, cmd *cobra.Command, a *app.App, req models.DispatchRequest) error {
	if err := a.Dispatch.ValidateRequest(ctx, req); err != nil {
		return err
	}

	client, err := queue.NewRedisClient(queue.RedisConfig{
		URL:       cfg.Queue.RedisURL,
		QueueName: cfg.Queue.QueueName,
	}, log)
	if err != nil {
		return err
	}
	defer client.Close()

	job := &models.DispatchJob{
		RequestID:  uuid.NewString(),
		Request:    req,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := client.Publish(ctx, job); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), service.QueuedDispatchResult{RequestID: job.RequestID, Status: "queued"})
}

func init() {
	dispatchCmd.Flags().StringVarP(&dispatchFilePath, "file", "f", "", "YAML file describing the campaign")
	dispatchCmd.Flags().StringVar(&dispatchActorID, "actor", "campaignctl", "actor recorded on the job")
	dispatchCmd.Flags().BoolVar(&dispatchEnqueue, "enqueue", false, "hand the campaign to the worker queue")
	_ = dispatchCmd.MarkFlagRequired("file")
}
