package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beekhof/lab-calendar-sync/internal/jobs"
	"github.com/beekhof/lab-calendar-sync/internal/model"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	var userID string
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "sync [CONNECTION_ID...]",
		Short: "Sync calendar connections of a lab member",
		Long: `Runs an import of the given connections, or of every sync-enabled connection
of the user when none are given. Each run appends a sync log.

With --enqueue the syncs are handed to the worker instead of running here.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app) error {
				if enqueue {
					return enqueueSyncs(ctx, a, userID, args)
				}

				syncer := a.syncer()
				var logs []*model.CalendarSyncLog
				if len(args) == 0 {
					var err error
					if logs, err = syncer.SyncUser(ctx, userID); err != nil {
						return err
					}
				} else {
					for _, connectionID := range args {
						entry, err := syncer.SyncConnection(ctx, userID, connectionID)
						if err != nil {
							return err
						}
						logs = append(logs, entry)
					}
				}
				return reportSyncs(a, logs)
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "id of the lab member whose connections are synced (required)")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "enqueue the syncs for the worker instead of running them")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// reportSyncs prints the logs and fails when any run failed outright.
func reportSyncs(a *app, logs []*model.CalendarSyncLog) error {
	if a.json {
		if err := a.printJSON(logs); err != nil {
			return err
		}
	}

	failed := 0
	for _, entry := range logs {
		if entry.Status == model.SyncLogFailed {
			failed++
		}
		if a.json {
			continue
		}
		fmt.Fprintf(a.out, "%s (%s): %s, imported %d, updated %d, deleted %d, conflicts %d, %dms\n",
			entry.ConnectionID, entry.Provider, entry.Status, entry.EventsImported, entry.EventsUpdated,
			entry.EventsDeleted, entry.EventsConflicted, entry.DurationMs)
		for _, syncErr := range entry.Errors {
			fmt.Fprintf(a.out, "  - [%s] %s: %s\n", syncErr.Action, syncErr.EventTitle, syncErr.Error)
		}
	}

	if len(logs) == 0 {
		log.Printf("No sync-enabled connections")
		return nil
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sync(s) failed", failed, len(logs))
	}
	return nil
}

func enqueueSyncs(ctx context.Context, a *app, userID string, connectionIDs []string) error {
	if a.cfg.RedisAddr == "" {
		return fmt.Errorf("--enqueue needs redis_addr to be configured")
	}

	if len(connectionIDs) == 0 {
		conns, err := a.store.ListConnections(ctx, userID)
		if err != nil {
			return err
		}
		for _, conn := range conns {
			if conn.SyncEnabled {
				connectionIDs = append(connectionIDs, conn.ID)
			}
		}
	}

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: a.cfg.RedisAddr})
	defer client.Close()

	for _, connectionID := range connectionIDs {
		ok, err := jobs.EnqueueSyncConnection(ctx, client, userID, connectionID)
		if err != nil {
			return err
		}
		if ok {
			log.Printf("[%s] sync enqueued", connectionID)
		} else {
			log.Printf("[%s] sync already pending", connectionID)
		}
	}
	return nil
}
