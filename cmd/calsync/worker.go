package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beekhof/lab-calendar-sync/internal/jobs"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
)

func newWorkerCommand(opts *rootOptions) *cobra.Command {
	var noSchedule bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run queued syncs and the periodic sync schedule",
		Long: `Processes calendar:sync_connection tasks from Redis and, unless --no-schedule
is given, enqueues calendar:sync_all on the configured schedule. Run any number
of workers; a connection is only ever synced by one of them at a time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app) error {
				if a.cfg.RedisAddr == "" {
					return fmt.Errorf("redis_addr must be provided via --redis-addr flag, CALSYNC_REDIS_ADDR environment variable, or config file")
				}
				redisOpt := asynq.RedisClientOpt{Addr: a.cfg.RedisAddr}

				client := asynq.NewClient(redisOpt)
				defer client.Close()

				handlers := jobs.NewHandlers(a.syncer(), a.store, client, a.cfg.Verbose)
				mux := asynq.NewServeMux()
				handlers.Register(mux)

				server := jobs.NewServer(redisOpt, a.cfg.SyncConcurrency)
				if err := server.Start(mux); err != nil {
					return fmt.Errorf("failed to start worker: %w", err)
				}
				defer server.Shutdown()

				if !noSchedule {
					scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
					if _, err := jobs.RegisterSchedule(scheduler, a.cfg.SyncSchedule); err != nil {
						return err
					}
					if err := scheduler.Start(); err != nil {
						return fmt.Errorf("failed to start scheduler: %w", err)
					}
					defer scheduler.Shutdown()
					log.Printf("Scheduled %s every %q", jobs.TypeSyncAll, a.cfg.SyncSchedule)
				}

				log.Printf("Worker running against %s", a.cfg.RedisAddr)
				<-ctx.Done()
				log.Printf("Shutting down worker")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "only process tasks, do not enqueue the periodic sync")

	return cmd
}
