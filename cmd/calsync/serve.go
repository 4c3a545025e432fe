package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/beekhof/lab-calendar-sync/internal/httpapi"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Flags.ListenAddr = listenAddr
			return runWithApp(cmd, opts, func(ctx context.Context, a *app) error {
				if a.cfg.JWTSecret == "" {
					return fmt.Errorf("jwt_secret must be provided via CALSYNC_JWT_SECRET environment variable or config file")
				}

				server := httpapi.NewServer(a.syncer(), a.store, a.registrar(), []byte(a.cfg.JWTSecret))

				errs := make(chan error, 1)
				go func() {
					errs <- server.Start(a.cfg.ListenAddr)
				}()

				select {
				case err := <-errs:
					return err
				case <-ctx.Done():
				}

				log.Printf("Shutting down HTTP API")
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides CALSYNC_LISTEN_ADDR, default :8080)")

	return cmd
}
