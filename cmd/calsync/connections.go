package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/beekhof/lab-calendar-sync/internal/auth"

	"github.com/spf13/cobra"
)

func newConnectionsCommand(opts *rootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "connections",
		Short: "List the calendar connections of a lab member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app) error {
				conns, err := a.store.ListConnections(ctx, userID)
				if err != nil {
					return err
				}
				if a.json {
					return a.printJSON(conns)
				}

				w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tPROVIDER\tACCOUNT\tSTATUS\tCALENDARS\tLAST SYNC\tSYNC")
				for _, conn := range conns {
					lastSync := "never"
					if conn.LastSyncedAt != nil {
						lastSync = conn.LastSyncedAt.Local().Format(time.DateTime)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
						conn.ID, conn.Provider, conn.ProviderAccountName, conn.Status,
						len(conn.SelectedCalendars()), len(conn.Calendars), lastSync, strconv.FormatBool(conn.SyncEnabled))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "id of the lab member (required)")
	_ = cmd.MarkFlagRequired("user")

	cmd.AddCommand(newDisconnectCommand(opts))
	return cmd
}

func newDisconnectCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete CONNECTION_ID",
		Short: "Delete a connection with its tokens, cursors, logs and conflicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.store.DeleteConnection(ctx, args[0]); err != nil {
					return fmt.Errorf("failed to delete connection %s: %w", args[0], err)
				}
				if files, ok := a.tokens.(*auth.FileTokenStore); ok {
					if err := files.DeleteToken(ctx, args[0]); err != nil {
						return err
					}
				}
				fmt.Fprintf(a.out, "Deleted connection %s\n", args[0])
				return nil
			})
		},
	}
}

func newLogsCommand(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "logs CONNECTION_ID",
		Short: "Show the most recent sync logs of a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app) error {
				logs, err := a.store.ListLogs(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if a.json {
					return a.printJSON(logs)
				}

				w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tSTATUS\tIMPORTED\tUPDATED\tDELETED\tCONFLICTS\tERRORS\tDURATION")
				for _, entry := range logs {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%dms\n",
						entry.Timestamp.Local().Format(time.DateTime), entry.Status,
						entry.EventsImported, entry.EventsUpdated, entry.EventsDeleted,
						entry.EventsConflicted, len(entry.Errors), entry.DurationMs)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of logs to show")

	return cmd
}
