package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/beekhof/lab-calendar-sync/internal/conflict"

	"github.com/spf13/cobra"
)

func (a *app) registrar() *conflict.Registrar {
	return conflict.NewRegistrar(a.store)
}

func newConflictsCommand(opts *rootOptions) *cobra.Command {
	var userID string
	var all bool

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List conflicting edits of a lab member's events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app) error {
				conflicts, err := a.store.ListConflicts(ctx, userID, !all)
				if err != nil {
					return err
				}
				if a.json {
					return a.printJSON(conflicts)
				}

				w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tEVENT\tFIELDS\tDETECTED\tRESOLUTION")
				for _, c := range conflicts {
					resolution := string(c.Resolution)
					if resolution == "" {
						resolution = "-"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.EventID, strings.Join(c.ConflictFields, ","),
						c.DetectedAt.Local().Format(time.DateTime), resolution)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "id of the lab member (required)")
	cmd.Flags().BoolVar(&all, "all", false, "include resolved conflicts")
	_ = cmd.MarkFlagRequired("user")

	cmd.AddCommand(newResolveCommand(opts))
	return cmd
}

func newResolveCommand(opts *rootOptions) *cobra.Command {
	var resolution, resolvedBy string

	cmd := &cobra.Command{
		Use:   "resolve CONFLICT_ID",
		Short: "Record how a conflict was resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app) error {
				c, err := a.registrar().Resolve(ctx, args[0], resolution, resolvedBy)
				if err != nil {
					return err
				}
				if a.json {
					return a.printJSON(c)
				}
				fmt.Fprintf(a.out, "Conflict %s resolved as %s by %s\n", c.ID, c.Resolution, c.ResolvedBy)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&resolution, "resolution", "", "local, remote, merge or manual (required)")
	cmd.Flags().StringVar(&resolvedBy, "by", "", "id of the person resolving the conflict (required)")
	_ = cmd.MarkFlagRequired("resolution")
	_ = cmd.MarkFlagRequired("by")

	return cmd
}
