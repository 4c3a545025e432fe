package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/beekhof/lab-calendar-sync/internal/auth"
	calclient "github.com/beekhof/lab-calendar-sync/internal/calendar"
	"github.com/beekhof/lab-calendar-sync/internal/model"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

func newConnectCommand(opts *rootOptions) *cobra.Command {
	var userID string
	var allCalendars bool

	cmd := &cobra.Command{
		Use:   "connect google|microsoft",
		Short: "Connect a provider account through the browser",
		Long: `Starts the OAuth authorization flow on a loopback redirect, records the
account's calendars and stores the granted tokens. Only the primary calendar is
selected unless --all-calendars is given.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(model.ProviderGoogle), string(model.ProviderMicrosoft)},
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := model.Provider(args[0])
			if !provider.Valid() {
				return fmt.Errorf("provider must be 'google' or 'microsoft', got '%s'", args[0])
			}

			return runWithApp(cmd, opts, func(ctx context.Context, a *app) error {
				creds, err := a.credentials(provider)
				if err != nil {
					return err
				}

				tok, err := auth.Authorize(ctx, auth.OAuthConfig(provider, creds))
				if err != nil {
					return err
				}

				conn := &model.CalendarConnection{
					UserID:        userID,
					Provider:      provider,
					SyncEnabled:   true,
					SyncDirection: model.SyncDirectionImport,
					Status:        model.ConnectionActive,
				}
				if provider == model.ProviderGoogle {
					err = describeGoogleAccount(ctx, tok, conn, allCalendars)
				} else {
					err = describeMicrosoftAccount(ctx, a.graph, tok, conn, allCalendars)
				}
				if err != nil {
					return err
				}

				if err := a.store.CreateConnection(ctx, conn); err != nil {
					return err
				}
				if err := a.tokens.SaveToken(ctx, auth.NewOAuthToken(conn.ID, provider, tok, time.Now())); err != nil {
					return fmt.Errorf("failed to save token: %w", err)
				}

				log.Printf("Connected %s account %s as connection %s (%d of %d calendar(s) selected)",
					provider, conn.ProviderAccountName, conn.ID, len(conn.SelectedCalendars()), len(conn.Calendars))
				if a.json {
					return a.printJSON(conn)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "id of the lab member who owns the account (required)")
	cmd.Flags().BoolVar(&allCalendars, "all-calendars", false, "select every calendar of the account, not only the primary one")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func describeGoogleAccount(ctx context.Context, tok *oauth2.Token, conn *model.CalendarConnection, all bool) error {
	client, err := calclient.NewGoogleClientForToken(ctx, tok.AccessToken)
	if err != nil {
		return err
	}
	entries, err := client.ListCalendars(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.SummaryOverride
		if name == "" {
			name = entry.Summary
		}
		conn.Calendars = append(conn.Calendars, model.ConnectedCalendar{
			ID:         entry.Id,
			Name:       name,
			IsPrimary:  entry.Primary,
			IsSelected: entry.Primary || all,
			AccessRole: entry.AccessRole,
			TimeZone:   entry.TimeZone,
		})
		// The primary calendar id is the account address.
		if entry.Primary {
			conn.ProviderAccountID = entry.Id
			conn.ProviderAccountName = entry.Id
		}
	}
	return nil
}

func describeMicrosoftAccount(ctx context.Context, graph *calclient.GraphClient, tok *oauth2.Token, conn *model.CalendarConnection, all bool) error {
	user, err := graph.Me(ctx, tok.AccessToken)
	if err != nil {
		return err
	}
	conn.ProviderAccountID = user.ID
	conn.ProviderAccountName = user.Mail
	if conn.ProviderAccountName == "" {
		conn.ProviderAccountName = user.UserPrincipalName
	}

	calendars, err := graph.ListCalendars(ctx, tok.AccessToken)
	if err != nil {
		return err
	}
	for _, cal := range calendars {
		role := "reader"
		if cal.CanEdit {
			role = "writer"
		}
		conn.Calendars = append(conn.Calendars, model.ConnectedCalendar{
			ID:         cal.ID,
			Name:       cal.Name,
			IsPrimary:  cal.IsDefaultCalendar,
			IsSelected: cal.IsDefaultCalendar || all,
			AccessRole: role,
		})
	}
	return nil
}
