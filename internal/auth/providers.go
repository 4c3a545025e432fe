package auth

import (
	"github.com/beekhof/lab-calendar-sync/internal/model"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	gcal "google.golang.org/api/calendar/v3"
)

// DefaultMicrosoftTenant accepts both work and personal accounts.
const DefaultMicrosoftTenant = "common"

// Scopes requested from Microsoft identity platform.
var microsoftScopes = []string{"offline_access", "User.Read", "Calendars.Read"}

// Credentials are the OAuth client credentials of one provider.
type Credentials struct {
	ClientID     string
	ClientSecret string

	// Tenant is the Azure AD tenant; ignored for Google.
	Tenant string

	// TokenURL overrides the provider token endpoint.
	TokenURL string
}

// OAuthConfig builds the oauth2 configuration of a provider. Client
// credentials are always sent in the form body.
func OAuthConfig(provider model.Provider, creds Credentials) *oauth2.Config {
	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
	}

	switch provider {
	case model.ProviderGoogle:
		cfg.Endpoint = google.Endpoint
		cfg.Scopes = []string{gcal.CalendarReadonlyScope}
	case model.ProviderMicrosoft:
		tenant := creds.Tenant
		if tenant == "" {
			tenant = DefaultMicrosoftTenant
		}
		cfg.Endpoint = microsoft.AzureADEndpoint(tenant)
		cfg.Scopes = microsoftScopes
	}

	if creds.TokenURL != "" {
		cfg.Endpoint.TokenURL = creds.TokenURL
	}
	cfg.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	return cfg
}
