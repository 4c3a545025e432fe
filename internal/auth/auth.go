package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// AuthorizeTimeout bounds how long Authorize waits for the browser callback.
const AuthorizeTimeout = 5 * time.Minute

type callbackResult struct {
	code string
	err  error
}

// startLocalServer starts a local HTTP server to receive the OAuth callback.
// Returns the redirect URL and a channel carrying the callback result.
// Uses port 8080 by default, or a random port if 8080 is unavailable.
func startLocalServer(state string) (string, <-chan callbackResult, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:8080")
	if err != nil {
		// Fall back to random port if 8080 is in use
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return "", nil, fmt.Errorf("failed to start local server: %w", err)
		}
	}

	port := listener.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	results := make(chan callbackResult, 2)

	server := &http.Server{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  10 * time.Second,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		switch {
		case query.Get("error") != "":
			fmt.Fprintf(w, "<html><body><h1>Authorization failed</h1><p>Error: %s</p></body></html>", query.Get("error"))
			results <- callbackResult{err: fmt.Errorf("authorization error: %s", query.Get("error"))}
		case query.Get("state") != state:
			fmt.Fprintf(w, "<html><body><h1>Authorization failed</h1><p>State mismatch.</p></body></html>")
			results <- callbackResult{err: fmt.Errorf("authorization state mismatch")}
		case query.Get("code") == "":
			fmt.Fprintf(w, "<html><body><h1>No authorization code received</h1></body></html>")
			results <- callbackResult{err: fmt.Errorf("no authorization code received")}
		default:
			fmt.Fprintf(w, "<html><body><h1>Authorization successful!</h1><p>You can close this window.</p></body></html>")
			results <- callbackResult{code: query.Get("code")}
		}
		go func() {
			time.Sleep(1 * time.Second)
			server.Shutdown(context.Background())
		}()
	})
	server.Handler = mux

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			results <- callbackResult{err: fmt.Errorf("server error: %w", err)}
		}
	}()

	return redirectURL, results, nil
}

// Authorize runs the interactive consent flow for one provider account and
// returns the granted token. The user is sent to the provider in a browser
// and the code is received on a loopback redirect.
func Authorize(ctx context.Context, oauthConfig *oauth2.Config) (*oauth2.Token, error) {
	state := uuid.NewString()
	redirectURL, results, err := startLocalServer(state)
	if err != nil {
		return nil, err
	}

	cfg := *oauthConfig
	cfg.RedirectURL = redirectURL
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Printf("Starting local server on %s\n", redirectURL)
	if redirectURL != "http://127.0.0.1:8080" {
		fmt.Printf("Note: Port 8080 was unavailable. Make sure %s is an authorized redirect URI for this client.\n", redirectURL)
	}
	fmt.Println("\nPlease visit the following URL to authorize the application:")
	fmt.Println(authURL)
	fmt.Println("\nWaiting for authorization...")

	var code string
	select {
	case res := <-results:
		if res.err != nil {
			return nil, fmt.Errorf("failed to receive authorization code: %w", res.err)
		}
		code = res.code
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(AuthorizeTimeout):
		return nil, fmt.Errorf("authorization timeout: no response received within %s", AuthorizeTimeout)
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}
