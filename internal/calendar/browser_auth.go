package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/bnema/gcal-analyzer/internal/nerdfonts"
	"github.com/bnema/gcal-analyzer/internal/security"
)

// BrowserFlow runs the installed-app authorization code flow: consent happens
// in a browser, which redirects back to a one-shot loopback HTTP server.
type BrowserFlow struct {
	client      *OAuthClient
	port        int
	out         io.Writer
	logger      *security.SecureLogger
	openBrowser func(string) error
}

type callbackResult struct {
	code string
	err  error
}

const callbackPage = `<!DOCTYPE html>
<html><body><p>%s You may close this window and return to the terminal.</p></body></html>`

func NewBrowserFlow(client *OAuthClient, port int, out io.Writer, logger *security.SecureLogger) *BrowserFlow {
	return &BrowserFlow{
		client:      client,
		port:        port,
		out:         out,
		logger:      logger,
		openBrowser: openURL,
	}
}

// Authenticate listens on the loopback port, sends the user to the consent
// page and exchanges the returned code (with PKCE) for a token.
func (b *BrowserFlow) Authenticate(ctx context.Context) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", b.port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on redirect port %d: %w", b.port, err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/", port)
	conf := b.client.OAuthConfig(redirectURL)

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	results := make(chan callbackResult, 1)
	server := &http.Server{
		Handler:           b.callbackHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Warn("Loopback server stopped", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	b.logger.LogAuthEvent("browser_auth_start", true, map[string]any{
		"redirect_port": port,
	})

	fmt.Fprintf(b.out, "\n%s Google Calendar authorization required\n", nerdfonts.InfoCircle)
	fmt.Fprintf(b.out, "%s Open this URL if your browser does not start:\n%s\n\n", nerdfonts.Globe, authURL)
	if err := b.openBrowser(authURL); err != nil {
		b.logger.Warn("Failed to open browser", "error", err)
	}
	fmt.Fprintf(b.out, "%s Waiting for authorization...\n\n", nerdfonts.Timer)

	var result callbackResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result = <-results:
	}

	if result.err != nil {
		b.logger.LogAuthEvent("browser_auth_failed", false, map[string]any{
			"error": result.err.Error(),
		})
		return nil, result.err
	}

	token, err := conf.Exchange(ctx, result.code, oauth2.VerifierOption(verifier))
	if err != nil {
		b.logger.LogAuthEvent("code_exchange", false, map[string]any{
			"error": err.Error(),
		})
		return nil, security.NewTokenError("code_exchange", "failed to exchange authorization code").WithCause(err)
	}

	b.logger.LogAuthEvent("browser_auth_success", true, map[string]any{
		"has_refresh_token": token.RefreshToken != "",
	})

	return token, nil
}

func (b *BrowserFlow) callbackHandler(state string, results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		query := r.URL.Query()

		var result callbackResult
		switch {
		case query.Get("state") != state:
			result.err = security.NewValidationError("state", "", "OAuth state mismatch")
		case query.Get("error") != "":
			result.err = security.NewTokenError("consent", "authorization was not granted: "+query.Get("error"))
		case query.Get("code") == "":
			result.err = security.NewValidationError("code", "", "missing authorization code")
		default:
			result.code = query.Get("code")
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if result.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, callbackPage, "Authorization failed.")
		} else {
			fmt.Fprintf(w, callbackPage, "Authorization complete.")
		}

		select {
		case results <- result:
		default:
		}
	})
}

func openURL(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	return cmd.Start()
}
