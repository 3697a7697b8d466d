package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/bnema/gcal-analyzer/internal/config"
	"github.com/bnema/gcal-analyzer/internal/security"
)

// CredentialProvider yields an access token valid for the Calendar API.
type CredentialProvider interface {
	ObtainValidCredential(ctx context.Context) (*oauth2.Token, error)
}

// AuthOptions selects the client registration and interactive flow.
type AuthOptions struct {
	ClientSecretsPath string
	Flow              string
	RedirectPort      int
	// Out receives the instructions shown to the user; os.Stderr if nil.
	Out io.Writer
}

// AuthManager persists an encrypted OAuth token in the cache directory and
// refreshes or re-acquires it as needed.
type AuthManager struct {
	tokenPath  string
	cacheDir   string
	opts       AuthOptions
	client     *OAuthClient
	httpClient *security.SecureHTTPClient
	encryptor  *security.TokenEncryptor
	logger     *security.SecureLogger
}

func NewAuthManager(cacheDir string, opts *AuthOptions, verbose bool) (*AuthManager, error) {
	if err := os.MkdirAll(cacheDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	encryptor, err := security.NewTokenEncryptor(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token encryption: %w", err)
	}

	var o AuthOptions
	if opts != nil {
		o = *opts
	}
	if o.Flow == "" {
		o.Flow = config.FlowDevice
	}
	if o.Out == nil {
		o.Out = os.Stderr
	}

	logger := security.NewSecureLogger(verbose)

	authManager := &AuthManager{
		tokenPath: filepath.Join(cacheDir, "token.enc"),
		cacheDir:  cacheDir,
		opts:      o,
		encryptor: encryptor,
		logger:    logger,
	}

	logger.LogSecurityEvent("auth_manager_initialized", security.SeverityInfo, map[string]any{
		"cache_dir": cacheDir,
		"flow":      o.Flow,
	})

	return authManager, nil
}

// ObtainValidCredential returns the stored token when still valid, refreshes
// it when expired, and otherwise runs the configured interactive flow. New
// tokens are persisted before being returned.
func (a *AuthManager) ObtainValidCredential(ctx context.Context) (*oauth2.Token, error) {
	startTime := time.Now()

	token, err := a.loadToken()
	switch {
	case err == nil && token.Valid():
		a.logger.LogAuthEvent("token_load", true, map[string]any{
			"token_valid": true,
		})
		return token, nil

	case err == nil && token.RefreshToken != "":
		a.logger.LogAuthEvent("token_refresh_attempt", true, map[string]any{
			"token_expired": true,
		})
		refreshed, refreshErr := a.refreshToken(ctx, token)
		if refreshErr == nil {
			a.persist(refreshed)
			a.logger.LogAuthEvent("token_refresh", true, map[string]any{
				"duration": time.Since(startTime).String(),
			})
			return refreshed, nil
		}
		a.logger.LogAuthEvent("token_refresh", false, map[string]any{
			"error": refreshErr.Error(),
		})

	case err != nil:
		a.logger.LogAuthEvent("token_load", false, map[string]any{
			"error": err.Error(),
		})
	}

	token, err = a.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	a.persist(token)

	a.logger.LogAuthEvent("credential_obtained", true, map[string]any{
		"duration": time.Since(startTime).String(),
	})
	return token, nil
}

func (a *AuthManager) authenticate(ctx context.Context) (*oauth2.Token, error) {
	client, err := a.oauthClient()
	if err != nil {
		return nil, err
	}

	var token *oauth2.Token
	switch a.opts.Flow {
	case config.FlowBrowser:
		token, err = NewBrowserFlow(client, a.opts.RedirectPort, a.opts.Out, a.logger).Authenticate(ctx)
	case config.FlowDevice:
		token, err = NewDeviceFlow(client, a.opts.Out, a.logger).Authenticate(ctx)
	default:
		return nil, security.NewConfigError("auth.flow", a.opts.Flow, "must be device or browser")
	}
	if err != nil {
		return nil, fmt.Errorf("%s authentication failed: %w", a.opts.Flow, err)
	}
	return token, nil
}

// oauthClient loads the client secrets on first use, so status checks work
// without a secrets file.
func (a *AuthManager) oauthClient() (*OAuthClient, error) {
	if a.client != nil {
		return a.client, nil
	}
	client, err := LoadClientSecrets(a.opts.ClientSecretsPath)
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

func (a *AuthManager) persist(token *oauth2.Token) {
	if err := a.saveToken(token); err != nil {
		a.logger.Error("Failed to save token", "error", err)
	}
}

func (a *AuthManager) loadToken() (*oauth2.Token, error) {
	encrypted, err := os.ReadFile(a.tokenPath)
	if err != nil {
		return nil, err
	}

	decrypted, err := a.encryptor.Decrypt(string(encrypted))
	if err != nil {
		cryptoErr := security.NewCryptoError("token_decrypt", "failed to decrypt token").WithCause(err)
		a.logger.LogCryptoEvent("token_decrypt", false, cryptoErr.Error())
		return nil, cryptoErr
	}

	var token oauth2.Token
	if err := json.Unmarshal(decrypted, &token); err != nil {
		return nil, security.NewTokenError("unmarshal", "invalid token data").WithCause(err)
	}

	a.logger.LogCryptoEvent("token_decrypt", true, "")

	return &token, nil
}

func (a *AuthManager) saveToken(token *oauth2.Token) error {
	tokenData, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	encrypted, err := a.encryptor.Encrypt(tokenData)
	if err != nil {
		cryptoErr := security.NewCryptoError("token_encrypt", "failed to encrypt token").WithCause(err)
		a.logger.LogCryptoEvent("token_encrypt", false, cryptoErr.Error())
		return cryptoErr
	}

	if err := os.WriteFile(a.tokenPath, []byte(encrypted), 0600); err != nil {
		return security.NewTokenError("save", "failed to write token file").WithCause(err)
	}

	a.logger.LogCryptoEvent("token_encrypt", true, "")
	a.logger.LogAuthEvent("token_saved", true, map[string]any{
		"token_path": a.tokenPath,
	})

	return nil
}

// refreshToken exchanges the refresh token at the client's token endpoint.
func (a *AuthManager) refreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	client, err := a.oauthClient()
	if err != nil {
		return nil, security.NewTokenError("refresh", "client secrets unavailable").WithCause(err)
	}

	tokenURL := client.Endpoint().TokenURL
	if a.httpClient == nil {
		a.httpClient, err = security.NewSecureHTTPClient(tokenURL, UserAgent)
		if err != nil {
			return nil, fmt.Errorf("failed to create secure HTTP client for token refresh: %w", err)
		}
	}

	params := url.Values{
		"client_id":     {client.ClientID},
		"client_secret": {client.ClientSecret},
		"refresh_token": {token.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	startTime := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, security.NewTokenError("refresh", "token refresh request failed").WithCause(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			a.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	a.logger.LogNetworkEvent(http.MethodPost, tokenURL, resp.StatusCode, time.Since(startTime).String())

	if resp.StatusCode != http.StatusOK {
		var errResp oauthErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Error != "" {
			return nil, security.NewTokenError("refresh",
				fmt.Sprintf("token refresh failed: %s - %s", errResp.Error, errResp.ErrorDescription))
		}
		return nil, security.NewTokenError("refresh", fmt.Sprintf("token refresh failed with status %d", resp.StatusCode))
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode refresh token response: %w", err)
	}

	refreshed, err := tokenResp.token()
	if err != nil {
		return nil, security.NewTokenError("refresh", "invalid token refresh response").WithCause(err)
	}
	// Google usually omits the refresh token on refresh.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = token.RefreshToken
	}

	return refreshed, nil
}

// TokenSource refreshes token at the client's token endpoint once it
// expires, so a long paginated fetch survives expiry. Without client
// secrets the token is used as is.
func (a *AuthManager) TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource {
	client, err := a.oauthClient()
	if err != nil {
		a.logger.Warn("Token refresh unavailable", "error", err)
		return oauth2.StaticTokenSource(token)
	}
	return client.OAuthConfig("").TokenSource(ctx, token)
}

// ClearLocalToken removes the stored token; the next run re-authenticates.
func (a *AuthManager) ClearLocalToken() error {
	if err := os.Remove(a.tokenPath); err != nil && !os.IsNotExist(err) {
		return security.NewTokenError("clear", "failed to remove token file").WithCause(err)
	}

	a.logger.LogAuthEvent("token_cleared", true, map[string]any{
		"token_path": a.tokenPath,
	})

	return nil
}

// HasValidToken reports whether a stored, unexpired token exists.
func (a *AuthManager) HasValidToken() bool {
	token, err := a.loadToken()
	isValid := err == nil && token.Valid()

	a.logger.LogAuthEvent("token_validation", isValid, map[string]any{
		"has_token": err == nil,
		"is_valid":  isValid,
	})

	return isValid
}

// TokenExpiry returns the expiry of the stored token, if any.
func (a *AuthManager) TokenExpiry() (time.Time, bool) {
	token, err := a.loadToken()
	if err != nil {
		return time.Time{}, false
	}
	return token.Expiry, true
}

func (a *AuthManager) TokenPath() string {
	return a.tokenPath
}

// Close releases network resources and drops key material references.
func (a *AuthManager) Close() error {
	if a.httpClient != nil {
		a.httpClient.Close()
	}

	a.encryptor = nil
	a.client = nil

	if a.logger != nil {
		a.logger.LogSecurityEvent("auth_manager_closed", security.SeverityInfo, map[string]any{
			"cache_dir": a.cacheDir,
		})
	}

	return nil
}
