package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/bnema/gcal-analyzer/internal/nerdfonts"
	"github.com/bnema/gcal-analyzer/internal/security"
)

const (
	defaultPollInterval = 5
	slowDownStep        = 5
)

// DeviceFlow runs the OAuth 2.0 device authorization grant: the user enters
// a short code on another device while this process polls for the token.
type DeviceFlow struct {
	client     *OAuthClient
	httpClient *http.Client
	out        io.Writer
	logger     *security.SecureLogger

	// intervalUnit scales the server-provided polling interval.
	intervalUnit time.Duration
}

// DeviceCodeResponse is the device authorization endpoint reply. Google
// still sends verification_url; RFC 8628 names it verification_uri.
type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

func (r *DeviceCodeResponse) verificationLink() string {
	if r.VerificationURL != "" {
		return r.VerificationURL
	}
	return r.VerificationURI
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

func (r *tokenResponse) token() (*oauth2.Token, error) {
	if r.AccessToken == "" || r.ExpiresIn <= 0 {
		return nil, fmt.Errorf("invalid token response: missing required fields")
	}
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Expiry:       time.Now().Add(time.Duration(r.ExpiresIn) * time.Second),
	}, nil
}

type oauthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// PollError is a non-success reply from the token endpoint while polling.
type PollError struct {
	ErrorCode   string
	Description string
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll error: %s - %s", e.ErrorCode, e.Description)
}

func NewDeviceFlow(client *OAuthClient, out io.Writer, logger *security.SecureLogger) *DeviceFlow {
	return &DeviceFlow{
		client:       client,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		out:          out,
		logger:       logger,
		intervalUnit: time.Second,
	}
}

// Authenticate performs the complete device flow and returns the issued token.
func (d *DeviceFlow) Authenticate(ctx context.Context) (*oauth2.Token, error) {
	d.logger.LogAuthEvent("device_auth_start", true, map[string]any{
		"client_id": security.RedactString(d.client.ClientID),
	})

	deviceResp, err := d.requestDeviceCode(ctx)
	if err != nil {
		d.logger.LogAuthEvent("device_code_request", false, map[string]any{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("failed to request device code: %w", err)
	}

	d.logger.LogAuthEvent("device_code_received", true, map[string]any{
		"expires_in": deviceResp.ExpiresIn,
		"interval":   deviceResp.Interval,
	})

	d.displayAuthInstructions(deviceResp)

	token, err := d.pollForToken(ctx, deviceResp)
	if err != nil {
		d.logger.LogAuthEvent("device_auth_failed", false, map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	d.logger.LogAuthEvent("device_auth_success", true, map[string]any{
		"has_refresh_token": token.RefreshToken != "",
	})

	return token, nil
}

func (d *DeviceFlow) requestDeviceCode(ctx context.Context) (*DeviceCodeResponse, error) {
	params := url.Values{
		"client_id": {d.client.ClientID},
		"scope":     {strings.Join(CalendarScopes, " ")},
	}

	resp, err := d.postForm(ctx, d.client.Endpoint().DeviceAuthURL, params)
	if err != nil {
		return nil, err
	}
	defer d.closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		var errResp oauthErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			if errResp.Error == "rate_limit_exceeded" {
				return nil, fmt.Errorf("rate limit exceeded, please try again later")
			}
			return nil, fmt.Errorf("server error: %s - %s", errResp.Error, errResp.ErrorDescription)
		}
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var deviceResp DeviceCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&deviceResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if deviceResp.DeviceCode == "" || deviceResp.UserCode == "" || deviceResp.verificationLink() == "" {
		return nil, fmt.Errorf("invalid device code response: missing required fields")
	}
	if deviceResp.Interval <= 0 {
		deviceResp.Interval = defaultPollInterval
	}

	return &deviceResp, nil
}

func (d *DeviceFlow) displayAuthInstructions(deviceResp *DeviceCodeResponse) {
	fmt.Fprintf(d.out, "\n%s Google Calendar authorization required\n", nerdfonts.InfoCircle)
	fmt.Fprintf(d.out, "════════════════════════════════════════\n\n")
	fmt.Fprintf(d.out, "%s Visit: %s\n", nerdfonts.Globe, deviceResp.verificationLink())
	fmt.Fprintf(d.out, "%s Enter code: %s\n\n", nerdfonts.InfoCircle, deviceResp.UserCode)

	if deviceResp.ExpiresIn > 0 {
		fmt.Fprintf(d.out, "This code expires in %d minutes\n", deviceResp.ExpiresIn/60)
	}

	fmt.Fprintf(d.out, "%s Waiting for authorization...\n\n", nerdfonts.Timer)
}

func (d *DeviceFlow) pollForToken(ctx context.Context, deviceResp *DeviceCodeResponse) (*oauth2.Token, error) {
	interval := deviceResp.Interval
	ticker := time.NewTicker(time.Duration(interval) * d.intervalUnit)
	defer ticker.Stop()

	var deadline time.Time
	if deviceResp.ExpiresIn > 0 {
		deadline = time.Now().Add(time.Duration(deviceResp.ExpiresIn) * time.Second)
	}
	pollCount := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-ticker.C:
			pollCount++

			if !deadline.IsZero() && time.Now().After(deadline) {
				return nil, security.NewTokenError("device_poll", fmt.Sprintf("device code expired after %d polls", pollCount))
			}

			token, err := d.exchangeDeviceCode(ctx, deviceResp.DeviceCode)
			if err == nil {
				d.logger.LogAuthEvent("poll_success", true, map[string]any{
					"poll_count": pollCount,
				})
				return token, nil
			}

			var pollErr *PollError
			if !errors.As(err, &pollErr) {
				return nil, err
			}

			switch pollErr.ErrorCode {
			case "authorization_pending":
				continue
			case "slow_down":
				interval += slowDownStep
				ticker.Reset(time.Duration(interval) * d.intervalUnit)
				d.logger.LogAuthEvent("poll_slow_down", true, map[string]any{
					"new_interval": interval,
					"poll_count":   pollCount,
				})
				continue
			case "access_denied":
				return nil, security.NewTokenError("device_poll", "user denied access")
			case "expired_token":
				return nil, security.NewTokenError("device_poll", "device code expired")
			default:
				return nil, security.NewTokenError("device_poll", "authentication error").WithCause(pollErr)
			}
		}
	}
}

func (d *DeviceFlow) exchangeDeviceCode(ctx context.Context, deviceCode string) (*oauth2.Token, error) {
	params := url.Values{
		"client_id":     {d.client.ClientID},
		"client_secret": {d.client.ClientSecret},
		"device_code":   {deviceCode},
		"grant_type":    {deviceGrantType},
	}

	resp, err := d.postForm(ctx, d.client.Endpoint().TokenURL, params)
	if err != nil {
		return nil, err
	}
	defer d.closeBody(resp)

	if resp.StatusCode == http.StatusOK {
		var tokenResp tokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
			return nil, fmt.Errorf("failed to decode token response: %w", err)
		}
		return tokenResp.token()
	}

	var errResp oauthErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return nil, fmt.Errorf("unexpected status code %d and failed to decode error", resp.StatusCode)
	}

	return nil, &PollError{
		ErrorCode:   errResp.Error,
		Description: errResp.ErrorDescription,
	}
}

func (d *DeviceFlow) postForm(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", UserAgent)

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	d.logger.LogNetworkEvent(http.MethodPost, endpoint, resp.StatusCode, time.Since(start).String())
	return resp, nil
}

func (d *DeviceFlow) closeBody(resp *http.Response) {
	if closeErr := resp.Body.Close(); closeErr != nil {
		d.logger.Warn("Failed to close response body", "error", closeErr)
	}
}
