package security

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 1024 * 1024

// SecureHTTPClient is an HTTP client locked to a single OAuth endpoint host.
// It refuses redirects and non-JSON success responses.
type SecureHTTPClient struct {
	client    *http.Client
	baseURL   *url.URL
	userAgent string
}

func NewSecureHTTPClient(baseURL, userAgent string) (*SecureHTTPClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return nil, NewValidationError("base_url", baseURL, "invalid base URL")
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &SecureHTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL:   parsed,
		userAgent: userAgent,
	}, nil
}

// Do executes req after checking it targets the configured host.
func (sc *SecureHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if !sc.isAllowedURL(req.URL) {
		return nil, NewValidationError("url", req.URL.Host, "request host not allowed")
	}

	req.Header.Set("User-Agent", sc.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if err := validateResponse(resp); err != nil {
		if closeErr := resp.Body.Close(); closeErr != nil {
			return nil, fmt.Errorf("%w (and failed to close response body: %v)", err, closeErr)
		}
		return nil, err
	}

	return resp, nil
}

func (sc *SecureHTTPClient) Close() {
	if transport, ok := sc.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

func (sc *SecureHTTPClient) isAllowedURL(u *url.URL) bool {
	return u.Scheme == sc.baseURL.Scheme && u.Host == sc.baseURL.Host
}

func validateResponse(resp *http.Response) error {
	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode == http.StatusOK && !strings.HasPrefix(contentType, "application/json") {
		return fmt.Errorf("unexpected content type: %s", contentType)
	}
	if resp.ContentLength > maxResponseBytes {
		return fmt.Errorf("response too large: %d bytes", resp.ContentLength)
	}
	return nil
}
