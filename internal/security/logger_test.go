package security

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRedactString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		secret  string
		keepKey string
	}{
		{"access token", `{"access_token":"ya29.a0AfH6SMCsecret"}`, "ya29.a0AfH6SMCsecret", "access_token"},
		{"bearer header", "Authorization: Bearer abc.def.ghi", "abc.def.ghi", ""},
		{"email", "fetching calendar alice@example.com", "alice@example.com", ""},
		{"client secret", "client_secret=GOCSPX-1234567890abcdef", "GOCSPX-1234567890abcdef", "client_secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactString(tt.input)
			if strings.Contains(got, tt.secret) {
				t.Errorf("secret leaked: %q", got)
			}
			if !strings.Contains(got, "[REDACTED]") {
				t.Errorf("expected redaction marker in %q", got)
			}
			if tt.keepKey != "" && !strings.Contains(got, tt.keepKey) {
				t.Errorf("expected key %q to be kept in %q", tt.keepKey, got)
			}
		})
	}
}

func TestRedactURLSecrets(t *testing.T) {
	got := redactURLSecrets("http://localhost:8080/?state=abc&code=4/0AX&scope=calendar")
	want := "http://localhost:8080/?state=[REDACTED]&code=[REDACTED]&scope=calendar"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if plain := redactURLSecrets("https://oauth2.googleapis.com/token"); plain != "https://oauth2.googleapis.com/token" {
		t.Errorf("URL without query changed: %q", plain)
	}
}

func TestSecureLoggerRedactsAttributes(t *testing.T) {
	var buf bytes.Buffer
	sl := NewSecureLoggerWithWriter(true, &buf)

	sl.LogAuthEvent("token_saved", true, map[string]any{"calendar": "bob@example.com"})
	sl.LogCryptoEvent("token_decrypt", false, "bad key")

	out := buf.String()
	if strings.Contains(out, "bob@example.com") {
		t.Errorf("email leaked into log: %s", out)
	}
	if !strings.Contains(out, `"operation":"token_saved"`) || !strings.Contains(out, `"event_type":"crypto"`) {
		t.Errorf("missing structured fields: %s", out)
	}
}

func TestSecureLoggerSilentWhenNotVerbose(t *testing.T) {
	var buf bytes.Buffer
	sl := NewSecureLoggerWithWriter(false, &buf)
	sl.LogSecurityEvent("auth_manager_initialized", SeverityCritical, nil)
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestSecureHTTPClientRestrictsHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "gcal-analyzer-test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	client, err := NewSecureHTTPClient(srv.URL, "gcal-analyzer-test")
	if err != nil {
		t.Fatalf("NewSecureHTTPClient failed: %v", err)
	}
	defer client.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/token", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("allowed request failed: %v", err)
	}
	resp.Body.Close()

	other, _ := http.NewRequest(http.MethodGet, "https://example.com/token", nil)
	_, err = client.Do(other)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for foreign host, got %v", err)
	}
}

func TestSecureHTTPClientRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html></html>")
	}))
	defer srv.Close()

	client, err := NewSecureHTTPClient(srv.URL, "test")
	if err != nil {
		t.Fatalf("NewSecureHTTPClient failed: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	if _, err := client.Do(req); err == nil {
		t.Error("expected error for non-JSON response")
	}
}

func TestIsAuthError(t *testing.T) {
	wrapped := fmt.Errorf("obtain credential: %w", NewTokenError("refresh", "no refresh token available"))
	if !IsAuthError(wrapped) {
		t.Error("expected wrapped TokenError to be an auth error")
	}
	if !IsAuthError(NewCryptoError("token_decrypt", "bad key")) {
		t.Error("expected CryptoError to be an auth error")
	}
	if IsAuthError(NewConfigError("rules.recurrence_threshold", "-1", "must not be negative")) {
		t.Error("config errors are not auth errors")
	}
}
