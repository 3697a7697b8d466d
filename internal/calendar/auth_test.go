package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/bnema/gcal-analyzer/internal/config"
	"github.com/bnema/gcal-analyzer/internal/security"
)

func writeSecrets(t *testing.T, dir, tokenURI, deviceURI string) string {
	t.Helper()
	secrets := map[string]any{
		"installed": map[string]string{
			"client_id":       "1234567890-abcdefghijklmnop.apps.googleusercontent.com",
			"client_secret":   "GOCSPX-test-secret-value",
			"auth_uri":        "https://accounts.google.com/o/oauth2/auth",
			"token_uri":       tokenURI,
			"device_auth_uri": deviceURI,
		},
	}
	data, err := json.Marshal(secrets)
	if err != nil {
		t.Fatalf("Failed to marshal secrets: %v", err)
	}
	path := filepath.Join(dir, "credentials.json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("Failed to write secrets: %v", err)
	}
	return path
}

func newTestAuthManager(t *testing.T, opts *AuthOptions) *AuthManager {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	am, err := NewAuthManager(filepath.Join(dir, "cache"), opts, false)
	if err != nil {
		t.Fatalf("NewAuthManager failed: %v", err)
	}
	t.Cleanup(func() { am.Close() })
	return am
}

func TestLoadClientSecrets(t *testing.T) {
	dir := t.TempDir()

	path := writeSecrets(t, dir, "", "")
	client, err := LoadClientSecrets(path)
	if err != nil {
		t.Fatalf("LoadClientSecrets failed: %v", err)
	}
	ep := client.Endpoint()
	if ep.TokenURL != google.Endpoint.TokenURL || ep.DeviceAuthURL != google.Endpoint.DeviceAuthURL {
		t.Errorf("expected Google endpoints by default, got %+v", ep)
	}
	if ep.AuthURL != "https://accounts.google.com/o/oauth2/auth" {
		t.Errorf("expected auth_uri from the secrets file, got %s", ep.AuthURL)
	}

	custom := (&OAuthClient{TokenURI: "https://sso.example/token"}).Endpoint()
	if custom.TokenURL != "https://sso.example/token" || custom.AuthURL != google.Endpoint.AuthURL {
		t.Errorf("expected only the named endpoint to be replaced, got %+v", custom)
	}

	webPath := filepath.Join(dir, "web.json")
	os.WriteFile(webPath, []byte(`{"web": {"client_id": "id", "client_secret": "secret"}}`), 0600)
	if _, err := LoadClientSecrets(webPath); err != nil {
		t.Errorf("expected web client to be accepted: %v", err)
	}

	badPath := filepath.Join(dir, "bad.json")
	os.WriteFile(badPath, []byte(`{"installed": {"client_id": "id"}}`), 0600)
	if _, err := LoadClientSecrets(badPath); err == nil {
		t.Error("expected error for missing client_secret")
	}

	if _, err := LoadClientSecrets(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestObtainValidCredentialUsesStoredToken(t *testing.T) {
	am := newTestAuthManager(t, &AuthOptions{ClientSecretsPath: "does-not-exist.json"})

	stored := &oauth2.Token{AccessToken: "stored", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	if err := am.saveToken(stored); err != nil {
		t.Fatalf("saveToken failed: %v", err)
	}

	info, err := os.Stat(am.TokenPath())
	if err != nil {
		t.Fatalf("token file missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected token file mode 0600, got %o", info.Mode().Perm())
	}

	token, err := am.ObtainValidCredential(context.Background())
	if err != nil {
		t.Fatalf("ObtainValidCredential failed: %v", err)
	}
	if token.AccessToken != "stored" {
		t.Errorf("expected stored token, got %q", token.AccessToken)
	}
	if !am.HasValidToken() {
		t.Error("expected HasValidToken to be true")
	}
}

func TestObtainValidCredentialRefreshesExpiredToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm failed: %v", err)
			return
		}
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "refresh-me" {
			t.Errorf("unexpected refresh form %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "fresh", "expires_in": 3600, "token_type": "Bearer"}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	secrets := writeSecrets(t, dir, srv.URL+"/token", "")
	am := newTestAuthManager(t, &AuthOptions{ClientSecretsPath: secrets})

	expired := &oauth2.Token{AccessToken: "old", RefreshToken: "refresh-me", Expiry: time.Now().Add(-time.Hour)}
	if err := am.saveToken(expired); err != nil {
		t.Fatalf("saveToken failed: %v", err)
	}
	if am.HasValidToken() {
		t.Fatal("expired token must not be valid")
	}

	token, err := am.ObtainValidCredential(context.Background())
	if err != nil {
		t.Fatalf("ObtainValidCredential failed: %v", err)
	}
	if token.AccessToken != "fresh" || token.RefreshToken != "refresh-me" {
		t.Errorf("unexpected refreshed token %+v", token)
	}

	stored, err := am.loadToken()
	if err != nil {
		t.Fatalf("loadToken failed: %v", err)
	}
	if stored.AccessToken != "fresh" {
		t.Errorf("refreshed token was not persisted, got %q", stored.AccessToken)
	}
}

func TestTokenSourceRefreshesDuringUse(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm failed: %v", err)
			return
		}
		if r.Form.Get("refresh_token") != "refresh-me" {
			t.Errorf("unexpected refresh form %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "rotated", "expires_in": 3600, "token_type": "Bearer"}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	secrets := writeSecrets(t, dir, srv.URL+"/token", "")
	am := newTestAuthManager(t, &AuthOptions{ClientSecretsPath: secrets})

	expired := &oauth2.Token{AccessToken: "old", RefreshToken: "refresh-me", Expiry: time.Now().Add(-time.Minute)}
	token, err := am.TokenSource(context.Background(), expired).Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token.AccessToken != "rotated" || refreshes.Load() != 1 {
		t.Errorf("expected one refresh to rotated, got %q after %d refreshes", token.AccessToken, refreshes.Load())
	}

	noSecrets := newTestAuthManager(t, &AuthOptions{ClientSecretsPath: filepath.Join(dir, "missing.json")})
	valid := &oauth2.Token{AccessToken: "as-is", Expiry: time.Now().Add(time.Hour)}
	token, err = noSecrets.TokenSource(context.Background(), valid).Token()
	if err != nil || token.AccessToken != "as-is" {
		t.Errorf("expected token to be used as is, got %+v (%v)", token, err)
	}
}

func TestClearLocalToken(t *testing.T) {
	am := newTestAuthManager(t, nil)
	if err := am.saveToken(&oauth2.Token{AccessToken: "x", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("saveToken failed: %v", err)
	}
	if err := am.ClearLocalToken(); err != nil {
		t.Fatalf("ClearLocalToken failed: %v", err)
	}
	if am.HasValidToken() {
		t.Error("expected no token after clearing")
	}
	if err := am.ClearLocalToken(); err != nil {
		t.Errorf("clearing twice should succeed: %v", err)
	}
}

func TestObtainValidCredentialWithoutSecretsFails(t *testing.T) {
	am := newTestAuthManager(t, &AuthOptions{ClientSecretsPath: filepath.Join(t.TempDir(), "none.json")})
	if _, err := am.ObtainValidCredential(context.Background()); err == nil {
		t.Error("expected error when no token and no client secrets exist")
	}
}

func TestDeviceFlow(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/device/code", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("scope") != CalendarScopes[0] {
			t.Errorf("unexpected scope %q", r.FormValue("scope"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"device_code": "dev-123", "user_code": "ABCD-EFGH", "verification_url": "https://www.google.com/device", "expires_in": 600, "interval": 1}`)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		if r.FormValue("grant_type") != deviceGrantType || r.FormValue("device_code") != "dev-123" {
			t.Errorf("unexpected poll form %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		if n < 2 {
			w.WriteHeader(http.StatusPreconditionRequired)
			fmt.Fprint(w, `{"error": "authorization_pending", "error_description": "Precondition Required"}`)
			return
		}
		fmt.Fprint(w, `{"access_token": "device-token", "refresh_token": "device-refresh", "expires_in": 3599, "token_type": "Bearer"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := &OAuthClient{ClientID: "id", ClientSecret: "secret", TokenURI: srv.URL + "/token", DeviceAuthURI: srv.URL + "/device/code"}
	var out bytes.Buffer
	flow := NewDeviceFlow(client, &out, security.NewSecureLogger(false))
	flow.intervalUnit = time.Millisecond

	token, err := flow.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if token.AccessToken != "device-token" || token.RefreshToken != "device-refresh" {
		t.Errorf("unexpected token %+v", token)
	}
	if polls.Load() != 2 {
		t.Errorf("expected 2 polls, got %d", polls.Load())
	}
	if !bytes.Contains(out.Bytes(), []byte("ABCD-EFGH")) {
		t.Errorf("user code not shown: %s", out.String())
	}
}

func TestDeviceFlowAccessDenied(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/device/code", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"device_code": "d", "user_code": "u", "verification_uri": "https://example.com/device", "expires_in": 600}`)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error": "access_denied"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := &OAuthClient{ClientID: "id", ClientSecret: "secret", TokenURI: srv.URL + "/token", DeviceAuthURI: srv.URL + "/device/code"}
	flow := NewDeviceFlow(client, &bytes.Buffer{}, security.NewSecureLogger(false))
	flow.intervalUnit = time.Millisecond

	_, err := flow.Authenticate(context.Background())
	if !security.IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestBrowserFlow(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("code") != "auth-code" {
			t.Errorf("unexpected code %q", r.FormValue("code"))
		}
		if r.FormValue("code_verifier") == "" {
			t.Error("expected PKCE verifier in exchange")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "browser-token", "refresh_token": "browser-refresh", "expires_in": 3600, "token_type": "Bearer"}`)
	}))
	defer tokenSrv.Close()

	client := &OAuthClient{ClientID: "id", ClientSecret: "secret", TokenURI: tokenSrv.URL + "/token"}
	flow := NewBrowserFlow(client, 0, &bytes.Buffer{}, security.NewSecureLogger(false))
	flow.openBrowser = func(authURL string) error {
		parsed, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := parsed.Query()
		if q.Get("code_challenge_method") != "S256" || q.Get("access_type") != "offline" {
			t.Errorf("unexpected auth URL %s", authURL)
		}
		callback := q.Get("redirect_uri") + "?code=auth-code&state=" + url.QueryEscape(q.Get("state"))
		go func() {
			resp, err := http.Get(callback)
			if err != nil {
				t.Errorf("callback request failed: %v", err)
				return
			}
			resp.Body.Close()
		}()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := flow.Authenticate(ctx)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if token.AccessToken != "browser-token" {
		t.Errorf("unexpected token %+v", token)
	}
}

func TestBrowserFlowRejectsStateMismatch(t *testing.T) {
	client := &OAuthClient{ClientID: "id", ClientSecret: "secret"}
	flow := NewBrowserFlow(client, 0, &bytes.Buffer{}, security.NewSecureLogger(false))
	flow.openBrowser = func(authURL string) error {
		parsed, _ := url.Parse(authURL)
		callback := parsed.Query().Get("redirect_uri") + "?code=auth-code&state=forged"
		go func() {
			if resp, err := http.Get(callback); err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := flow.Authenticate(ctx); err == nil {
		t.Error("expected state mismatch error")
	}
}

func TestUnknownFlowIsConfigError(t *testing.T) {
	dir := t.TempDir()
	secrets := writeSecrets(t, dir, "", "")
	am := newTestAuthManager(t, &AuthOptions{ClientSecretsPath: secrets, Flow: "carrier-pigeon"})

	_, err := am.ObtainValidCredential(context.Background())
	var cfgErr *security.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "auth.flow" {
		t.Errorf("expected auth.flow config error, got %v", err)
	}
}

func TestNewAuthManagerDefaultsToDeviceFlow(t *testing.T) {
	am := newTestAuthManager(t, nil)
	if am.opts.Flow != config.FlowDevice {
		t.Errorf("expected default flow %q, got %q", config.FlowDevice, am.opts.Flow)
	}
}
