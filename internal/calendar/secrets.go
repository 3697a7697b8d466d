package calendar

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/bnema/gcal-analyzer/internal/security"
)

// OAuthClient is one OAuth client registration from a Google client
// secrets file.
type OAuthClient struct {
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	AuthURI       string `json:"auth_uri"`
	TokenURI      string `json:"token_uri"`
	DeviceAuthURI string `json:"device_auth_uri,omitempty"`
}

// ClientSecrets mirrors the JSON downloaded from the Google Cloud console.
// Desktop apps carry an "installed" section, web apps a "web" one.
type ClientSecrets struct {
	Installed *OAuthClient `json:"installed"`
	Web       *OAuthClient `json:"web"`
}

// Endpoint returns the OAuth endpoints of the client, falling back to
// google.Endpoint for any the secrets file leaves out.
func (c *OAuthClient) Endpoint() oauth2.Endpoint {
	ep := google.Endpoint
	ep.AuthStyle = oauth2.AuthStyleInParams
	if c.AuthURI != "" {
		ep.AuthURL = c.AuthURI
	}
	if c.TokenURI != "" {
		ep.TokenURL = c.TokenURI
	}
	if c.DeviceAuthURI != "" {
		ep.DeviceAuthURL = c.DeviceAuthURI
	}
	return ep
}

// OAuthConfig builds the oauth2 configuration for this client.
func (c *OAuthClient) OAuthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     c.Endpoint(),
		RedirectURL:  redirectURL,
		Scopes:       CalendarScopes,
	}
}

// LoadClientSecrets reads a client secrets file and returns its installed
// (or, failing that, web) client.
func LoadClientSecrets(path string) (*OAuthClient, error) {
	if path == "" {
		return nil, security.NewValidationError("client_secrets", path, "no client secrets file configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client secrets file '%s': %w", path, err)
	}

	var secrets ClientSecrets
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse client secrets JSON: %w", err)
	}

	client := secrets.Installed
	if client == nil {
		client = secrets.Web
	}
	if client == nil {
		return nil, security.NewValidationError("client_secrets", path, "neither an installed nor a web client is defined")
	}

	if client.ClientID == "" {
		return nil, security.NewValidationError("client_id", path, "client_id is missing from client secrets")
	}
	if client.ClientSecret == "" {
		return nil, security.NewValidationError("client_secret", path, "client_secret is missing from client secrets")
	}

	return client, nil
}
