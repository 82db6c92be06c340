package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

// InstallationAuthConfig configures GitHub App installation authentication.
type InstallationAuthConfig struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
	Timeout        time.Duration
	BaseTransport  http.RoundTripper
}

// TokenAuthConfig configures personal access token authentication.
type TokenAuthConfig struct {
	Token         string
	Timeout       time.Duration
	BaseTransport http.RoundTripper
}

// NewInstallationHTTPClient creates an authenticated HTTP client for one GitHub App installation.
func NewInstallationHTTPClient(cfg InstallationAuthConfig) (*http.Client, error) {
	if cfg.AppID <= 0 {
		return nil, fmt.Errorf("app id must be > 0")
	}
	if cfg.InstallationID <= 0 {
		return nil, fmt.Errorf("installation id must be > 0")
	}
	if strings.TrimSpace(cfg.PrivateKeyPath) == "" {
		return nil, fmt.Errorf("private key path is required")
	}

	baseTransport := cfg.BaseTransport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}

	transport, err := ghinstallation.NewKeyFromFile(baseTransport, cfg.AppID, cfg.InstallationID, cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("create github app transport: %w", err)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}, nil
}

// NewTokenHTTPClient creates an HTTP client that sends a static bearer token.
func NewTokenHTTPClient(cfg TokenAuthConfig) (*http.Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	baseTransport := cfg.BaseTransport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}

	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   baseTransport,
		},
		Timeout: cfg.Timeout,
	}, nil
}

// NewGitHubRESTClient creates a go-github client with optional API base URL override.
func NewGitHubRESTClient(httpClient *http.Client, apiBaseURL string) (*github.Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	client := github.NewClient(httpClient)
	if strings.TrimSpace(apiBaseURL) == "" {
		return client, nil
	}

	parsedURL, err := parseAPIBaseURL(apiBaseURL)
	if err != nil {
		return nil, err
	}
	client.BaseURL = parsedURL
	return client, nil
}

// DefaultGraphQLURL derives the GraphQL endpoint from a REST base URL.
//
// github.com serves GraphQL at api.github.com/graphql; GitHub Enterprise
// Server serves REST under /api/v3 and GraphQL under /api/graphql.
func DefaultGraphQLURL(apiBaseURL string) string {
	parsed, err := parseAPIBaseURL(apiBaseURL)
	if err != nil {
		return defaultGitHubAPIBaseURL + "graphql"
	}
	path := strings.TrimSuffix(parsed.Path, "/")
	if strings.HasSuffix(path, "/api/v3") {
		path = strings.TrimSuffix(path, "/v3")
	}
	graphURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: path + "/graphql"}
	return graphURL.String()
}

// AuthenticatedLogin returns the login behind the client's credentials.
//
// GitHub App installation tokens have no user; an empty login is returned for them.
func AuthenticatedLogin(ctx context.Context, client *github.Client) (string, error) {
	if client == nil {
		return "", fmt.Errorf("github client is nil")
	}
	user, resp, err := client.Users.Get(ctx, "")
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized) {
			return "", nil
		}
		return "", fmt.Errorf("get authenticated user: %w", err)
	}
	return user.GetLogin(), nil
}
