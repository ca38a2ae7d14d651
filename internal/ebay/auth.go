package ebay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/donaldgifford/listing-watcher/internal/metrics"
)

const (
	defaultTokenURL = "https://api.ebay.com/identity/v1/oauth2/token" //nolint:gosec // not a credential
	defaultScope    = "https://api.ebay.com/oauth/api_scope"

	// DefaultSafetyMargin is the remaining lifetime below which a token is
	// refreshed before any further API call.
	DefaultSafetyMargin = 60 * time.Second
	// MinSafetyMargin is the smallest margin the manager accepts.
	MinSafetyMargin = 5 * time.Second
)

// Credential is an access token and the instant it stops being accepted.
type Credential struct {
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ValidFor reports whether the credential outlives now by more than margin.
func (c Credential) ValidFor(now time.Time, margin time.Duration) bool {
	return c.AccessToken != "" && now.Add(margin).Before(c.ExpiresAt)
}

// CredentialManager obtains eBay application tokens with the OAuth2
// client credentials grant. It holds no token itself; the caller owns the
// current Credential and hands it back on every EnsureValid call.
type CredentialManager struct {
	appID    string
	certID   string
	tokenURL string
	scope    string
	margin   time.Duration
	client   *http.Client
	log      *slog.Logger
	nowFunc  func() time.Time // for testing
}

// AuthOption configures the CredentialManager.
type AuthOption func(*CredentialManager)

// WithTokenURL overrides the default eBay token endpoint.
func WithTokenURL(u string) AuthOption {
	return func(m *CredentialManager) {
		m.tokenURL = u
	}
}

// WithScope overrides the requested OAuth scope.
func WithScope(s string) AuthOption {
	return func(m *CredentialManager) {
		m.scope = s
	}
}

// WithSafetyMargin sets the minimum remaining lifetime. Values below
// MinSafetyMargin are raised to it.
func WithSafetyMargin(d time.Duration) AuthOption {
	return func(m *CredentialManager) {
		m.margin = max(d, MinSafetyMargin)
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) AuthOption {
	return func(m *CredentialManager) {
		m.client = c
	}
}

// WithAuthLogger sets the logger.
func WithAuthLogger(l *slog.Logger) AuthOption {
	return func(m *CredentialManager) {
		m.log = l
	}
}

// WithNowFunc overrides the time function for testing.
func WithNowFunc(f func() time.Time) AuthOption {
	return func(m *CredentialManager) {
		m.nowFunc = f
	}
}

// NewCredentialManager creates a new eBay OAuth2 credential manager.
func NewCredentialManager(appID, certID string, opts ...AuthOption) *CredentialManager {
	m := &CredentialManager{
		appID:    appID,
		certID:   certID,
		tokenURL: defaultTokenURL,
		scope:    defaultScope,
		margin:   DefaultSafetyMargin,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      slog.Default(),
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SafetyMargin returns the configured margin.
func (m *CredentialManager) SafetyMargin() time.Duration {
	return m.margin
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// EnsureValid returns cur when it is non-nil and valid for the safety
// margin. Otherwise it exchanges the client credentials for a new token.
// Every failure is an *AuthError.
func (m *CredentialManager) EnsureValid(ctx context.Context, cur *Credential) (Credential, error) {
	if cur != nil && cur.ValidFor(m.nowFunc(), m.margin) {
		return *cur, nil
	}

	if cur != nil {
		m.log.Info("ebay token expired or expiring soon, requesting a new one",
			"expires_at", cur.ExpiresAt,
		)
	}

	cred, err := m.exchange(ctx)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("error").Inc()
		return Credential{}, err
	}

	metrics.TokenRefreshesTotal.WithLabelValues("ok").Inc()
	metrics.TokenExpiry.Set(float64(cred.ExpiresAt.Unix()))
	m.log.Debug("ebay token issued", "expires_at", cred.ExpiresAt)
	return cred, nil
}

func (m *CredentialManager) exchange(ctx context.Context) (Credential, error) {
	form := url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {m.scope},
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		m.tokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return Credential{}, &AuthError{Err: fmt.Errorf("creating token request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	creds := base64.StdEncoding.EncodeToString(
		[]byte(m.appID + ":" + m.certID),
	)
	req.Header.Set("Authorization", "Basic "+creds)

	resp, err := m.client.Do(req)
	if err != nil {
		return Credential{}, &AuthError{Err: fmt.Errorf("executing token request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, &AuthError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("reading token response: %w", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp tokenErrorResponse
		_ = json.Unmarshal(body, &errResp) //nolint:errcheck // best-effort error parsing
		detail := string(body)
		if errResp.Error != "" {
			detail = errResp.Error + " - " + errResp.ErrorDescription
		}
		return Credential{}, &AuthError{Status: resp.StatusCode, Body: detail}
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return Credential{}, &AuthError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("parsing token response: %w", err),
		}
	}
	if tokenResp.AccessToken == "" {
		return Credential{}, &AuthError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("parsing token response: empty access_token"),
		}
	}

	lifetime := time.Duration(tokenResp.ExpiresIn) * time.Second
	if lifetime <= m.margin {
		return Credential{}, &AuthError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("token lifetime %s does not exceed safety margin %s", lifetime, m.margin),
		}
	}

	return Credential{
		AccessToken: tokenResp.AccessToken,
		ExpiresAt:   m.nowFunc().Add(lifetime),
	}, nil
}
