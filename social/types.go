package social

import (
	"time"

	"github.com/kbukum/tokenkeeper/httpclient"
)

const (
	// DefaultBaseURL is the production social auth endpoint.
	DefaultBaseURL = "https://prod.us-east-1.auth.desktop.kiro.dev"
	// DefaultTimeout bounds every call.
	DefaultTimeout = 10 * time.Second
)

// Config configures the social client.
type Config struct {
	BaseURL   string                `yaml:"base_url" mapstructure:"base_url"`
	Timeout   time.Duration         `yaml:"timeout" mapstructure:"timeout"`
	UserAgent string                `yaml:"user_agent" mapstructure:"user_agent"`
	TLS       *httpclient.TLSConfig `yaml:"tls" mapstructure:"tls"`
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// TokenResponse is returned by code exchange and refresh.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	IDToken      string `json:"idToken,omitempty"`
	ProfileArn   string `json:"profileArn,omitempty"`
	TokenType    string `json:"tokenType,omitempty"`
	ExpiresIn    int64  `json:"expiresIn,omitempty"`
	// ExpiresAt is sent by some backend versions instead of expiresIn.
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// Expiry resolves the absolute expiry relative to issuedAt, preferring
// expiresIn. Zero when neither is present or parseable.
func (t *TokenResponse) Expiry(issuedAt time.Time) time.Time {
	if t.ExpiresIn > 0 {
		return issuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	if t.ExpiresAt != "" {
		if ts, err := time.Parse(time.RFC3339, t.ExpiresAt); err == nil {
			return ts
		}
	}
	return time.Time{}
}

type exchangeRequest struct {
	Code           string `json:"code"`
	CodeVerifier   string `json:"code_verifier"`
	RedirectURI    string `json:"redirect_uri"`
	InvitationCode string `json:"invitation_code,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}
