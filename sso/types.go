package sso

import "time"

// GrantType is an OAuth token exchange mode.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
)

// DefaultScopes are requested when a registration names none.
var DefaultScopes = []string{
	"codewhisperer:completions",
	"codewhisperer:analysis",
	"codewhisperer:conversations",
	"codewhisperer:transformations",
	"codewhisperer:taskassist",
}

// DefaultRedirectURI is registered for loopback callbacks; the port is chosen per attempt.
const DefaultRedirectURI = "http://127.0.0.1/oauth/callback"

// RegisterInput holds the parameters of a dynamic client registration.
type RegisterInput struct {
	IssuerURL    string
	ClientName   string
	Scopes       []string
	GrantTypes   []GrantType
	RedirectURIs []string
}

// ClientRegistration is the result of a dynamic client registration.
type ClientRegistration struct {
	ClientID              string `json:"clientId"`
	ClientSecret          string `json:"clientSecret"`
	ClientIDIssuedAt      int64  `json:"clientIdIssuedAt"`
	ClientSecretExpiresAt int64  `json:"clientSecretExpiresAt"`
	AuthorizationEndpoint string `json:"authorizationEndpoint,omitempty"`
	TokenEndpoint         string `json:"tokenEndpoint,omitempty"`
}

// ExpiresAt returns when the client secret stops working. Zero means unknown.
func (r *ClientRegistration) ExpiresAt() time.Time {
	if r.ClientSecretExpiresAt <= 0 {
		return time.Time{}
	}
	return time.Unix(r.ClientSecretExpiresAt, 0)
}

// Expired reports whether the client secret has expired at now.
func (r *ClientRegistration) Expired(now time.Time) bool {
	exp := r.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// ExchangeInput holds the parameters of a /token call. Code, CodeVerifier and
// RedirectURI are used for authorization_code; RefreshToken for refresh_token.
type ExchangeInput struct {
	ClientID     string
	ClientSecret string
	GrantType    GrantType
	Code         string
	CodeVerifier string
	RedirectURI  string
	RefreshToken string
}

// TokenResponse is the body returned by /token.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	IDToken      string `json:"idToken,omitempty"`
	TokenType    string `json:"tokenType,omitempty"`
	ExpiresIn    int64  `json:"expiresIn,omitempty"`
}

// ExpiresAt computes the absolute expiry relative to issuedAt. Zero when the
// response carries no lifetime.
func (t *TokenResponse) ExpiresAt(issuedAt time.Time) time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return issuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// AuthorizeInput holds the parameters of the browser-facing authorize URL.
type AuthorizeInput struct {
	ClientID      string
	RedirectURI   string
	State         string
	CodeChallenge string
	Scopes        []string
}

type registerRequest struct {
	ClientName   string      `json:"clientName"`
	ClientType   string      `json:"clientType"`
	Scopes       []string    `json:"scopes"`
	GrantTypes   []GrantType `json:"grantTypes"`
	RedirectURIs []string    `json:"redirectUris"`
	IssuerURL    string      `json:"issuerUrl"`
}

type tokenRequest struct {
	ClientID     string    `json:"clientId"`
	ClientSecret string    `json:"clientSecret"`
	GrantType    GrantType `json:"grantType"`
	Code         string    `json:"code,omitempty"`
	CodeVerifier string    `json:"codeVerifier,omitempty"`
	RedirectURI  string    `json:"redirectUri,omitempty"`
	RefreshToken string    `json:"refreshToken,omitempty"`
}
