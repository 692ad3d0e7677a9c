package sso

import (
	"context"
	"net/url"
	"strings"

	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/httpclient"
	"github.com/kbukum/tokenkeeper/logger"
	"github.com/kbukum/tokenkeeper/pkce"
)

// Client is an SSO-OIDC client bound to one region.
type Client struct {
	cfg     Config
	adapter *httpclient.Adapter
	cache   *RegistrationCache
	log     *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCache shares a registration cache between clients.
func WithCache(cache *RegistrationCache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l.WithComponent("sso") }
}

// New creates a client for cfg.Region.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	adapter, err := httpclient.New(httpclient.Config{
		Name:      "sso-oidc",
		BaseURL:   cfg.Endpoint(),
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
		TLS:       cfg.TLS,
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		adapter: adapter,
		log:     logger.WithComponent("sso"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithRegion returns a client for another region sharing this client's cache and logger.
func (c *Client) WithRegion(region string) (*Client, error) {
	if region == "" || region == c.cfg.Region {
		return c, nil
	}
	cfg := c.cfg
	cfg.Region = region
	return New(cfg, WithCache(c.cache), func(n *Client) { n.log = c.log })
}

// Region returns the region the client is bound to.
func (c *Client) Region() string { return c.cfg.Region }

// Scopes returns the configured default scopes.
func (c *Client) Scopes() []string { return c.cfg.Scopes }

// RegisterClient performs dynamic client registration.
func (c *Client) RegisterClient(ctx context.Context, in RegisterInput) (*ClientRegistration, error) {
	if strings.TrimSpace(in.IssuerURL) == "" {
		return nil, errors.Configuration("issuerUrl", "client registration requires an issuer URL")
	}

	req := registerRequest{
		ClientName:   in.ClientName,
		ClientType:   "public",
		Scopes:       in.Scopes,
		GrantTypes:   in.GrantTypes,
		RedirectURIs: in.RedirectURIs,
		IssuerURL:    in.IssuerURL,
	}
	if req.ClientName == "" {
		req.ClientName = c.cfg.ClientName
	}
	if len(req.Scopes) == 0 {
		req.Scopes = c.cfg.Scopes
	}
	if len(req.GrantTypes) == 0 {
		req.GrantTypes = []GrantType{GrantAuthorizationCode, GrantRefreshToken}
	}
	if len(req.RedirectURIs) == 0 {
		req.RedirectURIs = []string{DefaultRedirectURI}
	}

	resp, err := httpclient.Post[ClientRegistration](c.adapter, ctx, "/client/register", req,
		httpclient.WithOperation("client registration"))
	if err != nil {
		c.log.Warn("client registration failed", logger.Fields(
			logger.FieldRegion, c.cfg.Region,
			logger.FieldStatus, httpclient.StatusCode(err),
			logger.FieldError, err.Error(),
		))
		return nil, err
	}

	reg := resp.Data
	if reg.ClientID == "" || reg.ClientSecret == "" {
		return nil, errors.Provider("client registration", resp.StatusCode, "response is missing clientId or clientSecret")
	}
	c.log.Debug("client registered", logger.Fields(
		logger.FieldRegion, c.cfg.Region,
		"client_id", logger.Redact(reg.ClientID),
		"secret_expires_at", reg.ClientSecretExpiresAt,
	))
	return &reg, nil
}

// ResolveRegistration returns a cached registration for the issuer or registers a new one.
func (c *Client) ResolveRegistration(ctx context.Context, in RegisterInput) (*ClientRegistration, error) {
	if c.cache != nil {
		if reg, ok := c.cache.Get(c.cfg.Region, in.IssuerURL); ok {
			c.log.Debug("reusing client registration", logger.Fields(logger.FieldRegion, c.cfg.Region))
			return reg, nil
		}
	}
	reg, err := c.RegisterClient(ctx, in)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Put(c.cfg.Region, in.IssuerURL, reg)
	}
	return reg, nil
}

// InvalidateRegistration drops a cached registration.
func (c *Client) InvalidateRegistration(issuerURL string) {
	if c.cache != nil {
		c.cache.Invalidate(c.cfg.Region, issuerURL)
	}
}

// ExchangeToken calls /token for the authorization_code or refresh_token grant.
func (c *Client) ExchangeToken(ctx context.Context, in ExchangeInput) (*TokenResponse, error) {
	if err := validateExchange(in); err != nil {
		return nil, err
	}

	req := tokenRequest{
		ClientID:     in.ClientID,
		ClientSecret: in.ClientSecret,
		GrantType:    in.GrantType,
	}
	operation := "token exchange"
	switch in.GrantType {
	case GrantAuthorizationCode:
		req.Code = in.Code
		req.CodeVerifier = in.CodeVerifier
		req.RedirectURI = in.RedirectURI
	case GrantRefreshToken:
		req.RefreshToken = in.RefreshToken
		operation = "token refresh"
	}

	resp, err := httpclient.Post[TokenResponse](c.adapter, ctx, "/token", req,
		httpclient.WithOperation(operation))
	if err != nil {
		return nil, err
	}
	if resp.Data.AccessToken == "" {
		return nil, errors.Provider(operation, resp.StatusCode, "response is missing accessToken")
	}
	return &resp.Data, nil
}

func validateExchange(in ExchangeInput) error {
	v := map[string]string{"clientId": in.ClientID, "clientSecret": in.ClientSecret}
	switch in.GrantType {
	case GrantAuthorizationCode:
		v["code"] = in.Code
		v["codeVerifier"] = in.CodeVerifier
		v["redirectUri"] = in.RedirectURI
	case GrantRefreshToken:
		v["refreshToken"] = in.RefreshToken
	default:
		return errors.Configuration("grantType", "unsupported grant type: "+string(in.GrantType))
	}
	for _, field := range []string{"clientId", "clientSecret", "code", "codeVerifier", "redirectUri", "refreshToken"} {
		if val, ok := v[field]; ok && val == "" {
			return errors.Configuration(field, field+" is required for grant type "+string(in.GrantType))
		}
	}
	return nil
}

// BuildAuthorizationURL returns the browser-facing authorize URL. It performs no I/O.
func (c *Client) BuildAuthorizationURL(in AuthorizeInput) string {
	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = c.cfg.Scopes
	}
	return c.adapter.URL("/authorize", map[string]string{
		"response_type":         "code",
		"client_id":             in.ClientID,
		"redirect_uri":          in.RedirectURI,
		"scopes":                strings.Join(scopes, ","),
		"state":                 in.State,
		"code_challenge":        in.CodeChallenge,
		"code_challenge_method": pkce.MethodS256,
	})
}

// ParseAuthorizationURL extracts the query parameters of an authorize URL.
func ParseAuthorizationURL(raw string) (url.Values, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Configuration("url", "malformed authorization URL").WithCause(err)
	}
	return u.Query(), nil
}
