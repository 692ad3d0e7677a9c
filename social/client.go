package social

import (
	"context"
	"strings"

	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/httpclient"
	"github.com/kbukum/tokenkeeper/logger"
	"github.com/kbukum/tokenkeeper/pkce"
)

const (
	pathLogin   = "/login"
	pathToken   = "/oauth/token"
	pathRefresh = "/refreshToken"
	pathLogout  = "/logout"
	pathAccount = "/account"
)

// Client calls the social login proxy.
type Client struct {
	adapter *httpclient.Adapter
	log     *logger.Logger
}

// New creates a social client.
func New(cfg Config, l *logger.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	adapter, err := httpclient.New(httpclient.Config{
		Name:      "social-auth",
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
		TLS:       cfg.TLS,
	})
	if err != nil {
		return nil, err
	}
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &Client{adapter: adapter, log: l.WithComponent("social")}, nil
}

// BuildLoginURL returns the URL opened in the browser. idp is forwarded
// verbatim; the backend decides whether it is supported.
func (c *Client) BuildLoginURL(idp, redirectURI, codeChallenge, state string) string {
	return c.adapter.URL(pathLogin, map[string]string{
		"idp":                   idp,
		"redirect_uri":          redirectURI,
		"code_challenge":        codeChallenge,
		"code_challenge_method": pkce.MethodS256,
		"state":                 state,
	})
}

// ExchangeCode trades an authorization code for tokens. invitationCode is optional.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI, invitationCode string) (*TokenResponse, error) {
	for field, v := range map[string]string{"code": code, "codeVerifier": codeVerifier, "redirectUri": redirectURI} {
		if strings.TrimSpace(v) == "" {
			return nil, errors.Configuration(field, field+" is required for code exchange")
		}
	}
	resp, err := httpclient.Post[TokenResponse](c.adapter, ctx, pathToken, exchangeRequest{
		Code:           code,
		CodeVerifier:   codeVerifier,
		RedirectURI:    redirectURI,
		InvitationCode: invitationCode,
	}, httpclient.WithOperation("social code exchange"))
	if err != nil {
		return nil, err
	}
	return checkTokens("social code exchange", resp)
}

// Refresh obtains a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, errors.Configuration("refreshToken", "refreshToken is required")
	}
	resp, err := httpclient.Post[TokenResponse](c.adapter, ctx, pathRefresh, refreshRequest{RefreshToken: refreshToken},
		httpclient.WithOperation("social token refresh"))
	if err != nil {
		return nil, err
	}
	return checkTokens("social token refresh", resp)
}

// Logout invalidates the refresh token remotely. Failures are returned so the
// caller can report them; local deletion does not depend on the outcome.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return errors.Configuration("refreshToken", "refreshToken is required")
	}
	_, err := httpclient.Post[httpclient.Empty](c.adapter, ctx, pathLogout, refreshRequest{RefreshToken: refreshToken},
		httpclient.WithOperation("social logout"))
	if err != nil {
		c.log.Warn("remote logout failed", logger.ErrorFields("logout", err))
	}
	return err
}

// DeleteAccount deletes the remote account behind accessToken.
func (c *Client) DeleteAccount(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return errors.Configuration("accessToken", "accessToken is required")
	}
	_, err := httpclient.Delete[httpclient.Empty](c.adapter, ctx, pathAccount,
		httpclient.WithBearer(accessToken),
		httpclient.WithOperation("social account deletion"))
	if err != nil {
		c.log.Warn("remote account deletion failed", logger.ErrorFields("delete_account", err))
	}
	return err
}

func checkTokens(operation string, resp *httpclient.TypedResponse[TokenResponse]) (*TokenResponse, error) {
	if resp.Data.AccessToken == "" {
		return nil, errors.Provider(operation, resp.StatusCode, "response is missing accessToken")
	}
	return &resp.Data, nil
}
