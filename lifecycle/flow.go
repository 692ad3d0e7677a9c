package lifecycle

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/pkce"
	"github.com/kbukum/tokenkeeper/provider"
	"github.com/kbukum/tokenkeeper/social"
	"github.com/kbukum/tokenkeeper/sso"
	"github.com/kbukum/tokenkeeper/tokenstore"
)

// DefaultLifetime is assumed when a token response carries no expiry.
const DefaultLifetime = time.Hour

// Target is the resolved destination of a login.
type Target struct {
	Kind       provider.Kind
	AuthMethod provider.AuthMethod
	// StartURL and Region apply to IdC only.
	StartURL string
	Region   string
	// IDP is the social identity provider tag.
	IDP            string
	InvitationCode string
}

// Credentials are the client credentials a flow authorizes with. Social
// flows have none.
type Credentials struct {
	ClientID     string
	ClientSecret string
	ExpiresAt    time.Time
}

// Grant is a token response normalized across backends.
type Grant struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string
	ProfileArn   string
	ExpiresIn    int64
	ExpiresAt    time.Time
}

// expiry returns the absolute expiry and lifetime relative to issuedAt,
// preferring ExpiresIn and falling back to DefaultLifetime.
func (g *Grant) expiry(issuedAt time.Time) (time.Time, int64) {
	switch {
	case g.ExpiresIn > 0:
		return issuedAt.Add(time.Duration(g.ExpiresIn) * time.Second), g.ExpiresIn
	case !g.ExpiresAt.IsZero():
		return g.ExpiresAt, int64(g.ExpiresAt.Sub(issuedAt) / time.Second)
	default:
		return issuedAt.Add(DefaultLifetime), int64(DefaultLifetime / time.Second)
	}
}

// Flow is the protocol capability behind one auth method.
type Flow interface {
	// RegisterOrSkip resolves client credentials for t. Flows without client
	// registration return nil credentials.
	RegisterOrSkip(ctx context.Context, t Target) (*Credentials, error)
	// AuthorizeURL builds the URL opened in the browser.
	AuthorizeURL(t Target, creds *Credentials, redirectURI string, p *pkce.Params) string
	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, t Target, creds *Credentials, code, verifier, redirectURI string) (*Grant, error)
	// Refresh renews the tokens of a stored record.
	Refresh(ctx context.Context, r *tokenstore.Record) (*Grant, error)
	// Revoke invalidates the record remotely where the backend supports it.
	Revoke(ctx context.Context, r *tokenstore.Record, deleteAccount bool) error
	// NewRecord builds the method-specific record for a fresh grant.
	NewRecord(t Target, creds *Credentials, g *Grant, now time.Time) *tokenstore.Record
}

// idcFlow runs logins against SSO-OIDC.
type idcFlow struct {
	client *sso.Client
}

// NewIdCFlow returns the IdC flow over client. Calls for other regions use a
// client derived with sso.Client.WithRegion.
func NewIdCFlow(client *sso.Client) Flow {
	return &idcFlow{client: client}
}

func (f *idcFlow) regional(region string) (*sso.Client, error) {
	return f.client.WithRegion(region)
}

func (f *idcFlow) RegisterOrSkip(ctx context.Context, t Target) (*Credentials, error) {
	c, err := f.regional(t.Region)
	if err != nil {
		return nil, err
	}
	reg, err := c.ResolveRegistration(ctx, sso.RegisterInput{IssuerURL: t.StartURL})
	if err != nil {
		return nil, err
	}
	return &Credentials{ClientID: reg.ClientID, ClientSecret: reg.ClientSecret, ExpiresAt: reg.ExpiresAt()}, nil
}

func (f *idcFlow) AuthorizeURL(t Target, creds *Credentials, redirectURI string, p *pkce.Params) string {
	c, err := f.regional(t.Region)
	if err != nil {
		c = f.client
	}
	return c.BuildAuthorizationURL(sso.AuthorizeInput{
		ClientID:      creds.ClientID,
		RedirectURI:   redirectURI,
		State:         p.State,
		CodeChallenge: p.CodeChallenge,
	})
}

func (f *idcFlow) Exchange(ctx context.Context, t Target, creds *Credentials, code, verifier, redirectURI string) (*Grant, error) {
	if creds == nil {
		return nil, errors.Configuration("clientId", "IdC exchange requires a client registration")
	}
	c, err := f.regional(t.Region)
	if err != nil {
		return nil, err
	}
	resp, err := c.ExchangeToken(ctx, sso.ExchangeInput{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		GrantType:    sso.GrantAuthorizationCode,
		Code:         code,
		CodeVerifier: verifier,
		RedirectURI:  redirectURI,
	})
	if err != nil {
		return nil, err
	}
	return ssoGrant(resp), nil
}

func (f *idcFlow) Refresh(ctx context.Context, r *tokenstore.Record) (*Grant, error) {
	if r.IdC == nil {
		return nil, errors.Configuration("authMethod", "record has no IdC client credentials")
	}
	c, err := f.regional(r.IdC.Region)
	if err != nil {
		return nil, err
	}
	resp, err := c.ExchangeToken(ctx, sso.ExchangeInput{
		ClientID:     r.IdC.ClientID,
		ClientSecret: r.IdC.ClientSecret,
		GrantType:    sso.GrantRefreshToken,
		RefreshToken: r.RefreshToken,
	})
	if err != nil {
		return nil, err
	}
	return ssoGrant(resp), nil
}

// Revoke is a no-op; SSO-OIDC offers no revocation endpoint.
func (f *idcFlow) Revoke(context.Context, *tokenstore.Record, bool) error { return nil }

func (f *idcFlow) NewRecord(t Target, creds *Credentials, g *Grant, now time.Time) *tokenstore.Record {
	exp, _ := g.expiry(now)
	r := tokenstore.NewIdC(t.Kind, g.AccessToken, exp, tokenstore.IdCFields{
		Region:       t.Region,
		ClientIDHash: provider.ClientIDHash(t.StartURL),
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
	})
	r.StartURL = t.StartURL
	return r
}

func ssoGrant(resp *sso.TokenResponse) *Grant {
	return &Grant{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		IDToken:      resp.IDToken,
		TokenType:    resp.TokenType,
		ExpiresIn:    resp.ExpiresIn,
	}
}

// socialFlow runs logins against the social login proxy.
type socialFlow struct {
	client *social.Client
}

// NewSocialFlow returns the social flow over client.
func NewSocialFlow(client *social.Client) Flow {
	return &socialFlow{client: client}
}

func (f *socialFlow) RegisterOrSkip(context.Context, Target) (*Credentials, error) {
	return nil, nil
}

func (f *socialFlow) AuthorizeURL(t Target, _ *Credentials, redirectURI string, p *pkce.Params) string {
	return f.client.BuildLoginURL(t.IDP, redirectURI, p.CodeChallenge, p.State)
}

func (f *socialFlow) Exchange(ctx context.Context, t Target, _ *Credentials, code, verifier, redirectURI string) (*Grant, error) {
	resp, err := f.client.ExchangeCode(ctx, code, verifier, redirectURI, t.InvitationCode)
	if err != nil {
		return nil, err
	}
	return socialGrant(resp), nil
}

func (f *socialFlow) Refresh(ctx context.Context, r *tokenstore.Record) (*Grant, error) {
	resp, err := f.client.Refresh(ctx, r.RefreshToken)
	if err != nil {
		return nil, err
	}
	return socialGrant(resp), nil
}

// Revoke logs the refresh token out and, when asked, deletes the account.
// Both calls are attempted; their errors are joined.
func (f *socialFlow) Revoke(ctx context.Context, r *tokenstore.Record, deleteAccount bool) error {
	var errs []error
	if r.RefreshToken != "" {
		if err := f.client.Logout(ctx, r.RefreshToken); err != nil {
			errs = append(errs, err)
		}
	}
	if deleteAccount {
		if err := f.client.DeleteAccount(ctx, r.AccessToken); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (f *socialFlow) NewRecord(t Target, _ *Credentials, g *Grant, now time.Time) *tokenstore.Record {
	exp, _ := g.expiry(now)
	return tokenstore.NewSocial(t.Kind, g.AccessToken, exp, g.ProfileArn)
}

func socialGrant(resp *social.TokenResponse) *Grant {
	g := &Grant{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		IDToken:      resp.IDToken,
		TokenType:    resp.TokenType,
		ProfileArn:   resp.ProfileArn,
		ExpiresIn:    resp.ExpiresIn,
	}
	if g.ExpiresIn <= 0 {
		// only an absolute expiresAt, if any
		g.ExpiresAt = resp.Expiry(time.Time{})
	}
	return g
}

var (
	_ Flow = (*idcFlow)(nil)
	_ Flow = (*socialFlow)(nil)
)
