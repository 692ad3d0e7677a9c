package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/logger"
	"github.com/kbukum/tokenkeeper/observability"
	"github.com/kbukum/tokenkeeper/pkce"
	"github.com/kbukum/tokenkeeper/provider"
	"github.com/kbukum/tokenkeeper/tokenstore"
)

// LoginRequest names what to log in to.
type LoginRequest struct {
	Provider provider.Kind
	// StartURL is required for Enterprise and ignored for social providers.
	StartURL string
	// Region overrides the provider's SSO-OIDC region.
	Region         string
	AccountName    string
	InvitationCode string
}

func resolveTarget(p provider.Profile, req LoginRequest) (Target, error) {
	t := Target{Kind: p.Kind, AuthMethod: p.AuthMethod, InvitationCode: req.InvitationCode}
	switch p.AuthMethod {
	case provider.AuthMethodIdC:
		if p.RequiresStartURL && strings.TrimSpace(req.StartURL) == "" {
			return t, errors.Configuration("startUrl", string(p.Kind)+" provider requires a start URL")
		}
		startURL, err := provider.ResolveStartURL(p.Kind, req.StartURL)
		if err != nil {
			return t, err
		}
		t.StartURL = startURL
		t.Region = req.Region
		if t.Region == "" {
			t.Region = p.Region
		}
		if t.Region == "" {
			t.Region = provider.DefaultRegion
		}
	case provider.AuthMethodSocial:
		t.IDP = p.SocialIDP
	}
	return t, nil
}

// Login runs the authorization code flow for req and saves the resulting
// record. When the browser step or the code exchange fails the returned
// session is back in ClientResolved and may be passed to Retry.
func (c *Coordinator) Login(ctx context.Context, req LoginRequest) (_ *Session, err error) {
	profile, err := c.registry.Lookup(req.Provider)
	if err != nil {
		return nil, err
	}
	flow, err := c.flow(profile.AuthMethod)
	if err != nil {
		return nil, err
	}
	target, err := resolveTarget(profile, req)
	if err != nil {
		return nil, err
	}

	ctx, op := observability.StartOperation(ctx, c.metrics, "login",
		observability.ProviderAttrs(string(target.Kind), string(target.AuthMethod))...)
	defer func() { op.End(ctx, err) }()

	s := newSession(req, profile, target)
	c.log.WithContext(ctx).Info("starting login", logger.Fields(
		logger.FieldProvider, target.Kind,
		logger.FieldAuthMethod, target.AuthMethod,
	))

	params, err := pkce.Generate()
	if err != nil {
		return s, c.fail(s, err)
	}
	s.params = params
	c.to(s, PKCEGenerated)

	creds, err := flow.RegisterOrSkip(ctx, target)
	if err != nil {
		return s, c.fail(s, err)
	}
	s.credentials = creds
	c.to(s, ClientResolved)

	return s, c.attempt(ctx, s, flow)
}

// Retry re-runs the browser step of a session left in ClientResolved with
// fresh PKCE parameters. It fails with ATTEMPTS_EXHAUSTED once the session
// has used its attempts.
func (c *Coordinator) Retry(ctx context.Context, s *Session) (err error) {
	if state := s.State(); state != ClientResolved {
		return errors.Configuration("session", fmt.Sprintf("login cannot be retried from state %s", state))
	}
	flow, err := c.flow(s.Target.AuthMethod)
	if err != nil {
		return err
	}

	ctx, op := observability.StartOperation(ctx, c.metrics, "login",
		observability.ProviderAttrs(string(s.Target.Kind), string(s.Target.AuthMethod))...)
	defer func() { op.End(ctx, err) }()

	params, err := pkce.Generate()
	if err != nil {
		return c.fail(s, err)
	}
	s.mu.Lock()
	s.params = params
	s.mu.Unlock()
	return c.attempt(ctx, s, flow)
}

// attempt runs one browser round trip from ClientResolved.
func (c *Coordinator) attempt(ctx context.Context, s *Session, flow Flow) error {
	s.mu.Lock()
	s.attempts++
	n := s.attempts
	params, creds := s.params, s.credentials
	s.mu.Unlock()

	if n > c.maxAttempts {
		return c.fail(s, errors.New(ErrCodeAttemptsExhausted,
			fmt.Sprintf("login gave up after %d attempts", c.maxAttempts)).WithCause(s.Err()))
	}

	log := c.log.WithContext(ctx)
	receiver := c.receivers(s.Target.AuthMethod)
	defer func() {
		if err := receiver.Close(); err != nil {
			log.Warn("closing callback receiver", logger.ErrorFields("login", err))
		}
	}()

	redirectURI, err := receiver.Start(ctx)
	if err != nil {
		return c.retryable(s, err)
	}
	authURL := flow.AuthorizeURL(s.Target, creds, redirectURI, params)
	c.to(s, AwaitingCallback)

	log.Info("waiting for authorization", logger.Fields(
		logger.FieldProvider, s.Target.Kind,
		logger.FieldURL, redirectURI,
		"attempt", n,
	))
	if err := c.opener.Open(ctx, authURL); err != nil {
		c.to(s, ClientResolved)
		return c.retryable(s, err)
	}

	res, err := receiver.Wait(ctx)
	if err != nil {
		c.to(s, ClientResolved)
		return c.retryable(s, err)
	}
	if !pkce.StateMatches(params.State, res.State) {
		return c.fail(s, errors.Callback("state mismatch in authorization callback").
			WithDetail(logger.FieldState, res.State))
	}

	c.to(s, Exchanging)
	grant, err := flow.Exchange(ctx, s.Target, creds, res.Code, params.CodeVerifier, redirectURI)
	if err != nil {
		c.to(s, ClientResolved)
		return c.retryable(s, err)
	}

	saved, err := c.store.Save(ctx, c.buildRecord(flow, s, creds, grant))
	if err != nil {
		return c.fail(s, err)
	}
	s.mu.Lock()
	s.result = saved
	s.lastErr = nil
	s.mu.Unlock()
	c.to(s, Persisted)

	c.metrics.RecordLogin(ctx, string(s.Target.Kind), string(s.Target.AuthMethod), observability.StatusSuccess)
	log.Info("login complete", logger.Fields(
		logger.FieldTokenID, saved.ID,
		logger.FieldProvider, s.Target.Kind,
		"location", saved.Location,
	))
	return nil
}

func (c *Coordinator) buildRecord(flow Flow, s *Session, creds *Credentials, g *Grant) *tokenstore.Record {
	now := c.now()
	r := flow.NewRecord(s.Target, creds, g, now)
	_, expiresIn := g.expiry(now)
	r.RefreshToken = g.RefreshToken
	r.IDToken = g.IDToken
	r.TokenType = g.TokenType
	r.ExpiresIn = expiresIn
	r.CreatedAt = tokenstore.FormatTime(now)
	r.AccountName = s.Request.AccountName
	return r
}

// retryable records err and leaves the session in ClientResolved.
func (c *Coordinator) retryable(s *Session, err error) error {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	c.metrics.RecordLogin(context.Background(), string(s.Target.Kind), string(s.Target.AuthMethod), observability.StatusFailure)
	c.log.Warn("login attempt failed", logger.Fields(
		logger.FieldProvider, s.Target.Kind,
		logger.FieldError, err.Error(),
		"attempt", s.Attempts(),
	))
	return err
}

// fail ends the session.
func (c *Coordinator) fail(s *Session, err error) error {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	c.to(s, Terminal)
	c.metrics.RecordLogin(context.Background(), string(s.Target.Kind), string(s.Target.AuthMethod), observability.StatusFailure)
	c.log.Error("login failed", logger.Fields(
		logger.FieldProvider, s.Target.Kind,
		logger.FieldError, err.Error(),
	))
	return err
}

func (c *Coordinator) to(s *Session, state State) {
	from := s.State()
	if err := s.advance(state, c.now()); err != nil {
		c.log.Error("lifecycle transition rejected", logger.Fields(logger.FieldError, err.Error()))
		return
	}
	c.log.Debug("lifecycle transition", logger.Fields("from", from.String(), "to", state.String()))
}
