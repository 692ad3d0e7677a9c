package lifecycle

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/logger"
	"github.com/kbukum/tokenkeeper/observability"
	"github.com/kbukum/tokenkeeper/resilience"
	"github.com/kbukum/tokenkeeper/tokenstore"
)

// Refresh renews the record under id in place. The refresh token is kept
// when the backend does not rotate it. On failure the stored record is left
// untouched.
func (c *Coordinator) Refresh(ctx context.Context, id string) (_ *tokenstore.Record, err error) {
	ctx, op := observability.StartOperation(ctx, c.metrics, "refresh", attribute.String(observability.AttrTokenID, id))
	defer func() { op.End(ctx, err) }()
	log := c.log.WithContext(ctx)

	current, err := c.store.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	op.SetAttributes(observability.ProviderAttrs(string(current.Provider), string(current.AuthMethod))...)
	op.SetAttributes(attribute.String(observability.AttrState, StateForStatus(tokenstore.ExpiryStatus(current, c.now())).String()))

	if !current.CanRefresh() {
		return nil, errors.Configuration("refreshToken", "token "+id+" has no refresh token")
	}
	flow, err := c.flow(current.AuthMethod)
	if err != nil {
		return nil, err
	}

	fields := logger.Fields(
		logger.FieldTokenID, id,
		logger.FieldProvider, current.Provider,
		logger.FieldAuthMethod, current.AuthMethod,
	)
	log.Debug("refreshing token", fields)

	started := time.Now()
	grant, err := c.refreshGrant(ctx, op, flow, current)
	if err != nil {
		c.metrics.RecordRefresh(ctx, string(current.Provider), string(current.AuthMethod), observability.StatusFailure)
		log.Warn("token refresh failed", logger.Fields(
			logger.FieldTokenID, id,
			logger.FieldProvider, current.Provider,
			logger.FieldError, err.Error(),
		))
		return nil, err
	}

	updated, err := c.store.Update(ctx, id, applyGrant(current, grant, c.now()))
	if err != nil {
		c.metrics.RecordRefresh(ctx, string(current.Provider), string(current.AuthMethod), observability.StatusFailure)
		return nil, err
	}
	c.metrics.RecordRefresh(ctx, string(current.Provider), string(current.AuthMethod), observability.StatusSuccess)
	done := logger.DurationFields("refresh", time.Since(started))
	done[logger.FieldExpiry] = updated.ExpiresAt
	log.Info("token refreshed", fields, done)
	return updated, nil
}

func (c *Coordinator) refreshGrant(ctx context.Context, op *observability.Operation, flow Flow, r *tokenstore.Record) (*Grant, error) {
	if !c.retry.Enabled() {
		return flow.Refresh(ctx, r)
	}
	cfg := c.retry
	log := c.log.WithContext(ctx)
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		op.Event("retry", attribute.Int(observability.AttrAttempt, attempt))
		log.Debug("retrying token refresh", logger.Fields(
			logger.FieldProvider, r.Provider,
			"attempt", attempt,
			"backoff", backoff.String(),
			logger.FieldError, err.Error(),
		))
		if c.retry.OnRetry != nil {
			c.retry.OnRetry(attempt, err, backoff)
		}
	}
	return resilience.Retry(ctx, cfg, func(int) (*Grant, error) {
		return flow.Refresh(ctx, r)
	})
}

// applyGrant returns a copy of r carrying the renewed tokens.
func applyGrant(r *tokenstore.Record, g *Grant, now time.Time) *tokenstore.Record {
	next := r.Clone()
	exp, expiresIn := g.expiry(now)
	next.AccessToken = g.AccessToken
	next.ExpiresAt = tokenstore.FormatTime(exp)
	next.ExpiresIn = expiresIn
	if g.RefreshToken != "" {
		next.RefreshToken = g.RefreshToken
	}
	if g.IDToken != "" {
		next.IDToken = g.IDToken
	}
	if g.TokenType != "" {
		next.TokenType = g.TokenType
	}
	if g.ProfileArn != "" && next.Social != nil {
		next.Social.ProfileArn = g.ProfileArn
	}
	return next
}

// EnsureResult reports what EnsureFresh did.
type EnsureResult struct {
	Record    *tokenstore.Record
	Status    tokenstore.Status
	Refreshed bool
}

// EnsureFresh refreshes the record under id when it is expiring or expired
// and has a refresh token. Otherwise the stored record is returned as is.
func (c *Coordinator) EnsureFresh(ctx context.Context, id string) (_ *EnsureResult, err error) {
	ctx, op := observability.StartOperation(ctx, c.metrics, "ensure_fresh", attribute.String(observability.AttrTokenID, id))
	defer func() { op.End(ctx, err) }()

	r, err := c.store.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	status := tokenstore.ExpiryStatus(r, c.now())
	op.SetAttributes(attribute.String(observability.AttrState, StateForStatus(status).String()))

	if !tokenstore.NeedsRefresh(r, c.now()) {
		return &EnsureResult{Record: r, Status: status}, nil
	}
	if !r.CanRefresh() {
		c.log.Warn("token needs refresh but has no refresh token", logger.Fields(
			logger.FieldTokenID, id,
			"status", string(status),
		))
		return &EnsureResult{Record: r, Status: status}, nil
	}

	updated, err := c.Refresh(ctx, id)
	if err != nil {
		return nil, err
	}
	return &EnsureResult{Record: updated, Status: tokenstore.ExpiryStatus(updated, c.now()), Refreshed: true}, nil
}
