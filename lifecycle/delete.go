package lifecycle

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/logger"
	"github.com/kbukum/tokenkeeper/observability"
)

// DeleteOption adjusts Delete.
type DeleteOption func(*deleteOptions)

type deleteOptions struct {
	deleteAccount bool
}

// AlsoDeleteAccount deletes the remote account as well as logging out.
// It only applies to backends that support account deletion.
func AlsoDeleteAccount() DeleteOption {
	return func(o *deleteOptions) { o.deleteAccount = true }
}

// DeleteResult reports the outcome of Delete.
type DeleteResult struct {
	ID    string
	State State
	// RemoteErr is the remote revocation failure, if any. The local record
	// is deleted regardless.
	RemoteErr error
}

// Delete removes the record under id. With revokeRemote the record is first
// revoked remotely; a remote failure is reported in the result and does not
// stop the local deletion.
func (c *Coordinator) Delete(ctx context.Context, id string, revokeRemote bool, opts ...DeleteOption) (_ *DeleteResult, err error) {
	var o deleteOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, op := observability.StartOperation(ctx, c.metrics, "delete",
		attribute.String(observability.AttrTokenID, id),
		attribute.Bool("tokenkeeper.revoke_remote", revokeRemote),
	)
	defer func() { op.End(ctx, err) }()

	result := &DeleteResult{ID: id}
	if revokeRemote {
		result.RemoteErr = c.revoke(ctx, id, o.deleteAccount)
		if errors.IsKind(result.RemoteErr, errors.ErrCodeNotFound) {
			return nil, result.RemoteErr
		}
	}

	if err := c.store.Delete(ctx, id); err != nil {
		return nil, err
	}
	result.State = RevokedByUser

	fields := logger.Fields(logger.FieldTokenID, id, "state", result.State.String())
	if result.RemoteErr != nil {
		fields[logger.FieldError] = result.RemoteErr.Error()
		c.log.Warn("token deleted locally, remote revocation failed", fields)
	} else {
		c.log.Info("token deleted", fields)
	}
	return result, nil
}

func (c *Coordinator) revoke(ctx context.Context, id string, deleteAccount bool) error {
	r, err := c.store.Read(ctx, id)
	if err != nil {
		return err
	}
	flow, err := c.flow(r.AuthMethod)
	if err != nil {
		return err
	}
	return flow.Revoke(ctx, r, deleteAccount)
}
