package httpclient

import (
	"context"
	stderrors "errors"
	"net"

	"github.com/kbukum/tokenkeeper/errors"
)

// ClassifyStatusCode converts a non-2xx status into a PROVIDER error carrying
// the raw body. Returns nil for 2xx status codes.
func ClassifyStatusCode(operation string, statusCode int, body []byte) *errors.AppError {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	return errors.Provider(operation, statusCode, string(body))
}

// classifyTransport maps a failed round trip to a TRANSPORT error, flagging timeouts.
func classifyTransport(ctx context.Context, operation string, err error) *errors.AppError {
	if stderrors.Is(err, context.Canceled) && ctx.Err() != nil {
		return errors.Transport(operation, err).WithDetail("canceled", true)
	}
	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.Timeout(operation, err)
	}
	return errors.Transport(operation, err)
}

// IsTimeout checks if an error is a transport timeout.
func IsTimeout(err error) bool {
	appErr, ok := errors.AsAppError(err)
	return ok && appErr.Code == errors.ErrCodeTransport && appErr.Details["timeout"] == true
}

// StatusCode returns the upstream status of a PROVIDER error, zero otherwise.
func StatusCode(err error) int {
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeProvider {
		return 0
	}
	return appErr.HTTPStatus
}
