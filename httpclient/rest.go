package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/kbukum/tokenkeeper/errors"
)

// TypedResponse is a response whose JSON body was decoded into T.
type TypedResponse[T any] struct {
	StatusCode int
	Headers    map[string]string
	Data       T
}

// RequestOption configures a single request.
type RequestOption func(*Request)

// WithOperation names the request in errors.
func WithOperation(name string) RequestOption {
	return func(r *Request) { r.Operation = name }
}

// WithBearer authenticates the request with an access token.
func WithBearer(token string) RequestOption {
	return func(r *Request) { r.Bearer = token }
}

// Post sends body as JSON and decodes the answer into T.
func Post[T any](a *Adapter, ctx context.Context, path string, body any, opts ...RequestOption) (*TypedResponse[T], error) {
	return doTyped[T](a, ctx, http.MethodPost, path, body, opts...)
}

// Delete sends a DELETE and decodes the answer into T.
func Delete[T any](a *Adapter, ctx context.Context, path string, opts ...RequestOption) (*TypedResponse[T], error) {
	return doTyped[T](a, ctx, http.MethodDelete, path, nil, opts...)
}

// Empty decodes nothing; use it for endpoints whose body is irrelevant.
type Empty struct{}

// doTyped sends the request and decodes a non-empty body. A 2xx answer
// that is not valid JSON is a non-retryable PROVIDER error.
func doTyped[T any](a *Adapter, ctx context.Context, method, path string, body any, opts ...RequestOption) (*TypedResponse[T], error) {
	req := Request{
		Method: method,
		Path:   path,
		Body:   body,
	}
	for _, opt := range opts {
		opt(&req)
	}

	resp, err := a.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	var data T
	if _, skip := any(data).(Empty); !skip && len(strings.TrimSpace(string(resp.Body))) > 0 {
		if err := json.Unmarshal(resp.Body, &data); err != nil {
			op := req.Operation
			if op == "" {
				op = method + " " + path
			}
			return nil, errors.Provider(op, resp.StatusCode, string(truncate(resp.Body, a.config.MaxErrorBody))).
				WithDetail("reason", "malformed response body").
				WithCause(err)
		}
	}

	return &TypedResponse[T]{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Data:       data,
	}, nil
}

// encodeQuery renders query parameters sorted by key, with a leading "?".
func encodeQuery(query map[string]string) string {
	if len(query) == 0 {
		return ""
	}
	values := make(url.Values, len(query))
	for k, v := range query {
		values.Set(k, v)
	}
	return "?" + values.Encode()
}
