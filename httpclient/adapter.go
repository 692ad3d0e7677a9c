package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/kbukum/tokenkeeper/errors"
)

// Adapter sends JSON requests to one backend with a bounded timeout.
type Adapter struct {
	httpClient *http.Client
	config     Config
}

// New builds an adapter from cfg after applying defaults.
func New(cfg Config) (*Adapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		config: cfg,
	}, nil
}

// newTransport builds an HTTP/1.1 transport upgraded to HTTP/2 with idle
// health checks, so a long-running watcher notices dead connections.
func newTransport(cfg Config) (*http.Transport, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	if cfg.TLS != nil {
		tlsCfg, err := cfg.TLS.Build()
		if err != nil {
			return nil, errors.Configuration("tls", err.Error()).WithCause(err)
		}
		if tlsCfg != nil {
			transport.TLSClientConfig = tlsCfg
		}
	}

	h2, err := http2.ConfigureTransports(transport)
	if err != nil {
		return nil, errors.Configuration("transport", "configure http2").WithCause(err)
	}
	h2.ReadIdleTimeout = 30 * time.Second
	h2.PingTimeout = 15 * time.Second

	return transport, nil
}

// Do executes an HTTP request and returns the complete response. A non-2xx
// response is returned together with its PROVIDER error.
func (a *Adapter) Do(ctx context.Context, req Request) (*Response, error) {
	operation := req.Operation
	if operation == "" {
		operation = strings.TrimSpace(req.Method + " " + req.Path)
	}

	httpReq, err := a.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(ctx, operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	limit := a.config.MaxResponseBody
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, classifyTransport(ctx, operation, fmt.Errorf("read response body: %w", err))
	}
	if int64(len(body)) > limit {
		tooLarge := errors.Provider(operation, resp.StatusCode, string(truncate(body, a.config.MaxErrorBody)))
		tooLarge.Message = fmt.Sprintf("%s response exceeds %d bytes", operation, limit)
		tooLarge.Retryable = false
		return nil, tooLarge.WithDetail("limit", limit)
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaders(resp.Header),
		Body:       body,
	}

	if classErr := ClassifyStatusCode(operation, resp.StatusCode, truncate(body, a.config.MaxErrorBody)); classErr != nil {
		if a.config.Name != "" {
			classErr.WithDetail("backend", a.config.Name)
		}
		return result, classErr
	}

	return result, nil
}

// URL resolves path against the base URL without sending anything. Used to
// build browser-facing URLs.
func (a *Adapter) URL(path string, query map[string]string) string {
	return resolveURL(a.config.BaseURL, path) + encodeQuery(query)
}

// buildRequest applies the adapter defaults to req.
func (a *Adapter) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	url := resolveURL(a.config.BaseURL, req.Path)

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, errors.Configuration("body", fmt.Sprintf("encode body: %v", err)).WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, errors.Configuration("url", fmt.Sprintf("create request: %v", err)).WithCause(err)
	}

	if a.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", a.config.UserAgent)
	}
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	if body != nil && httpReq.Header.Get("Content-Type") == "" && contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	if req.Bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Bearer)
	}

	return httpReq, nil
}

func resolveURL(base, path string) string {
	if base == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// encodeBody converts a body value into an io.Reader and content type.
func encodeBody(body any) (io.Reader, string, error) {
	if body == nil {
		return nil, "", nil
	}
	switch v := body.(type) {
	case []byte:
		return bytes.NewReader(v), "application/json", nil
	case string:
		return strings.NewReader(v), "text/plain", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// flattenHeaders keeps the first value of each header.
func flattenHeaders(h http.Header) map[string]string {
	result := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			result[k] = v[0]
		}
	}
	return result
}

func truncate(body []byte, limit int64) []byte {
	if limit > 0 && int64(len(body)) > limit {
		return body[:limit]
	}
	return body
}
