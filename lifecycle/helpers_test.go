package lifecycle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/tokenkeeper/callback"
	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/logger"
	"github.com/kbukum/tokenkeeper/provider"
	"github.com/kbukum/tokenkeeper/social"
	"github.com/kbukum/tokenkeeper/sso"
	"github.com/kbukum/tokenkeeper/tokenstore"
)

var fixedNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

const testProfileArn = "arn:aws:codewhisperer:us-east-1:123456789012:profile/TEST"

// backend stubs both the SSO-OIDC and the social endpoints.
type backend struct {
	mu     sync.Mutex
	calls  map[string]int
	bodies map[string][]map[string]any
	auth   map[string]string
	// fail queues status codes returned before a path succeeds.
	fail map[string][]int
	// rotate makes refresh responses carry a new refresh token.
	rotate bool
}

func newBackend() *backend {
	return &backend{
		calls:  map[string]int{},
		bodies: map[string][]map[string]any{},
		auth:   map[string]string{},
		fail:   map[string][]int{},
	}
}

func (b *backend) failNext(path string, statuses ...int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[path] = append(b.fail[path], statuses...)
}

func (b *backend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

func (b *backend) lastBody(path string) map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	bodies := b.bodies[path]
	if len(bodies) == 0 {
		return nil
	}
	return bodies[len(bodies)-1]
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls[r.URL.Path]++
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	b.bodies[r.URL.Path] = append(b.bodies[r.URL.Path], body)
	b.auth[r.URL.Path] = r.Header.Get("Authorization")
	var status int
	if queue := b.fail[r.URL.Path]; len(queue) > 0 {
		status, b.fail[r.URL.Path] = queue[0], queue[1:]
	}
	rotate := b.rotate
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"injected failure"}`))
		return
	}

	resp := map[string]any{}
	switch r.URL.Path {
	case "/client/register":
		resp = map[string]any{
			"clientId":              "cid",
			"clientSecret":          "csecret",
			"clientIdIssuedAt":      fixedNow.Unix(),
			"clientSecretExpiresAt": fixedNow.Add(90 * 24 * time.Hour).Unix(),
		}
	case "/token":
		if body["grantType"] == "refresh_token" {
			resp = map[string]any{"accessToken": "idc-access-2", "tokenType": "Bearer", "expiresIn": 3600}
			if rotate {
				resp["refreshToken"] = "idc-refresh-2"
			}
		} else {
			resp = map[string]any{
				"accessToken":  "idc-access",
				"refreshToken": "idc-refresh",
				"tokenType":    "Bearer",
				"expiresIn":    3600,
			}
		}
	case "/oauth/token":
		resp = map[string]any{
			"accessToken":  "social-access",
			"refreshToken": "social-refresh",
			"profileArn":   testProfileArn,
			"expiresIn":    3600,
		}
	case "/refreshToken":
		resp = map[string]any{"accessToken": "social-access-2", "expiresIn": 1800}
		if rotate {
			resp["refreshToken"] = "social-refresh-2"
		}
	case "/logout", "/account":
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

type outcome struct {
	result *callback.Result
	err    error
}

// fakeReceiver stands in for the loopback server of one attempt.
type fakeReceiver struct {
	redirect string
	outcomes chan outcome
	closed   bool
}

func (r *fakeReceiver) Start(context.Context) (string, error) { return r.redirect, nil }

func (r *fakeReceiver) Wait(ctx context.Context) (*callback.Result, error) {
	select {
	case o := <-r.outcomes:
		return o.result, o.err
	case <-ctx.Done():
		return nil, errors.Callback("stopped waiting").WithCause(ctx.Err())
	}
}

func (r *fakeReceiver) Close() error {
	r.closed = true
	return nil
}

// fakeUser plays the browser: it reads the authorization URL and answers on
// the current receiver.
type fakeUser struct {
	mu        sync.Mutex
	mode      string
	urls      []string
	receivers []*fakeReceiver
}

const (
	approve  = "approve"
	mismatch = "mismatch"
	deny     = "deny"
)

func (u *fakeUser) setMode(mode string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.mode = mode
}

func (u *fakeUser) receiverFactory(method provider.AuthMethod) callback.Receiver {
	u.mu.Lock()
	defer u.mu.Unlock()
	r := &fakeReceiver{
		redirect: "http://127.0.0.1:54321/oauth/callback",
		outcomes: make(chan outcome, 1),
	}
	if method == provider.AuthMethodSocial {
		r.redirect = "http://localhost:49153/oauth/callback"
	}
	u.receivers = append(u.receivers, r)
	return r
}

func (u *fakeUser) Open(_ context.Context, raw string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.urls = append(u.urls, raw)
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	state := parsed.Query().Get("state")
	current := u.receivers[len(u.receivers)-1]

	switch u.mode {
	case mismatch:
		current.outcomes <- outcome{result: &callback.Result{Code: "auth-code", State: "forged-state"}}
	case deny:
		current.outcomes <- outcome{err: errors.Callback("authorization failed: access_denied")}
	default:
		current.outcomes <- outcome{result: &callback.Result{Code: "auth-code", State: state, RedirectURI: current.redirect}}
	}
	return nil
}

func (u *fakeUser) lastURL(t *testing.T) url.Values {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.urls) == 0 {
		t.Fatal("expected the browser to be opened")
	}
	parsed, err := url.Parse(u.urls[len(u.urls)-1])
	if err != nil {
		t.Fatalf("parse authorization URL: %v", err)
	}
	return parsed.Query()
}

type harness struct {
	c       *Coordinator
	store   *tokenstore.Store
	dir     string
	backend *backend
	user    *fakeUser
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	b := newBackend()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	nop := logger.NewNop()
	dir := filepath.Join(t.TempDir(), "tokens")
	store, err := tokenstore.NewLocal(dir,
		tokenstore.WithClock(func() time.Time { return fixedNow }),
		tokenstore.WithLogger(nop))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	ssoClient, err := sso.New(sso.Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, sso.WithLogger(nop))
	if err != nil {
		t.Fatalf("sso.New: %v", err)
	}
	socialClient, err := social.New(social.Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, nop)
	if err != nil {
		t.Fatalf("social.New: %v", err)
	}

	user := &fakeUser{mode: approve}
	opts = append([]Option{
		WithSSO(ssoClient),
		WithSocial(socialClient),
		WithReceivers(user.receiverFactory),
		WithOpener(user),
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(nop),
	}, opts...)
	c, err := New(store, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{c: c, store: store, dir: dir, backend: b, user: user}
}

func (h *harness) save(t *testing.T, r *tokenstore.Record) string {
	t.Helper()
	res, err := h.store.Save(context.Background(), r)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	return res.ID
}

func socialRecord(expiresAt time.Time) *tokenstore.Record {
	r := tokenstore.NewSocial(provider.Google, "social-access", expiresAt, testProfileArn)
	r.RefreshToken = "social-refresh"
	r.AccountName = "dev@example.com"
	return r
}

func idcRecord(expiresAt time.Time) *tokenstore.Record {
	r := tokenstore.NewIdC(provider.BuilderID, "idc-access", expiresAt, tokenstore.IdCFields{
		Region:       "us-east-1",
		ClientIDHash: provider.ClientIDHash(provider.BuilderIDStartURL),
		ClientID:     "cid",
		ClientSecret: "csecret",
	})
	r.StartURL = provider.BuilderIDStartURL
	r.RefreshToken = "idc-refresh"
	r.AccountName = "builder"
	return r
}
