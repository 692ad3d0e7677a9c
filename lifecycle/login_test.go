package lifecycle

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/pkce"
	"github.com/kbukum/tokenkeeper/provider"
	"github.com/kbukum/tokenkeeper/tokenstore"
)

func states(history []Transition) []State {
	out := make([]State, 0, len(history))
	for _, tr := range history {
		out = append(out, tr.To)
	}
	return out
}

func equalStates(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLogin_IdC(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.c.Login(ctx, LoginRequest{Provider: provider.BuilderID, AccountName: "dev@example.com"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if s.State() != Persisted {
		t.Fatalf("expected Persisted, got %s", s.State())
	}
	want := []State{PKCEGenerated, ClientResolved, AwaitingCallback, Exchanging, Persisted}
	if got := states(s.History()); !equalStates(got, want) {
		t.Errorf("expected history %v, got %v", want, got)
	}

	q := h.user.lastURL(t)
	if q.Get("client_id") != "cid" || q.Get("code_challenge_method") != "S256" {
		t.Errorf("unexpected authorize query %v", q)
	}
	if q.Get("redirect_uri") != "http://127.0.0.1:54321/oauth/callback" {
		t.Errorf("expected loopback redirect, got %q", q.Get("redirect_uri"))
	}

	exchange := h.backend.lastBody("/token")
	verifier, _ := exchange["codeVerifier"].(string)
	if !pkce.VerifyChallenge(verifier, q.Get("code_challenge")) {
		t.Error("expected the exchanged verifier to match the authorized challenge")
	}
	if exchange["code"] != "auth-code" || exchange["clientSecret"] != "csecret" {
		t.Errorf("unexpected exchange body %v", exchange)
	}

	res := s.Result()
	r, err := h.store.Read(ctx, res.ID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.AccessToken != "idc-access" || r.RefreshToken != "idc-refresh" {
		t.Errorf("unexpected tokens %+v", r.Common)
	}
	if r.StartURL != provider.BuilderIDStartURL || r.IdC.Region != "us-east-1" || r.IdC.ClientID != "cid" {
		t.Errorf("unexpected IdC fields %+v %+v", r.Common, r.IdC)
	}
	if r.IdC.ClientIDHash != provider.ClientIDHash(provider.BuilderIDStartURL) {
		t.Errorf("unexpected clientIdHash %q", r.IdC.ClientIDHash)
	}
	if r.ExpiresAt != "2026-01-01T01:00:00.000Z" || r.ExpiresIn != 3600 {
		t.Errorf("expected expiry one hour out, got %q (%d)", r.ExpiresAt, r.ExpiresIn)
	}
	if r.CreatedAt != "2026-01-01T00:00:00.000Z" {
		t.Errorf("unexpected createdAt %q", r.CreatedAt)
	}
	if !h.user.receivers[0].closed {
		t.Error("expected the receiver to be closed")
	}
}

func TestLogin_Social(t *testing.T) {
	h := newHarness(t)

	s, err := h.c.Login(context.Background(), LoginRequest{Provider: provider.Github, InvitationCode: "INV-1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	q := h.user.lastURL(t)
	if q.Get("idp") != "Github" {
		t.Errorf("expected idp Github, got %q", q.Get("idp"))
	}
	if q.Get("redirect_uri") != "http://localhost:49153/oauth/callback" {
		t.Errorf("unexpected redirect_uri %q", q.Get("redirect_uri"))
	}
	body := h.backend.lastBody("/oauth/token")
	if body["invitation_code"] != "INV-1" || body["redirect_uri"] != q.Get("redirect_uri") {
		t.Errorf("unexpected exchange body %v", body)
	}
	if h.backend.count("/client/register") != 0 {
		t.Error("social logins must not register a client")
	}

	r := s.Result().Record
	if r.AuthMethod != provider.AuthMethodSocial || r.Social.ProfileArn != testProfileArn {
		t.Errorf("unexpected social record %+v %+v", r.Common, r.Social)
	}
	if r.IdC != nil {
		t.Error("expected no IdC fields on a social record")
	}
}

func TestLogin_StateMismatch(t *testing.T) {
	h := newHarness(t)
	h.user.setMode(mismatch)

	s, err := h.c.Login(context.Background(), LoginRequest{Provider: provider.Google})
	if !errors.IsKind(err, errors.ErrCodeCallback) {
		t.Fatalf("expected CALLBACK error, got %v", err)
	}
	if s.State() != Terminal {
		t.Errorf("expected Terminal, got %s", s.State())
	}
	if h.backend.count("/oauth/token") != 0 {
		t.Error("expected no exchange after a state mismatch")
	}
	if err := h.c.Retry(context.Background(), s); !errors.IsKind(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected a terminal session to refuse retry, got %v", err)
	}
	assertNoTokens(t, h)
}

func TestLogin_ExchangeFailureThenRetry(t *testing.T) {
	h := newHarness(t)
	h.backend.failNext("/token", 400)
	ctx := context.Background()

	s, err := h.c.Login(ctx, LoginRequest{Provider: provider.BuilderID})
	if !errors.IsKind(err, errors.ErrCodeProvider) {
		t.Fatalf("expected PROVIDER error, got %v", err)
	}
	if s.State() != ClientResolved {
		t.Fatalf("expected ClientResolved after a failed exchange, got %s", s.State())
	}
	assertNoTokens(t, h)

	firstState := h.user.lastURL(t).Get("state")
	if err := h.c.Retry(ctx, s); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if s.State() != Persisted || s.Attempts() != 2 {
		t.Errorf("expected Persisted after 2 attempts, got %s after %d", s.State(), s.Attempts())
	}
	if h.user.lastURL(t).Get("state") == firstState {
		t.Error("expected fresh PKCE state on retry")
	}
	if h.backend.count("/client/register") != 1 {
		t.Errorf("expected a single registration, got %d", h.backend.count("/client/register"))
	}
}

func TestRetry_Exhausted(t *testing.T) {
	h := newHarness(t, WithMaxExchangeAttempts(2))
	h.backend.failNext("/oauth/token", 400, 400)
	ctx := context.Background()

	s, err := h.c.Login(ctx, LoginRequest{Provider: provider.Google})
	if err == nil {
		t.Fatal("expected the first attempt to fail")
	}
	if err := h.c.Retry(ctx, s); !errors.IsKind(err, errors.ErrCodeProvider) {
		t.Fatalf("expected PROVIDER on second attempt, got %v", err)
	}
	err = h.c.Retry(ctx, s)
	if !errors.IsKind(err, ErrCodeAttemptsExhausted) {
		t.Fatalf("expected ATTEMPTS_EXHAUSTED, got %v", err)
	}
	if s.State() != Terminal {
		t.Errorf("expected Terminal, got %s", s.State())
	}
	if len(h.user.urls) != 2 {
		t.Errorf("expected the browser to open twice, got %d", len(h.user.urls))
	}
}

func TestLogin_CallbackDenied(t *testing.T) {
	h := newHarness(t)
	h.user.setMode(deny)

	s, err := h.c.Login(context.Background(), LoginRequest{Provider: provider.Google})
	if !errors.IsKind(err, errors.ErrCodeCallback) {
		t.Fatalf("expected CALLBACK error, got %v", err)
	}
	if s.State() != ClientResolved {
		t.Errorf("expected ClientResolved, got %s", s.State())
	}
	if s.Err() != err {
		t.Errorf("expected session to keep the error, got %v", s.Err())
	}

	h.user.setMode(approve)
	if err := h.c.Retry(context.Background(), s); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if s.Err() != nil {
		t.Errorf("expected error cleared after success, got %v", s.Err())
	}
}

func TestLogin_Preconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if s, err := h.c.Login(ctx, LoginRequest{Provider: "Nope"}); s != nil || !errors.IsKind(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION for unknown provider, got %v", err)
	}
	if _, err := h.c.Login(ctx, LoginRequest{Provider: provider.Enterprise}); !errors.IsKind(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION for Enterprise without start URL, got %v", err)
	}
	if len(h.user.urls) != 0 {
		t.Error("expected no browser activity")
	}
}

func TestLogin_Enterprise(t *testing.T) {
	h := newHarness(t)
	start := "https://acme.awsapps.com/start"

	s, err := h.c.Login(context.Background(), LoginRequest{Provider: provider.Enterprise, StartURL: start, Region: "us-east-1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if issuer := h.backend.lastBody("/client/register")["issuerUrl"]; issuer != start {
		t.Errorf("expected issuer %q, got %v", start, issuer)
	}
	r := s.Result().Record
	if r.StartURL != start || r.IdC.ClientIDHash != provider.ClientIDHash(start) {
		t.Errorf("unexpected enterprise record %+v %+v", r.Common, r.IdC)
	}
}

func TestLogin_NoFlowForMethod(t *testing.T) {
	store, err := tokenstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	c, err := New(store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Login(context.Background(), LoginRequest{Provider: provider.Google}); !errors.IsKind(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION without a social flow, got %v", err)
	}
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := New(nil); !errors.IsKind(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION, got %v", err)
	}
}

func TestGrantExpiry(t *testing.T) {
	tests := []struct {
		name   string
		grant  Grant
		want   time.Time
		wantIn int64
	}{
		{"expires in", Grant{ExpiresIn: 600}, fixedNow.Add(10 * time.Minute), 600},
		{"absolute", Grant{ExpiresAt: fixedNow.Add(time.Hour)}, fixedNow.Add(time.Hour), 3600},
		{"missing", Grant{}, fixedNow.Add(DefaultLifetime), 3600},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, in := tc.grant.expiry(fixedNow)
			if !got.Equal(tc.want) || in != tc.wantIn {
				t.Errorf("expected %v (%d), got %v (%d)", tc.want, tc.wantIn, got, in)
			}
		})
	}
}

func assertNoTokens(t *testing.T, h *harness) {
	t.Helper()
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no token files, got %d", len(entries))
	}
}
