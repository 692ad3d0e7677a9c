package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/tokenkeeper/browser"
	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/lifecycle"
	"github.com/kbukum/tokenkeeper/logger"
	"github.com/kbukum/tokenkeeper/provider"
	"github.com/kbukum/tokenkeeper/tokenstore"
	"github.com/kbukum/tokenkeeper/version"
)

const testProfileArn = "arn:aws:codewhisperer:us-east-1:123456789012:profile/TEST"

// stubBackend answers for both the SSO-OIDC and the social endpoints.
type stubBackend struct {
	mu    sync.Mutex
	calls map[string]int
}

func (b *stubBackend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

func (b *stubBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls[r.URL.Path]++
	b.mu.Unlock()

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	w.Header().Set("Content-Type", "application/json")
	var resp map[string]any
	switch r.URL.Path {
	case "/client/register":
		resp = map[string]any{
			"clientId":              "cid",
			"clientSecret":          "csecret",
			"clientIdIssuedAt":      time.Now().Unix(),
			"clientSecretExpiresAt": time.Now().Add(90 * 24 * time.Hour).Unix(),
		}
	case "/token":
		resp = map[string]any{
			"accessToken":  "idc-access",
			"refreshToken": "idc-refresh",
			"tokenType":    "Bearer",
			"expiresIn":    3600,
		}
	case "/refreshToken":
		resp = map[string]any{"accessToken": "social-access-2", "expiresIn": 7200}
	case "/logout":
		resp = map[string]any{}
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

type fixture struct {
	configPath string
	dir        string
	backend    *stubBackend
	options     []Option
	stdin       string
	interactive bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	b := &stubBackend{calls: map[string]int{}}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	dir := filepath.Join(home, "tokens")
	cfg := fmt.Sprintf(`
logging:
  level: error
store:
  dir: %s
sso:
  base_url: %s
  timeout: 2s
social:
  base_url: %s
  timeout: 2s
callback:
  host: 127.0.0.1
  timeout: 5s
lifecycle:
  refresh_retry:
    max_attempts: 1
`, dir, srv.URL, srv.URL)
	path := filepath.Join(home, "tokenkeeper.yml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &fixture{
		configPath: path,
		dir:        dir,
		backend:    b,
		options:    []Option{WithLogger(logger.NewNop())},
	}
}

func (f *fixture) runCtx(ctx context.Context, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	c := &CLI{
		Stdin:       strings.NewReader(f.stdin),
		Stdout:      &stdout,
		Stderr:      &stderr,
		Options:     f.options,
		Interactive: f.interactive,
	}
	code := c.Run(ctx, append([]string{"--config", f.configPath}, args...))
	return code, stdout.String(), stderr.String()
}

func (f *fixture) run(args ...string) (int, string, string) {
	return f.runCtx(context.Background(), args...)
}

// seed saves a social record expiring after ttl and returns its identifier.
func (f *fixture) seed(t *testing.T, ttl time.Duration) string {
	t.Helper()
	store, err := tokenstore.NewLocal(f.dir, tokenstore.WithLogger(logger.NewNop()))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	r := tokenstore.NewSocial(provider.Google, "social-access", time.Now().Add(ttl), testProfileArn)
	r.RefreshToken = "social-refresh"
	r.AccountName = "dev@example.com"
	res, err := store.Save(context.Background(), r)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	return res.ID
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	return v
}

func TestVersion(t *testing.T) {
	f := newFixture(t)

	code, out, _ := f.run("version")
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(out, "tokenkeeper "+version.Version) {
		t.Errorf("expected version line, got %q", out)
	}

	code, out, _ = f.run("--json", "version")
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if info := decode[version.Info](t, out); info.Version != version.Version {
		t.Errorf("expected version %q, got %q", version.Version, info.Version)
	}
}

func TestUsageErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "usage: tokenkeeper"},
		{"unknown command", []string{"frobnicate"}, `unknown command "frobnicate"`},
		{"show without id", []string{"show"}, "expected exactly one token ID"},
		{"login without provider", []string{"login"}, "--provider is required"},
		{"bad flag", []string{"list", "--nope"}, "flag provided but not defined"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, _, stderr := f.run(tc.args...)
			if code != ExitUsage {
				t.Errorf("expected exit %d, got %d", ExitUsage, code)
			}
			if !strings.Contains(stderr, tc.want) {
				t.Errorf("expected stderr to contain %q, got %q", tc.want, stderr)
			}
		})
	}
}

func TestLogin_BuilderIDThroughLoopbackServer(t *testing.T) {
	f := newFixture(t)

	var opened []string
	// The browser follows the authorization URL straight back to the redirect URI.
	opener := browser.OpenerFunc(func(ctx context.Context, raw string) error {
		opened = append(opened, raw)
		u, err := url.Parse(raw)
		if err != nil {
			return err
		}
		q := u.Query()
		cb := q.Get("redirect_uri") + "?" + url.Values{"code": {"auth-code"}, "state": {q.Get("state")}}.Encode()
		resp, err := http.Get(cb)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	})
	f.options = append(f.options, WithLifecycleOptions(lifecycle.WithOpener(opener)))

	code, out, stderr := f.run("--json", "login", "--provider", "builder-id", "--account", "me")
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, stderr)
	}

	v := decode[loginView](t, out)
	if v.Provider != provider.BuilderID || v.AuthMethod != provider.AuthMethodIdC {
		t.Errorf("expected BuilderId/IdC, got %s/%s", v.Provider, v.AuthMethod)
	}
	if v.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", v.Attempts)
	}
	if v.AccessToken == "idc-access" || !strings.HasSuffix(v.AccessToken, "***") {
		t.Errorf("expected a redacted access token, got %q", v.AccessToken)
	}
	if v.Status != tokenstore.StatusValid {
		t.Errorf("expected valid status, got %q", v.Status)
	}
	if _, err := os.Stat(filepath.Join(f.dir, v.ID)); err != nil {
		t.Errorf("expected token file %s: %v", v.ID, err)
	}
	if len(opened) != 1 || !strings.Contains(opened[0], "/authorize") {
		t.Errorf("expected one authorize URL, got %v", opened)
	}
	if f.backend.count("/client/register") != 1 || f.backend.count("/token") != 1 {
		t.Errorf("expected one registration and one exchange, got %d and %d",
			f.backend.count("/client/register"), f.backend.count("/token"))
	}
}

// denyingBrowser answers the first deny authorization requests with
// error=access_denied and approves the rest.
type denyingBrowser struct {
	deny   int
	opened int
}

func (b *denyingBrowser) Open(_ context.Context, raw string) error {
	b.opened++
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	q := u.Query()
	params := url.Values{"code": {"auth-code"}, "state": {q.Get("state")}}
	if b.opened <= b.deny {
		params = url.Values{"error": {"access_denied"}, "error_description": {"user denied consent"}}
	}
	resp, err := http.Get(q.Get("redirect_uri") + "?" + params.Encode())
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func TestLogin_DeniedCallback(t *testing.T) {
	tests := []struct {
		name        string
		json        bool
		interactive bool
		stdin       string
		wantCode    int
		wantOpened  int
	}{
		{"non-interactive does not retry", false, false, "y\n", ExitError, 1},
		{"json never prompts", true, true, "y\n", ExitError, 1},
		{"user declines", false, true, "n\n", ExitError, 1},
		{"empty answer declines", false, true, "", ExitError, 1},
		{"user retries", false, true, "y\n", ExitOK, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			b := &denyingBrowser{deny: 1}
			f.options = append(f.options, WithLifecycleOptions(lifecycle.WithOpener(b)))
			f.interactive = tc.interactive
			f.stdin = tc.stdin

			args := []string{"login", "--provider", "builder-id"}
			if tc.json {
				args = append([]string{"--json"}, args...)
			}
			code, out, stderr := f.run(args...)
			if code != tc.wantCode {
				t.Fatalf("expected exit %d, got %d (stderr %q)", tc.wantCode, code, stderr)
			}
			if b.opened != tc.wantOpened {
				t.Errorf("expected the browser opened %d time(s), got %d", tc.wantOpened, b.opened)
			}
			if !strings.Contains(stderr, "access_denied") {
				t.Errorf("expected the denial reported, got %q", stderr)
			}
			if tc.wantCode == ExitOK {
				if !strings.Contains(stderr, "try again? [y/N]") {
					t.Errorf("expected a retry prompt, got %q", stderr)
				}
				if !strings.Contains(out, "Logged in to BuilderId") {
					t.Errorf("expected login output, got %q", out)
				}
				return
			}
			if !strings.Contains(stderr, `Run "tokenkeeper login" again`) {
				t.Errorf("expected a re-run hint, got %q", stderr)
			}
			if tc.json {
				if resp := decode[errors.ErrorResponse](t, out); resp.Error.Code != errors.ErrCodeCallback {
					t.Errorf("expected CALLBACK error, got %+v", resp.Error)
				}
			}
			if entries, _ := os.ReadDir(f.dir); len(entries) != 0 {
				t.Errorf("expected no token saved, got %d files", len(entries))
			}
		})
	}
}

func TestLogin_UnknownProvider(t *testing.T) {
	f := newFixture(t)
	code, _, stderr := f.run("login", "--provider", "myspace")
	if code != ExitError {
		t.Errorf("expected exit %d, got %d", ExitError, code)
	}
	if !strings.Contains(stderr, "unknown provider") {
		t.Errorf("expected unknown provider error, got %q", stderr)
	}
}

func TestListAndShow(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, time.Hour)
	if err := os.WriteFile(filepath.Join(f.dir, "token-broken.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt record: %v", err)
	}

	code, out, _ := f.run("--json", "list")
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	views := decode[[]tokenView](t, out)
	if len(views) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(views))
	}
	var good, bad int
	for _, v := range views {
		if v.Error != "" {
			bad++
			continue
		}
		good++
		if v.ID != id || v.Provider != provider.Google || v.AccountName != "dev@example.com" {
			t.Errorf("unexpected entry %+v", v)
		}
	}
	if good != 1 || bad != 1 {
		t.Errorf("expected one readable and one unreadable entry, got %d and %d", good, bad)
	}

	code, out, _ = f.run("list")
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out, "PROVIDER") || !strings.Contains(out, "unreadable") || !strings.Contains(out, id) {
		t.Errorf("unexpected table:\n%s", out)
	}

	code, out, _ = f.run("show", id)
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out, testProfileArn) {
		t.Errorf("expected the profile ARN in:\n%s", out)
	}
	if strings.Contains(out, "social-refresh") || strings.Contains(out, "social-access") {
		t.Errorf("expected secrets to be redacted in:\n%s", out)
	}
}

func TestList_Empty(t *testing.T) {
	f := newFixture(t)
	code, out, _ := f.run("list")
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out, "No tokens stored.") {
		t.Errorf("expected empty notice, got %q", out)
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, time.Minute)

	code, out, stderr := f.run("refresh", id)
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, stderr)
	}
	if !strings.Contains(out, "Refreshed "+id) {
		t.Errorf("expected refresh notice, got %q", out)
	}
	if f.backend.count("/refreshToken") != 1 {
		t.Errorf("expected one refresh call, got %d", f.backend.count("/refreshToken"))
	}

	_, out, _ = f.run("--json", "show", id)
	v := decode[tokenView](t, out)
	if v.Status != tokenstore.StatusValid {
		t.Errorf("expected valid after refresh, got %q", v.Status)
	}
	if exp, err := time.Parse(time.RFC3339, v.ExpiresAt); err != nil || time.Until(exp) < time.Hour {
		t.Errorf("expected the two-hour lifetime of the new token, got %q (%v)", v.ExpiresAt, err)
	}
}

func TestEnsure(t *testing.T) {
	f := newFixture(t)

	fresh := f.seed(t, 2*time.Hour)
	code, out, _ := f.run("--json", "ensure", fresh)
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if v := decode[ensureView](t, out); v.Refreshed || v.Status != tokenstore.StatusValid {
		t.Errorf("expected a valid token left alone, got %+v", v)
	}
	if f.backend.count("/refreshToken") != 0 {
		t.Errorf("expected no refresh call, got %d", f.backend.count("/refreshToken"))
	}

	expiring := f.seed(t, time.Minute)
	code, out, _ = f.run("ensure", expiring, "--json")
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if v := decode[ensureView](t, out); !v.Refreshed {
		t.Errorf("expected the expiring token to be refreshed, got %+v", v)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, time.Hour)

	code, out, _ := f.run("delete", id, "--revoke")
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out, "Deleted "+id) {
		t.Errorf("expected delete notice, got %q", out)
	}
	if f.backend.count("/logout") != 1 {
		t.Errorf("expected one logout call, got %d", f.backend.count("/logout"))
	}
	if _, err := os.Stat(filepath.Join(f.dir, id)); !os.IsNotExist(err) {
		t.Errorf("expected the token file to be gone, got %v", err)
	}

	code, out, _ = f.run("--json", "delete", id)
	if code != ExitError {
		t.Fatalf("expected exit %d on second delete, got %d", ExitError, code)
	}
	resp := decode[errors.ErrorResponse](t, out)
	if resp.Error.Code != errors.ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %q", resp.Error.Code)
	}
}

func TestImport(t *testing.T) {
	f := newFixture(t)
	doc := fmt.Sprintf(`{
  "accessToken": "imported-access",
  "refreshToken": "imported-refresh",
  "expiresAt": %q,
  "provider": "Github",
  "authMethod": "social",
  "profileArn": %q
}`, tokenstore.FormatTime(time.Now().Add(time.Hour)), testProfileArn)

	path := filepath.Join(t.TempDir(), "kiro-auth-token.json")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write import file: %v", err)
	}

	code, out, stderr := f.run("import", path)
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, stderr)
	}
	if !strings.Contains(out, "Imported Github token as token-") {
		t.Errorf("unexpected output %q", out)
	}

	f.stdin = doc
	code, out, _ = f.run("--json", "import", "-")
	if code != ExitOK {
		t.Fatalf("expected exit 0 from stdin, got %d", code)
	}
	if v := decode[tokenView](t, out); v.Provider != provider.Github || v.ProfileArn != testProfileArn {
		t.Errorf("unexpected imported view %+v", v)
	}

	code, _, _ = f.run("import", filepath.Join(t.TempDir(), "missing.json"))
	if code != ExitError {
		t.Errorf("expected exit %d for a missing file, got %d", ExitError, code)
	}
}

func TestWatch_RefreshesUntilCanceled(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	code, out, stderr := f.runCtx(ctx, "--json", "watch", "--interval", "1h")
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, stderr)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one event, got %d: %q", len(lines), out)
	}
	ev := decode[eventView](t, lines[0])
	if ev.ID != id || !ev.Refreshed || ev.Error != "" {
		t.Errorf("expected a refreshed event for %s, got %+v", id, ev)
	}
}

func TestConfigErrors(t *testing.T) {
	f := newFixture(t)
	f.configPath = filepath.Join(t.TempDir(), "absent.yml")

	code, _, stderr := f.run("list")
	if code != ExitError {
		t.Errorf("expected exit %d, got %d", ExitError, code)
	}
	if !strings.Contains(stderr, "config file not found") {
		t.Errorf("expected a config error, got %q", stderr)
	}
}
