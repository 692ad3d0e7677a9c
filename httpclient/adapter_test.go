package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/tokenkeeper/errors"
)

type testItem struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestAdapter_Do_GET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/items/1" {
			t.Errorf("expected /items/1, got %s", r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); ua != "tokenkeeper/test" {
			t.Errorf("expected user agent, got %q", ua)
		}
		json.NewEncoder(w).Encode(testItem{ID: 1, Name: "Widget"})
	}))
	defer srv.Close()

	a, err := New(Config{BaseURL: srv.URL, UserAgent: "tokenkeeper/test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := a.Do(context.Background(), Request{Method: http.MethodGet, Path: "/items/1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.IsSuccess() {
		t.Errorf("expected success, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(resp.Body), "Widget") {
		t.Errorf("expected body to contain Widget, got %s", resp.Body)
	}
}

func TestPost_JSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %q", ct)
		}
		var in testItem
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
		}
		in.ID = 42
		json.NewEncoder(w).Encode(in)
	}))
	defer srv.Close()

	a, _ := New(Config{BaseURL: srv.URL})
	resp, err := Post[testItem](a, context.Background(), "/items", testItem{Name: "Gadget"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Data.ID != 42 || resp.Data.Name != "Gadget" {
		t.Errorf("unexpected data: %+v", resp.Data)
	}
}

func TestDelete_BearerAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer header, got %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a, _ := New(Config{BaseURL: srv.URL})
	if _, err := Delete[Empty](a, context.Background(), "/account", WithBearer("tok")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAdapter_ProviderError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
			}))
			defer srv.Close()

			a, _ := New(Config{BaseURL: srv.URL, Name: "sso"})
			_, err := Post[testItem](a, context.Background(), "/token", map[string]string{}, WithOperation("token exchange"))
			appErr, ok := errors.AsAppError(err)
			if !ok {
				t.Fatalf("expected AppError, got %T %v", err, err)
			}
			if appErr.Code != errors.ErrCodeProvider {
				t.Errorf("expected PROVIDER, got %s", appErr.Code)
			}
			if appErr.HTTPStatus != tt.status || StatusCode(err) != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, appErr.HTTPStatus)
			}
			if appErr.Retryable != tt.retryable {
				t.Errorf("expected retryable=%v, got %v", tt.retryable, appErr.Retryable)
			}
			if !strings.Contains(appErr.Error(), "code expired") {
				t.Errorf("expected provider body in error, got %q", appErr.Error())
			}
			if appErr.Details["operation"] != "token exchange" {
				t.Errorf("expected operation detail, got %v", appErr.Details["operation"])
			}
		})
	}
}

func TestAdapter_ErrorBodyTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	a, _ := New(Config{BaseURL: srv.URL, MaxErrorBody: 10})
	_, err := a.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	appErr, _ := errors.AsAppError(err)
	if appErr == nil {
		t.Fatal("expected error")
	}
	if body := appErr.Details["body"].(string); len(body) != 10 {
		t.Errorf("expected 10 byte body, got %d", len(body))
	}
}

func TestAdapter_ResponseBodyCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"` + strings.Repeat("a", 200) + `"}`))
	}))
	defer srv.Close()

	a, _ := New(Config{BaseURL: srv.URL, MaxResponseBody: 64, MaxErrorBody: 16})
	resp, err := a.Do(context.Background(), Request{Method: http.MethodPost, Path: "/token", Operation: "token exchange"})
	if resp != nil {
		t.Errorf("expected no response, got %+v", resp)
	}
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeProvider {
		t.Fatalf("expected PROVIDER error, got %v", err)
	}
	if appErr.Retryable {
		t.Error("oversized response must not be retryable")
	}
	if appErr.Details["limit"] != int64(64) {
		t.Errorf("expected limit detail 64, got %v", appErr.Details["limit"])
	}
	if body := appErr.Details["body"].(string); len(body) != 16 {
		t.Errorf("expected 16 byte body excerpt, got %d", len(body))
	}

	ok200, _ := New(Config{BaseURL: srv.URL, MaxResponseBody: 1024})
	if _, err := ok200.Do(context.Background(), Request{Method: http.MethodPost, Path: "/token"}); err != nil {
		t.Errorf("expected body under the cap to pass, got %v", err)
	}
}

func TestAdapter_Timeout(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	defer close(done)

	a, _ := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := a.Do(context.Background(), Request{Method: http.MethodGet, Path: "/slow"})
	if !errors.IsKind(err, errors.ErrCodeTransport) {
		t.Fatalf("expected TRANSPORT, got %v", err)
	}
	if !IsTimeout(err) {
		t.Errorf("expected timeout flag, got %v", err)
	}
	if !errors.IsRetryable(err) {
		t.Error("expected timeout to be retryable")
	}
}

func TestAdapter_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	a, _ := New(Config{BaseURL: url, Timeout: time.Second})
	_, err := a.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	if !errors.IsKind(err, errors.ErrCodeTransport) {
		t.Fatalf("expected TRANSPORT, got %v", err)
	}
}

func TestAdapter_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a, _ := New(Config{BaseURL: srv.URL})
	_, err := a.Do(ctx, Request{Method: http.MethodGet, Path: "/"})
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeTransport {
		t.Fatalf("expected TRANSPORT, got %v", err)
	}
	if appErr.Details["canceled"] != true {
		t.Errorf("expected canceled detail, got %v", appErr.Details)
	}
}

func TestPost_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	a, _ := New(Config{BaseURL: srv.URL})
	_, err := Post[testItem](a, context.Background(), "/x", nil)
	if !errors.IsKind(err, errors.ErrCodeProvider) {
		t.Fatalf("expected PROVIDER for malformed body, got %v", err)
	}
	if errors.IsRetryable(err) {
		t.Error("malformed 200 body should not be retryable")
	}
}

func TestAdapter_URL(t *testing.T) {
	a, _ := New(Config{BaseURL: "https://example.com/"})
	got := a.URL("/login", map[string]string{"state": "s", "idp": "Google", "redirect_uri": "http://localhost:1/cb"})
	want := "https://example.com/login?idp=Google&redirect_uri=http%3A%2F%2Flocalhost%3A1%2Fcb&state=s"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if got := a.URL("https://other/x", nil); got != "https://other/x" {
		t.Errorf("expected absolute path to win, got %q", got)
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected 30s default, got %v", cfg.Timeout)
	}
	if cfg.MaxErrorBody != 4096 {
		t.Errorf("expected 4096, got %d", cfg.MaxErrorBody)
	}
	if cfg.MaxResponseBody != 1<<20 {
		t.Errorf("expected 1 MiB, got %d", cfg.MaxResponseBody)
	}
	bad := Config{TLS: &TLSConfig{CertFile: "a.pem"}}
	if _, err := New(bad); !errors.IsKind(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION for half-set TLS, got %v", err)
	}
}
