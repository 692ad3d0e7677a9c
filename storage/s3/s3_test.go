package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/kbukum/tokenkeeper/storage"
)

// fakeS3 serves the subset of the path-style S3 REST API the backend uses.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != f.bucket {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case key == "" && r.Method == http.MethodGet:
		f.list(w, r.URL.Query().Get("prefix"))
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>%s</Key></Error>`, key)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.Write(data)
	case r.Method == http.MethodHead:
		data, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) list(w http.ResponseWriter, prefix string) {
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	fmt.Fprintf(&b, "<Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>", f.bucket, prefix, len(keys))
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><LastModified>2026-01-01T00:00:00.000Z</LastModified><Size>%d</Size></Contents>", k, len(f.objects[k]))
	}
	b.WriteString("</ListBucketResult>")
	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(b.String()))
}

func newTestStorage(t *testing.T, prefix string) (*Storage, *fakeS3) {
	t.Helper()
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	fake := &fakeS3{bucket: "tokens", objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewStorage(context.Background(), storage.S3Config{
		Bucket:    "tokens",
		Prefix:    prefix,
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
	})
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	return s, fake
}

func TestPutGet_WithPrefix(t *testing.T) {
	s, fake := newTestStorage(t, "/team/")
	ctx := context.Background()

	if err := s.Put(ctx, "token-a.json", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := fake.objects["team/token-a.json"]; !ok {
		t.Errorf("expected object under prefix, got %v", fake.objects)
	}

	data, err := s.Get(ctx, "token-a.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("expected content, got %q", data)
	}
	if loc := s.Location("token-a.json"); loc != "s3://tokens/team/token-a.json" {
		t.Errorf("unexpected location %q", loc)
	}
}

func TestGet_NotFound(t *testing.T) {
	s, _ := newTestStorage(t, "")
	if _, err := s.Get(context.Background(), "missing.json"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s, _ := newTestStorage(t, "")
	ctx := context.Background()
	_ = s.Put(ctx, "a.json", []byte("x"))

	if err := s.Delete(ctx, "a.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "a.json"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestList(t *testing.T) {
	s, fake := newTestStorage(t, "p")
	ctx := context.Background()
	_ = s.Put(ctx, "token-b.json", []byte("b"))
	_ = s.Put(ctx, "token-a.json", []byte("aa"))
	_ = s.Put(ctx, "other.json", []byte("o"))
	fake.objects["p/token-nested/x.json"] = []byte("n")

	files, err := s.List(ctx, "token-")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d: %v", len(files), files)
	}
	if files[0].Key != "token-a.json" || files[0].Size != 2 {
		t.Errorf("unexpected first entry %+v", files[0])
	}
}
