package storage

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func newTestSupabase(url string) *SupabaseStore {
	s := NewSupabaseStore(url, "service-key", "ad-videos")
	s.backoff = func(int) time.Duration { return time.Millisecond }
	return s
}

func TestSupabaseUploadRetriesGatewayErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.Method != http.MethodPut || r.URL.Path != "/storage/v1/object/ad-videos/job/final_video.mp4" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer service-key" || r.Header.Get("x-upsert") != "true" {
			t.Errorf("headers = %v", r.Header)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "video" {
			t.Errorf("body = %q", body)
		}
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestSupabase(srv.URL)
	url, err := s.UploadFile(t.Context(), writeTemp(t, "final_video.mp4", "video"), "job/final_video.mp4", "video/mp4")
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if url != srv.URL+"/storage/v1/object/public/ad-videos/job/final_video.mp4" {
		t.Errorf("url = %s", url)
	}
}

func TestSupabaseUploadStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bucket not found", http.StatusNotFound)
	}))
	defer srv.Close()

	s := newTestSupabase(srv.URL)
	_, err := s.UploadFile(t.Context(), writeTemp(t, "a.mp4", "x"), "job/a.mp4", "video/mp4")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("err = %v, want 404", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestSupabaseUploadGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := newTestSupabase(srv.URL)
	_, err := s.UploadFile(t.Context(), writeTemp(t, "a.mp4", "x"), "job/a.mp4", "video/mp4")
	if err == nil || !strings.Contains(err.Error(), "after 5 attempts") {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != maxRetries+1 {
		t.Errorf("calls = %d", calls.Load())
	}
}

func TestObjectKeyAndContentType(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	if got := ObjectKey(id, "/tmp/work/x/broll/broll_001.mp4"); got != id.String()+"/broll_001.mp4" {
		t.Errorf("ObjectKey = %s", got)
	}

	tests := map[string]string{
		"a.mp4":  "video/mp4",
		"b.PNG":  "image/png",
		"c.jpeg": "image/jpeg",
		"d.mp3":  "audio/mpeg",
		"e.bin":  "application/octet-stream",
	}
	for in, want := range tests {
		if got := ContentTypeFor(in); got != want {
			t.Errorf("ContentTypeFor(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestRetryDelayCapped(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := retryDelay(attempt)
		if d < baseRetryDelay || d > maxRetryDelay+maxRetryDelay/4 {
			t.Errorf("retryDelay(%d) = %v out of range", attempt, d)
		}
	}
}
