package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newZapCapServer(t *testing.T, finalStatus string) (*httptest.Server, *int) {
	t.Helper()
	var srvURL string
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /videos", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "zc-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		file.Close()
		w.Write([]byte(`{"id":"video-1"}`))
	})
	mux.HandleFunc("POST /videos/video-1/task", func(w http.ResponseWriter, r *http.Request) {
		var req zapcapTaskRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.AutoApprove || req.TemplateID != zapcapDefaultTemplateID || req.Language != "en" {
			t.Errorf("task request = %+v", req)
		}
		w.Write([]byte(`{"taskId":"task-7"}`))
	})
	mux.HandleFunc("GET /videos/video-1/task/task-7", func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls < 2 {
			w.Write([]byte(`{"status":"transcribing"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"status":      finalStatus,
			"downloadUrl": srvURL + "/captioned.mp4",
			"error":       "render crashed",
		})
	})
	mux.HandleFunc("GET /captioned.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("captioned"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL
	return srv, &polls
}

func writeTempVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "final_video.mp4")
	if err := os.WriteFile(path, []byte("composite"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestZapCapBurnIn(t *testing.T) {
	srv, polls := newZapCapServer(t, "completed")

	s := NewZapCapService("zc-key", "")
	s.baseURL = srv.URL
	s.poll.Clock = newFakeClock()

	video := writeTempVideo(t)
	out := filepath.Join(filepath.Dir(video), "captioned_video.mp4")
	if _, err := s.BurnIn(t.Context(), video, "", out); err != nil {
		t.Fatalf("BurnIn: %v", err)
	}
	if data, _ := os.ReadFile(out); string(data) != "captioned" {
		t.Errorf("output = %q", data)
	}
	if *polls != 2 {
		t.Errorf("polls = %d, want 2", *polls)
	}
}

func TestZapCapFailedTask(t *testing.T) {
	srv, _ := newZapCapServer(t, "failed")

	s := NewZapCapService("zc-key", "en")
	s.baseURL = srv.URL
	s.poll.Clock = newFakeClock()

	_, err := s.BurnIn(t.Context(), writeTempVideo(t), "", filepath.Join(t.TempDir(), "c.mp4"))
	if !errors.Is(err, ErrRemoteTaskFailed) {
		t.Fatalf("err = %v, want ErrRemoteTaskFailed", err)
	}
}

func TestZapCapTimeout(t *testing.T) {
	srv, _ := newZapCapServer(t, "rendering")

	s := NewZapCapService("zc-key", "en")
	s.baseURL = srv.URL
	s.poll.Clock = newFakeClock()
	s.poll.Timeout = 10 * time.Second

	_, err := s.BurnIn(t.Context(), writeTempVideo(t), "", filepath.Join(t.TempDir(), "c.mp4"))
	if !errors.Is(err, ErrRemoteTaskTimedOut) {
		t.Fatalf("err = %v, want ErrRemoteTaskTimedOut", err)
	}
}
