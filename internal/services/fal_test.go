package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type stubImages struct {
	img     []byte
	err     error
	prompts []string
}

func (s *stubImages) GenerateImage(ctx context.Context, prompt string, hints ImageHints) ([]byte, error) {
	s.prompts = append(s.prompts, prompt)
	return s.img, s.err
}

func TestFalCompositeProduct(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /fal-ai/fashn/tryon/v1.5", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Key fal-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var in falTryOnInput
		json.NewDecoder(r.Body).Decode(&in)
		if !strings.HasPrefix(in.ModelImage, "data:image/png;base64,") || !strings.HasPrefix(in.GarmentImage, "data:image/png;base64,") {
			t.Errorf("inputs are not data URIs")
		}
		fmt.Fprintf(w, `{"request_id":"req-1","status_url":"%s/status/req-1","response_url":"%s/result/req-1"}`, srvURL, srvURL)
	})
	mux.HandleFunc("GET /status/req-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"COMPLETED"}`))
	})
	mux.HandleFunc("GET /result/req-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"images":[{"url":"%s/tryon.png"}]}`, srvURL)
	})
	mux.HandleFunc("GET /tryon.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tryon-image"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	scenes := &stubImages{img: pngHeader}
	s := NewFalTryOnService("fal-key", scenes)
	s.baseURL = srv.URL
	s.poll.Clock = newFakeClock()

	img, err := s.CompositeProduct(t.Context(), pngHeader, "woman holding serum by a window")
	if err != nil {
		t.Fatalf("CompositeProduct: %v", err)
	}
	if string(img) != "tryon-image" {
		t.Errorf("image = %q", img)
	}
	if len(scenes.prompts) != 1 || scenes.prompts[0] != "woman holding serum by a window" {
		t.Errorf("scene prompts = %v", scenes.prompts)
	}
}

func TestFalCompositeProductRequiresImage(t *testing.T) {
	s := NewFalTryOnService("fal-key", &stubImages{img: pngHeader})
	if _, err := s.CompositeProduct(t.Context(), nil, "prompt"); err == nil {
		t.Fatal("expected error for empty product image")
	}
}

func TestFalStatusError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"IN_PROGRESS","error":"person not detected"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewFalTryOnService("fal-key", nil)
	task, err := s.status(t.Context(), "req-2", falQueueResponse{StatusURL: srv.URL + "/status"})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if task.Status != TaskFailed || task.Error != "person not detected" {
		t.Errorf("task = %+v", task)
	}
}

func TestImageExtension(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", pngHeader, ".png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F'}, ".jpg"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), ".webp"},
		{"unknown falls back to png", []byte("not an image"), ".png"},
	}
	for _, tt := range tests {
		if got := ImageExtension(tt.data); got != tt.want {
			t.Errorf("%s: ImageExtension = %s, want %s", tt.name, got, tt.want)
		}
	}
}
