package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bobarin/adreel/internal/models"
)

// chatServer answers /v1/chat/completions with canned contents, in order.
type chatServer struct {
	mu       sync.Mutex
	replies  []string
	requests []map[string]interface{}
}

func (c *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var body map[string]interface{}
	json.NewDecoder(r.Body).Decode(&body)
	c.requests = append(c.requests, body)

	reply := c.replies[0]
	if len(c.replies) > 1 {
		c.replies = c.replies[1:]
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"choices": []interface{}{map[string]interface{}{"index": 0, "message": map[string]string{"role": "assistant", "content": reply}}},
	})
}

func newTestOpenAI(t *testing.T, replies ...string) (*OpenAIService, *chatServer) {
	t.Helper()
	cs := &chatServer{replies: replies}
	srv := httptest.NewServer(cs)
	t.Cleanup(srv.Close)
	return NewOpenAIService(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Styles: DefaultPromptStyles()}), cs
}

func TestGenerateScriptChainsFourCalls(t *testing.T) {
	s, cs := newTestOpenAI(t,
		"research notes",
		"outline notes",
		`{"good_quality": false, "feedback": "lead with the price"}`,
		"  Meet Glow Serum. Only $29 this week.  ",
	)

	script, err := s.GenerateScript(t.Context(), models.ProductInfo{
		ProductName: "Glow Serum",
		Description: "Vitamin C serum",
		Language:    "English",
		Price:       "$29",
	})
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if script != "Meet Glow Serum. Only $29 this week." {
		t.Errorf("script = %q", script)
	}
	if len(cs.requests) != 4 {
		t.Fatalf("requests = %d, want 4", len(cs.requests))
	}
	if _, ok := cs.requests[2]["response_format"]; !ok {
		t.Errorf("critique request should use JSON mode")
	}
	final, _ := json.Marshal(cs.requests[3]["messages"])
	if !strings.Contains(string(final), "lead with the price") {
		t.Errorf("final prompt missing critique feedback: %s", final)
	}
}

func TestGenerateScriptSurvivesBadCritique(t *testing.T) {
	s, _ := newTestOpenAI(t, "research", "outline", "not json", "final script")

	script, err := s.GenerateScript(t.Context(), models.ProductInfo{ProductName: "P", Description: "D", Language: "en"})
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if script != "final script" {
		t.Errorf("script = %q", script)
	}
}

func TestDescribeNextScene(t *testing.T) {
	s, cs := newTestOpenAI(t, `{"start": 10.5, "end": 18, "description": "  hands applying serum  "}`)

	accepted := []models.SceneDescription{{Start: 0, End: 5, Description: "product hero shot"}}
	scene, err := s.DescribeNextScene(t.Context(), []models.TranscriptSegment{{Start: 0, End: 20, Text: "hello"}}, accepted)
	if err != nil {
		t.Fatalf("DescribeNextScene: %v", err)
	}
	if scene.Start != 10.5 || scene.End != 18 || scene.Description != "hands applying serum" {
		t.Errorf("scene = %+v", scene)
	}
	msgs, _ := json.Marshal(cs.requests[0]["messages"])
	if !strings.Contains(string(msgs), "0.00s to 5.00s: product hero shot") {
		t.Errorf("prompt missing accepted scenes: %s", msgs)
	}
}

func TestEstimateSceneCountRejectsNegative(t *testing.T) {
	s, _ := newTestOpenAI(t, `{"count": -2}`)
	if _, err := s.EstimateSceneCount(t.Context(), nil); err == nil {
		t.Fatal("expected error for negative count")
	}
}

func TestFormatTranscript(t *testing.T) {
	got := FormatTranscript([]models.TranscriptSegment{
		{Start: 0, End: 2.5, Text: "Meet Glow."},
		{Start: 2.5, End: 6, Text: "It works."},
	})
	want := "[0.00-2.50] Meet Glow.\n[2.50-6.00] It works.\n"
	if got != want {
		t.Errorf("FormatTranscript = %q, want %q", got, want)
	}
}

func TestWhisperLanguage(t *testing.T) {
	tests := map[string]string{
		"English": "en",
		"th":      "th",
		" Thai ":  "th",
		"Klingon": "",
		"":        "",
	}
	for in, want := range tests {
		if got := whisperLanguage(in); got != want {
			t.Errorf("whisperLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}
