package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-engine/pkg/util/errorutil"
)

func completionServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body["model"] != "test-model" {
			t.Errorf("unexpected model %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
}

func TestOpenAIAnalyzerParsesLabel(t *testing.T) {
	srv := completionServer(t, http.StatusOK, " Negative.\n")
	defer srv.Close()

	a := NewOpenAIAnalyzer(config.OpenAIConfig{APIKey: "test-key", Model: "test-model", BaseURL: srv.URL + "/v1"})
	got, err := a.Analyze(context.Background(), "the agent never answered")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got != domain.SentimentNegative {
		t.Fatalf("got %q", got)
	}
}

func TestOpenAIAnalyzerReportsUpstreamFailure(t *testing.T) {
	srv := completionServer(t, http.StatusServiceUnavailable, "")
	defer srv.Close()

	a := NewOpenAIAnalyzer(config.OpenAIConfig{APIKey: "test-key", Model: "test-model", BaseURL: srv.URL + "/v1"})
	_, err := a.Analyze(context.Background(), "fine")
	if !apperrors.IsCode(err, "EXTERNAL_SERVICE_ERROR") {
		t.Fatalf("expected external service error, got %v", err)
	}
}

func TestParseLabelRejectsUnknown(t *testing.T) {
	if _, err := parseLabel("mixed feelings"); err == nil {
		t.Fatalf("expected error")
	}
	if s, err := parseLabel("POSITIVE"); err != nil || s != domain.SentimentPositive {
		t.Fatalf("got %q %v", s, err)
	}
}
