package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/GetStream/nebula-chat/chat"
)

var history = []chat.Turn{
	{Role: chat.TurnAssistant, Content: chat.DefaultBotWelcome},
	{Role: chat.TurnUser, Content: "What is a nebula?"},
	{Role: chat.TurnAssistant, Content: "A cloud of gas and dust."},
}

type sentMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

func roles(msgs []sentMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestOpenAI_Generate(t *testing.T) {
	var got struct {
		Model    string        `json:"model"`
		Messages []sentMessage `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Could not decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1704067200,
			"model":   got.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "Stars are born there."},
			}},
		})
	}))
	defer srv.Close()

	gen := NewOpenAI(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-test"})
	text, err := gen.Generate(context.Background(), "Tell me more", history)
	if err != nil {
		t.Fatal(err)
	}
	if text != "Stars are born there." {
		t.Errorf("Got %q", text)
	}
	if got.Model != "gpt-test" {
		t.Errorf("Got model %q, want gpt-test", got.Model)
	}
	want := []string{"system", "assistant", "user", "assistant", "user"}
	if diff := cmp.Diff(want, roles(got.Messages)); diff != "" {
		t.Errorf("Roles mismatch (-want +got):\n%s", diff)
	}
	if last := string(got.Messages[len(got.Messages)-1].Content); !strings.Contains(last, "Tell me more") {
		t.Errorf("Got last message %s, want the prompt", last)
	}
}

func TestOpenAI_GenerateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	gen := NewOpenAI(Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := gen.Generate(context.Background(), "hi", nil)
	if !errors.Is(err, chat.ErrGeneration) {
		t.Errorf("Got error %v, want generation failure", err)
	}
}

func TestAnthropic_Generate(t *testing.T) {
	var got struct {
		Model     string        `json:"model"`
		MaxTokens int64         `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []sentMessage `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Could not decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"role":        "assistant",
			"model":       got.Model,
			"stop_reason": "end_turn",
			"content": []map[string]any{
				{"type": "text", "text": "Stars "},
				{"type": "text", "text": "are born there."},
			},
			"usage": map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	defer srv.Close()

	gen := NewAnthropic(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1", MaxTokens: 256, SystemPrompt: "Be brief."})
	text, err := gen.Generate(context.Background(), "Tell me more", history)
	if err != nil {
		t.Fatal(err)
	}
	if text != "Stars are born there." {
		t.Errorf("Got %q", text)
	}
	if got.MaxTokens != 256 {
		t.Errorf("Got max_tokens %d, want 256", got.MaxTokens)
	}
	if len(got.System) != 1 || got.System[0].Text != "Be brief." {
		t.Errorf("Got system %+v", got.System)
	}
	want := []string{"assistant", "user", "assistant", "user"}
	if diff := cmp.Diff(want, roles(got.Messages)); diff != "" {
		t.Errorf("Roles mismatch (-want +got):\n%s", diff)
	}
}

func TestAnthropic_GenerateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	gen := NewAnthropic(Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := gen.Generate(context.Background(), "hi", nil)
	if !errors.Is(err, chat.ErrGeneration) {
		t.Errorf("Got error %v, want generation failure", err)
	}
}

func TestStatic_Generate(t *testing.T) {
	text, err := Static{}.Generate(context.Background(), " hi ", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, `"hi"`) {
		t.Errorf("Got %q, want the prompt echoed", text)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Static{}).Generate(ctx, "hi", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Got error %v, want context canceled", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		provider string
		want     string
		wantErr  bool
	}{
		{provider: "", want: "llm.Static"},
		{provider: "static", want: "llm.Static"},
		{provider: "OpenAI", want: "*llm.OpenAI"},
		{provider: "anthropic", want: "*llm.Anthropic"},
		{provider: "cohere", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			gen, err := New(Config{Provider: tt.provider, APIKey: "k"})
			if tt.wantErr {
				if err == nil {
					t.Error("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := typeName(gen); got != tt.want {
				t.Errorf("Got %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(g chat.Generator) string {
	switch g.(type) {
	case Static:
		return "llm.Static"
	case *OpenAI:
		return "*llm.OpenAI"
	case *Anthropic:
		return "*llm.Anthropic"
	}
	return "unknown"
}
