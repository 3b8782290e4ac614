package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSONQuery(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"orientation\":180}"}}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL + "/")
	reply, err := c.JSONQuery(context.Background(), "qwen2-vl", "orientation?", "aGVsbG8=")
	if err != nil {
		t.Fatalf("JSONQuery: %v", err)
	}
	if reply != `{"orientation":180}` {
		t.Errorf("reply = %q", reply)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v", got.ResponseFormat)
	}
	if got.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", got.Temperature)
	}
	parts, _ := got.Messages[0].Content.([]any)
	if len(parts) != 2 {
		t.Fatalf("content parts = %v", got.Messages[0].Content)
	}
	img, _ := parts[1].(map[string]any)["image_url"].(map[string]any)
	if url, _ := img["url"].(string); !strings.HasPrefix(url, "data:image/jpeg;base64,aGVsbG8=") {
		t.Errorf("image url = %v", img["url"])
	}
}

func TestSimpleQueryContentParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"a receipt"}]}}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	reply, err := c.SimpleQuery(context.Background(), "m", "what is this?", "")
	if err != nil {
		t.Fatalf("SimpleQuery: %v", err)
	}
	if reply != "a receipt" {
		t.Errorf("reply = %q", reply)
	}
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":""}}]}`},
		{"not json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := NewClient(srv.URL)
			if _, err := c.JSONQuery(context.Background(), "m", "p", ""); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewClientDefaultURL(t *testing.T) {
	c, err := NewClient("")
	if err != nil {
		t.Fatal(err)
	}
	if c.baseURL != DefaultURL {
		t.Errorf("baseURL = %s", c.baseURL)
	}
}
