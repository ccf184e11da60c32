package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestGenerate(t *testing.T) {
	var gotReq GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "The answer is 42."})
	}))
	defer srv.Close()

	c := NewClient(ClientOpts{BaseURL: srv.URL})
	got, err := c.Generate(context.Background(), GenerateRequest{
		Model:  "llama3",
		Prompt: "What is the answer?",
		System: "Be brief.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "The answer is 42." {
		t.Errorf("Generate() = %q, want %q", got, "The answer is 42.")
	}
	if gotReq.Model != "llama3" || gotReq.Prompt != "What is the answer?" || gotReq.System != "Be brief." {
		t.Errorf("request = %+v", gotReq)
	}
	if gotReq.Stream {
		t.Error("Stream = true, want false")
	}
}

func TestGenerate_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": ""})
	}))
	defer srv.Close()

	c := NewClient(ClientOpts{BaseURL: srv.URL})
	got, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3", Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != NoResponse {
		t.Errorf("Generate() = %q, want %q", got, NoResponse)
	}
}

func TestGenerate_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(ClientOpts{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3", Prompt: "hi"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.Code != http.StatusInternalServerError {
		t.Errorf("Code = %d, want 500", se.Code)
	}
}

func TestGenerate_ConnectionRefused(t *testing.T) {
	c := NewClient(ClientOpts{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3", Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var se *StatusError
	if errors.As(err, &se) {
		t.Errorf("transport failure should not be a StatusError, got %v", err)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q, want /api/tags", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{
				{"name": "llama3", "size": 4661224676},
				{"name": "mistral", "size": 4113301824},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(ClientOpts{BaseURL: srv.URL})
	got, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"llama3", "mistral"}) {
		t.Errorf("ListModels() = %v, want [llama3 mistral]", got)
	}
}

func TestListModels_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"models": []any{}})
	}))
	defer srv.Close()

	c := NewClient(ClientOpts{BaseURL: srv.URL})
	got, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListModels() = %v, want empty", got)
	}
}

func TestReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"models": []any{}})
	}))

	c := NewClient(ClientOpts{BaseURL: srv.URL})
	if !c.Reachable(context.Background()) {
		t.Error("Reachable() = false, want true")
	}

	srv.Close()
	if c.Reachable(context.Background()) {
		t.Error("Reachable() = true after server shutdown, want false")
	}
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{Code: 404}
	if got := err.Error(); got != "ollama: status code 404" {
		t.Errorf("Error() = %q", got)
	}
}
