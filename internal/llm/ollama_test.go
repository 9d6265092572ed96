package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req OllamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad body: %v", err)
		}
		if req.Stream || req.Model != "qwen:1.8b" || req.Prompt != "Q?" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(OllamaResponse{Response: "  the answer \n", Done: true})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "qwen:1.8b")
	got, err := c.Generate(context.Background(), "Q?")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "the answer" {
		t.Fatalf("Generate = %q", got)
	}
}

func TestGenerate_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOllamaClient(srv.URL, "m").Generate(context.Background(), "p")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	if err := NewOllamaClient(srv.URL, "m").Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	srv.Close()
	if err := NewOllamaClient(srv.URL, "m").Ping(context.Background()); err == nil {
		t.Fatal("Ping against a closed server succeeded")
	}
}
