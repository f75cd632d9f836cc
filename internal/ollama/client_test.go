package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"model":"llama3.1:8b","response":"{\"email\":[]}","done":true}`)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL + "/", Temperature: 0.1})
	reply, err := c.Generate(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != `{"email":[]}` {
		t.Errorf("unexpected reply %q", reply)
	}

	if got.Model != DefaultModel || got.Stream || got.System != "system prompt" || got.Prompt != "user prompt" {
		t.Errorf("unexpected request body %+v", got)
	}
	if got.Options.Temperature != 0.1 || got.Options.NumPredict != 2000 {
		t.Errorf("unexpected options %+v", got.Options)
	}
}

func TestGenerateErrors(t *testing.T) {
	t.Run("status error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"model 'x' not found"}`, http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := New(Options{BaseURL: srv.URL}).Generate(context.Background(), "", "p")
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
			t.Errorf("expected StatusError 404, got %v", err)
		}
	})

	t.Run("malformed envelope", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `not json`)
		}))
		defer srv.Close()

		_, err := New(Options{BaseURL: srv.URL}).Generate(context.Background(), "", "p")
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()

		c := New(Options{BaseURL: srv.URL, InferenceTimeout: 50 * time.Millisecond})
		if _, err := c.Generate(context.Background(), "", "p"); !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		if _, err := New(Options{BaseURL: url}).Generate(context.Background(), "", "p"); !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})
}

func TestModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"models":[{"name":"llama3.1:8b"},{"name":"mistral:latest"}]}`)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	models, err := c.Models(context.Background())
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if len(models) != 2 || models[0] != "llama3.1:8b" {
		t.Errorf("unexpected models %v", models)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestDefaults(t *testing.T) {
	c := New(Options{})
	if c.Model() != DefaultModel || c.BaseURL() != DefaultBaseURL {
		t.Errorf("unexpected defaults %s %s", c.Model(), c.BaseURL())
	}
	if c.probeTimeout != DefaultProbeTimeout || c.inferenceTimeout != DefaultInferenceTimeout {
		t.Error("unexpected timeouts")
	}
}
