package deck

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(Health{Status: "healthy"})
	}))
	defer srv.Close()

	c := New(srv.URL, WithAPIKey("sekrit"))
	if _, err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if gotAuth != "Bearer sekrit" {
		t.Errorf("authorization header = %q", gotAuth)
	}
}

func TestClientDecodesProblemDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"type":   "https://contextdeck.dev/errors/conflict",
			"title":  "Conflict",
			"status": 409,
			"detail": "a context with this title already exists",
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL).CreateContext(context.Background(), "Dupe", "x")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T", err)
	}
	if apiErr.Status != http.StatusConflict {
		t.Errorf("status = %d", apiErr.Status)
	}
	if apiErr.Detail != "a context with this title already exists" {
		t.Errorf("detail = %q", apiErr.Detail)
	}
}

func TestClientFallsBackToStatusText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Contexts(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v", err)
	}
	if apiErr.Detail != http.StatusText(http.StatusBadGateway) {
		t.Errorf("detail = %q", apiErr.Detail)
	}
}

func TestClientContextRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/contexts", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Context{
			ID:         "c1",
			Title:      in["title"],
			Content:    in["content"],
			TokenCount: 2,
			Version:    "v1",
		})
	})
	mux.HandleFunc("POST /api/v1/contexts/delete", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	created, err := c.CreateContext(context.Background(), "Notes", "hi there")
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	if created.ID != "c1" || created.Title != "Notes" {
		t.Errorf("created = %+v", created)
	}

	if err := c.DeleteContexts(context.Background(), []string{"c1"}); err != nil {
		t.Errorf("DeleteContexts: %v", err)
	}
}
