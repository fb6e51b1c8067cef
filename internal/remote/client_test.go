package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ferris/airbase/internal/models"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := New(server.URL+"/api/v1", "test-key")
	return client, server
}

func TestCreateSendsIdempotencyKey(t *testing.T) {
	var gotPath, gotKey, gotAPIKey string
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Idempotency-Key")
		gotAPIKey = r.Header.Get("X-API-Key")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"base-1","name":"crm","version":1,"updated_at":"2026-03-01T10:00:00Z"}}`))
	})
	defer server.Close()

	snap, err := client.Create(context.Background(), models.EntityBase, "", json.RawMessage(`{"name":"crm"}`), "idem-123")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if gotPath != "/api/v1/bases" {
		t.Errorf("path: got %s", gotPath)
	}
	if gotKey != "idem-123" {
		t.Errorf("idempotency key: got %q", gotKey)
	}
	if gotAPIKey != "test-key" {
		t.Errorf("api key header: got %q", gotAPIKey)
	}
	if snap.ID != "base-1" || snap.Version != 1 {
		t.Errorf("snapshot: %+v", snap)
	}
	if snap.UpdatedAt.IsZero() {
		t.Error("updated_at should be parsed")
	}
}

func TestRecordPathsNestUnderTable(t *testing.T) {
	var gotPath, gotMethod string
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.Write([]byte(`{"data":{"id":"rec-1","table_id":"tbl-1","version":2}}`))
	})
	defer server.Close()

	if _, err := client.Update(context.Background(), models.EntityRecord, "tbl-1", "rec-1", json.RawMessage(`{"fields":{"a":1}}`)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if gotPath != "/api/v1/tables/tbl-1/records/rec-1" {
		t.Errorf("path: got %s", gotPath)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method: got %s", gotMethod)
	}

	if _, err := client.Get(context.Background(), models.EntityRecord, "", "rec-1"); err == nil {
		t.Error("record path without table id should error")
	}
}

func TestListUnwrapsEnvelope(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/bases/base-1/tables" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"id":"tbl-1","version":1},{"id":"tbl-2","version":3}]}`))
	})
	defer server.Close()

	snaps, err := client.List(context.Background(), models.EntityTable, "base-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("snapshots: got %d, want 2", len(snaps))
	}
	if snaps[1].ID != "tbl-2" || snaps[1].Version != 3 {
		t.Errorf("snapshot[1]: %+v", snaps[1])
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"bad request", http.StatusBadRequest, `{"message":"name required"}`, ErrValidation},
		{"unprocessable", http.StatusUnprocessableEntity, `{"message":"bad field"}`, ErrValidation},
		{"unauthorized", http.StatusUnauthorized, `{"message":"bad key"}`, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, `{"message":"not yours"}`, ErrForbidden},
		{"not found", http.StatusNotFound, `{"message":"no such base"}`, ErrNotFound},
		{"server error", http.StatusInternalServerError, `{"message":"boom"}`, ErrUnreachable},
		{"bad gateway", http.StatusBadGateway, ``, ErrUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			defer server.Close()

			_, err := client.Get(context.Background(), models.EntityBase, "", "base-1")
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestConnectionFailureIsUnreachable(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {})
	server.Close() // connection refused from here on

	_, err := client.Get(context.Background(), models.EntityBase, "", "base-1")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("got %v, want unreachable", err)
	}
	if client.Healthy(context.Background()) {
		t.Error("healthy should be false against a closed server")
	}
}

func TestHealthyTreatsRejectionAsReachable(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"bad key"}`))
	})
	defer server.Close()

	// The server answered, so it is reachable even though it rejected us.
	if !client.Healthy(context.Background()) {
		t.Error("an answering server is reachable")
	}
}

func TestIsRejection(t *testing.T) {
	if !IsRejection(ErrValidation) || !IsRejection(ErrUnauthorized) || !IsRejection(ErrForbidden) {
		t.Error("validation/auth/forbidden are rejections")
	}
	if IsRejection(ErrUnreachable) || IsRejection(ErrNotFound) {
		t.Error("unreachable and not-found are not rejections")
	}
}

func TestLogin(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/login" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		var creds map[string]string
		json.NewDecoder(r.Body).Decode(&creds)
		if creds["email"] != "a@b.c" {
			t.Errorf("email: got %q", creds["email"])
		}
		w.Write([]byte(`{"data":{"token":"tok-1"}}`))
	})
	defer server.Close()

	resp, err := client.Login(context.Background(), "a@b.c", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Token != "tok-1" {
		t.Errorf("token: got %q", resp.Token)
	}
}
