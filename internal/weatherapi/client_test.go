package weatherapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gometeo/weathermail/internal/model"
)

func newTestClient(baseURL string) *Client {
	return NewClient(baseURL, 5*time.Second)
}

func TestSendSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/weather" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body model.SendRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.City != "Paris" || body.Email != "a@example.com" {
			t.Errorf("unexpected body %+v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.SendResponse{Message: "Weather sent!"})
	}))
	defer srv.Close()

	msg, err := newTestClient(srv.URL).Send(context.Background(), "Paris", "a@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "Weather sent!" {
		t.Errorf("expected message, got %q", msg)
	}
}

func TestSendWithoutMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	msg, err := newTestClient(srv.URL).Send(context.Background(), "Paris", "a@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "" {
		t.Errorf("expected empty message, got %q", msg)
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "city not found"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Send(context.Background(), "Nowhere", "a@example.com")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", apiErr.Status)
	}
	if err.Error() != "API error (HTTP 404): city not found" {
		t.Errorf("unexpected error text %q", err.Error())
	}
}

func TestListLogs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/weather/logs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`[
			{"_id":"b","city":"Oslo","email":"x@example.com","dateSent":"2025-06-01T10:00:00Z","weather":"rain"},
			{"_id":"a","city":"Rome","email":"y@example.com","dateSent":"2025-05-01T10:00:00Z","weather":"sun"}
		]`))
	}))
	defer srv.Close()

	logs, err := newTestClient(srv.URL).ListLogs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].ID != "b" || logs[1].ID != "a" {
		t.Errorf("order not preserved: %+v", logs)
	}
	if logs[0].Weather != "rain" || logs[0].DateSent != "2025-06-01T10:00:00Z" {
		t.Errorf("fields not decoded: %+v", logs[0])
	}
}

func TestListLogsEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	}))
	defer srv.Close()

	logs, err := newTestClient(srv.URL).ListLogs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logs == nil || len(logs) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", logs)
	}
}

func TestDeleteLogEscapesID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`{"message":"deleted"}`))
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).DeleteLog(context.Background(), "a/b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/api/weather/delete/a%2Fb" {
		t.Errorf("unexpected path %q", gotPath)
	}
}

func TestDeleteLogServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal server error"))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).DeleteLog(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
	if err.Error() != "API error (HTTP 500): internal server error" {
		t.Errorf("unexpected error text %q", err.Error())
	}
}

func TestContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestClient(srv.URL).ListLogs(ctx); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}
