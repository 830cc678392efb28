package httpadapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caasmo/hookrelay/db"
)

func TestDispatch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected content-type to default to payloadContentType, got %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	a := New()
	target := db.HTTPTarget{Method: http.MethodPost, URL: server.URL}
	resp := a.Dispatch(context.Background(), target, []byte(`{}`), "application/json")

	if !resp.IsSuccess() {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.HTTPCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.HTTPCode)
	}
}

func TestDispatch_CustomHeadersOverrideDefault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "text/plain" {
			t.Errorf("expected custom content-type to win, got %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Custom") != "value" {
			t.Errorf("expected custom header to be set")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a := New()
	target := db.HTTPTarget{
		Method:  http.MethodPost,
		URL:     server.URL,
		Headers: `{"Content-Type":"text/plain","X-Custom":"value"}`,
	}
	resp := a.Dispatch(context.Background(), target, []byte(`{}`), "application/json")
	if !resp.IsSuccess() {
		t.Fatalf("expected success, got %+v", resp)
	}
}

func TestDispatch_NonSuccessStatusIsNotSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	a := New()
	target := db.HTTPTarget{Method: http.MethodPost, URL: server.URL}
	resp := a.Dispatch(context.Background(), target, []byte(`{}`), "application/json")

	if resp.IsSuccess() {
		t.Fatalf("expected non-2xx to not be a success")
	}
	if resp.HTTPCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.HTTPCode)
	}
}

func TestDispatch_InvalidURL(t *testing.T) {
	a := New()
	target := db.HTTPTarget{Method: http.MethodPost, URL: "not-a-url"}
	resp := a.Dispatch(context.Background(), target, []byte(`{}`), "application/json")

	if resp.ErrorKind != db.ErrorKindInvalidURL {
		t.Fatalf("expected ErrorKindInvalidURL, got %v", resp.ErrorKind)
	}
}

func TestDispatch_InvalidHeadersJSON(t *testing.T) {
	a := New()
	target := db.HTTPTarget{Method: http.MethodPost, URL: "http://example.invalid", Headers: "not-json"}
	resp := a.Dispatch(context.Background(), target, []byte(`{}`), "application/json")

	if resp.ErrorKind != db.ErrorKindInvalidHeaders {
		t.Fatalf("expected ErrorKindInvalidHeaders, got %v", resp.ErrorKind)
	}
}

func TestDispatch_ConnectionRefused(t *testing.T) {
	a := New()
	target := db.HTTPTarget{Method: http.MethodPost, URL: "http://127.0.0.1:1"}
	resp := a.Dispatch(context.Background(), target, []byte(`{}`), "application/json")

	if resp.ErrorKind == db.ErrorKindNone {
		t.Fatalf("expected a transport error kind, got none (http %d)", resp.HTTPCode)
	}
}

func TestDispatch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a := New()
	target := db.HTTPTarget{Method: http.MethodPost, URL: server.URL}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	resp := a.Dispatch(ctx, target, []byte(`{}`), "application/json")
	if resp.ErrorKind != db.ErrorKindTimeout {
		t.Fatalf("expected ErrorKindTimeout, got %v", resp.ErrorKind)
	}
}
