package ingest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caasmo/hookrelay/db"
)

func newTestHandler(store db.Db) *Handler {
	svc := NewService(store, nil, time.Minute, nil)
	az := NewAuthorizer(store, nil, time.Minute)
	return NewHandler(svc, az, testJwtSecret, db.RoleEditor, discardLogger())
}

func doPostEvent(t *testing.T, h *Handler, token string, post EventPost) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(post)
	if err != nil {
		t.Fatalf("marshal post: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.postEvent(rec, req)
	return rec
}

func TestPostEvent_Accepted(t *testing.T) {
	store := newTestStore()
	store.Roles[[2]string{"user-1", "app-1"}] = db.RoleOwner
	h := newTestHandler(store)

	token, err := signTestToken("user-1")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	rec := doPostEvent(t, h, token, validPost())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPostEvent_NoAuthHeader(t *testing.T) {
	store := newTestStore()
	h := newTestHandler(store)

	rec := doPostEvent(t, h, "", validPost())
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPostEvent_InvalidToken(t *testing.T) {
	store := newTestStore()
	h := newTestHandler(store)

	rec := doPostEvent(t, h, "not-a-jwt", validPost())
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPostEvent_InsufficientRoleIsForbidden(t *testing.T) {
	store := newTestStore()
	store.Roles[[2]string{"user-1", "app-1"}] = db.RoleViewer
	h := newTestHandler(store)

	token, err := signTestToken("user-1")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	rec := doPostEvent(t, h, token, validPost())
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPostEvent_AuthorizedButBadSecretIsForbidden(t *testing.T) {
	store := newTestStore()
	store.Roles[[2]string{"user-1", "app-1"}] = db.RoleOwner
	h := newTestHandler(store)

	token, err := signTestToken("user-1")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	post := validPost()
	post.ApplicationSecret = "wrong"
	rec := doPostEvent(t, h, token, post)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPostEvent_MalformedBody(t *testing.T) {
	store := newTestStore()
	h := newTestHandler(store)

	token, err := signTestToken("user-1")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.postEvent(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
