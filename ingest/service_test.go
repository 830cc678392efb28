package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/caasmo/hookrelay/db"
	"github.com/caasmo/hookrelay/reporter"
)

func newTestStore() *db.MockDB {
	store := db.NewMockDB()
	store.ContentTypes["application/json"] = true
	store.Secrets[[2]string{"app-1", "tok-1"}] = db.ApplicationSecret{
		ApplicationID: "app-1",
		Token:         "tok-1",
		Name:          "default",
	}
	return store
}

func validPost() EventPost {
	return EventPost{
		ApplicationID:      "app-1",
		EventID:            "evt-1",
		ApplicationSecret:  "tok-1",
		EventType:          "order.created",
		Payload:            base64.StdEncoding.EncodeToString([]byte(`{"x":1}`)),
		PayloadContentType: "application/json",
		OccurredAt:         time.Now().UTC(),
		Labels:             []byte(`{}`),
	}
}

func TestIngest_Accepted(t *testing.T) {
	store := newTestStore()
	svc := NewService(store, nil, time.Minute, nil)

	created, err := svc.Ingest(context.Background(), validPost(), "203.0.113.9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ApplicationID != "app-1" || created.EventID != "evt-1" {
		t.Fatalf("unexpected result: %+v", created)
	}
	if _, ok := store.Events[[2]string{"app-1", "evt-1"}]; !ok {
		t.Fatalf("event was not committed to the store")
	}
}

func TestIngest_UnknownSecretIsForbidden(t *testing.T) {
	store := newTestStore()
	svc := NewService(store, nil, time.Minute, nil)

	post := validPost()
	post.ApplicationSecret = "wrong-token"

	_, err := svc.Ingest(context.Background(), post, "203.0.113.9")
	assertKind(t, err, ErrorKindForbidden)
}

func TestIngest_DeletedSecretIsForbidden(t *testing.T) {
	store := newTestStore()
	now := time.Now().UTC()
	store.Secrets[[2]string{"app-1", "tok-1"}] = db.ApplicationSecret{
		ApplicationID: "app-1",
		Token:         "tok-1",
		DeletedAt:     &now,
	}
	svc := NewService(store, nil, time.Minute, nil)

	_, err := svc.Ingest(context.Background(), validPost(), "203.0.113.9")
	assertKind(t, err, ErrorKindForbidden)
}

func TestIngest_UnregisteredContentType(t *testing.T) {
	store := newTestStore()
	svc := NewService(store, nil, time.Minute, nil)

	post := validPost()
	post.PayloadContentType = "application/xml"

	_, err := svc.Ingest(context.Background(), post, "203.0.113.9")
	assertKind(t, err, ErrorKindInvalidPayloadContentType)
}

func TestIngest_InvalidBase64Payload(t *testing.T) {
	store := newTestStore()
	svc := NewService(store, nil, time.Minute, nil)

	post := validPost()
	post.Payload = "not-base64!!!"

	_, err := svc.Ingest(context.Background(), post, "203.0.113.9")
	assertKind(t, err, ErrorKindInvalidBase64Payload)
}

func TestIngest_InvalidMetadata(t *testing.T) {
	store := newTestStore()
	svc := NewService(store, nil, time.Minute, nil)

	post := validPost()
	post.Metadata = []byte(`"not an object"`)

	_, err := svc.Ingest(context.Background(), post, "203.0.113.9")
	assertKind(t, err, ErrorKindInvalidMetadata)
}

func TestIngest_AbsentMetadataIsOK(t *testing.T) {
	store := newTestStore()
	svc := NewService(store, nil, time.Minute, nil)

	post := validPost()
	post.Metadata = nil

	if _, err := svc.Ingest(context.Background(), post, "203.0.113.9"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIngest_InvalidLabels(t *testing.T) {
	store := newTestStore()
	svc := NewService(store, nil, time.Minute, nil)

	post := validPost()
	post.Labels = nil // labels must be an object, never absent

	_, err := svc.Ingest(context.Background(), post, "203.0.113.9")
	assertKind(t, err, ErrorKindInvalidLabels)
}

func TestIngest_TieBreakOrder(t *testing.T) {
	// Content-type failure must win even when base64/metadata/labels are
	// also invalid.
	store := newTestStore()
	svc := NewService(store, nil, time.Minute, nil)

	post := validPost()
	post.PayloadContentType = "application/xml"
	post.Payload = "!!!"
	post.Labels = nil

	_, err := svc.Ingest(context.Background(), post, "203.0.113.9")
	assertKind(t, err, ErrorKindInvalidPayloadContentType)
}

func TestIngest_DuplicateEventIsConflict(t *testing.T) {
	store := newTestStore()
	svc := NewService(store, nil, time.Minute, nil)

	ctx := context.Background()
	if _, err := svc.Ingest(ctx, validPost(), "203.0.113.9"); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}

	_, err := svc.Ingest(ctx, validPost(), "203.0.113.9")
	assertKind(t, err, ErrorKindConflict)
}

func TestIngest_SecretIsCached(t *testing.T) {
	store := newTestStore()
	cache := newFakeCache[db.ApplicationSecret]()
	svc := NewService(store, cache, time.Minute, nil)

	ctx := context.Background()
	if _, err := svc.Ingest(ctx, validPost(), "203.0.113.9"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Remove the secret from the store entirely; a second ingest for a new
	// event_id must still succeed because the secret lookup is served from
	// cache.
	delete(store.Secrets, [2]string{"app-1", "tok-1"})

	post := validPost()
	post.EventID = "evt-2"
	if _, err := svc.Ingest(ctx, post, "203.0.113.9"); err != nil {
		t.Fatalf("expected cached secret to serve the second ingest: %v", err)
	}
}

func TestIngest_ReportsInternalStoreFailures(t *testing.T) {
	store := &failingContentTypeStore{MockDB: newTestStore()}
	rep := &countingReporter{}
	svc := NewService(store, nil, time.Minute, rep)

	_, err := svc.Ingest(context.Background(), validPost(), "203.0.113.9")
	assertKind(t, err, ErrorKindInternal)
	if rep.calls != 1 {
		t.Fatalf("expected the reporter to be invoked once, got %d calls", rep.calls)
	}
}

func TestIngest_MissingPeerIPIsInternalError(t *testing.T) {
	store := newTestStore()
	svc := NewService(store, nil, time.Minute, nil)

	_, err := svc.Ingest(context.Background(), validPost(), "")
	assertKind(t, err, ErrorKindInternal)
}

func TestExtractPeerIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.9:51234":      "203.0.113.9",
		"[2001:db8::1]:443":      "2001:db8::1",
		"no-port-here":           "no-port-here",
	}
	for in, want := range cases {
		if got := ExtractPeerIP(in); got != want {
			t.Errorf("ExtractPeerIP(%q) = %q, want %q", in, got, want)
		}
	}
}

func assertKind(t *testing.T, err error, want ErrorKind) {
	t.Helper()
	var ingestErr *IngestError
	if !errors.As(err, &ingestErr) {
		t.Fatalf("expected *IngestError, got %v (%T)", err, err)
	}
	if ingestErr.Kind != want {
		t.Fatalf("expected kind %s, got %s (%v)", want, ingestErr.Kind, ingestErr.Err)
	}
}

// countingReporter is a reporter.Reporter that just counts calls.
type countingReporter struct {
	calls int
}

func (c *countingReporter) Report(ctx context.Context, err error, fields map[string]any) {
	c.calls++
}

var _ reporter.Reporter = (*countingReporter)(nil)

// failingContentTypeStore forces CountPayloadContentType to error, to
// exercise the internal-error/reporter path that the real sqlite store
// would hit on a driver-level failure.
type failingContentTypeStore struct {
	*db.MockDB
}

func (f *failingContentTypeStore) CountPayloadContentType(ctx context.Context, name string) (int, error) {
	return 0, errors.New("simulated store failure")
}

// fakeCache is a minimal in-memory cache.Cache implementation for tests.
type fakeCache[V any] struct {
	data map[string]V
}

func newFakeCache[V any]() *fakeCache[V] {
	return &fakeCache[V]{data: make(map[string]V)}
}

func (c *fakeCache[V]) Get(key string) (V, bool) {
	v, ok := c.data[key]
	return v, ok
}

func (c *fakeCache[V]) Set(key string, value V, cost int64) bool {
	c.data[key] = value
	return true
}

func (c *fakeCache[V]) SetWithTTL(key string, value V, cost int64, ttl time.Duration) bool {
	c.data[key] = value
	return true
}
