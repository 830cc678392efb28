// Package ingest implements the Ingest Service (I) and Authorization Probe
// (A): validating and committing a new event, and resolving whether a
// caller's role is sufficient for an application.
package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/caasmo/hookrelay/cache"
	"github.com/caasmo/hookrelay/db"
	"github.com/caasmo/hookrelay/reporter"
)

// ErrorKind names the caller-facing failure category, matching the core
// error table exactly; it is not a Go error type name.
type ErrorKind string

const (
	ErrorKindForbidden                 ErrorKind = "Forbidden"
	ErrorKindInvalidPayloadContentType ErrorKind = "EventInvalidPayloadContentType"
	ErrorKindInvalidBase64Payload      ErrorKind = "EventInvalidBase64Payload"
	ErrorKindInvalidMetadata           ErrorKind = "EventInvalidMetadata"
	ErrorKindInvalidLabels             ErrorKind = "EventInvalidLabels"
	ErrorKindConflict                  ErrorKind = "Conflict"
	ErrorKindInternal                  ErrorKind = "InternalServerError"
)

// IngestError carries the caller-facing classification alongside the
// underlying cause for logging.
type IngestError struct {
	Kind ErrorKind
	Err  error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest: %s: %v", e.Kind, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

func fail(kind ErrorKind, err error) *IngestError {
	return &IngestError{Kind: kind, Err: err}
}

// Service implements the Ingest algorithm (§4.2 of the core design).
type Service struct {
	store       db.Db
	secretCache cache.Cache[string, db.ApplicationSecret]
	cacheTTL    time.Duration
	reporter    reporter.Reporter
}

func NewService(store db.Db, secretCache cache.Cache[string, db.ApplicationSecret], cacheTTL time.Duration, rep reporter.Reporter) *Service {
	if rep == nil {
		rep = reporter.Noop{}
	}
	return &Service{store: store, secretCache: secretCache, cacheTTL: cacheTTL, reporter: rep}
}

func secretCacheKey(applicationID, token string) string {
	return applicationID + "\x00" + token
}

// loadSecret fronts the store lookup with the cache; a hit still carries its
// own deleted_at, so freshness is bounded by cacheTTL, an accepted
// staleness window documented alongside the cache wiring.
func (s *Service) loadSecret(ctx context.Context, applicationID, token string) (db.ApplicationSecret, error) {
	key := secretCacheKey(applicationID, token)
	if s.secretCache != nil {
		if cached, ok := s.secretCache.Get(key); ok {
			return cached, nil
		}
	}

	secret, err := s.store.GetApplicationSecret(ctx, applicationID, token)
	if err != nil {
		return db.ApplicationSecret{}, err
	}

	if s.secretCache != nil {
		s.secretCache.SetWithTTL(key, secret, 1, s.cacheTTL)
	}
	return secret, nil
}

// Ingest validates and commits a new event. peerIP is the already-extracted,
// port-stripped originating address (step 6 of the algorithm); callers
// derive it from the request (the first X-Forwarded-For entry when that
// header is present, otherwise RemoteAddr) before calling Ingest so this
// function stays free of net/http concerns.
func (s *Service) Ingest(ctx context.Context, post EventPost, peerIP string) (*EventCreated, error) {
	secret, err := s.loadSecret(ctx, post.ApplicationID, post.ApplicationSecret)
	if err != nil || !secret.Usable() {
		return nil, fail(ErrorKindForbidden, fmt.Errorf("unknown or deleted application secret"))
	}

	contentTypeCount, err := s.store.CountPayloadContentType(ctx, post.PayloadContentType)
	if err != nil {
		s.reporter.Report(ctx, err, map[string]any{"stage": "count_content_type", "application_id": post.ApplicationID})
		return nil, fail(ErrorKindInternal, err)
	}
	contentTypeOK := contentTypeCount == 1

	payload, b64Err := base64.StdEncoding.DecodeString(post.Payload)
	base64OK := b64Err == nil

	metadataOK := isJSONObjectOrAbsent(post.Metadata)
	labelsOK := isJSONObject(post.Labels)

	// Tie-break order is exactly content-type -> base64 -> metadata -> labels;
	// every check above already ran so reporting is uniform regardless of
	// which branch fires.
	switch {
	case !contentTypeOK:
		return nil, fail(ErrorKindInvalidPayloadContentType, fmt.Errorf("unregistered payload_content_type %q", post.PayloadContentType))
	case !base64OK:
		return nil, fail(ErrorKindInvalidBase64Payload, b64Err)
	case !metadataOK:
		return nil, fail(ErrorKindInvalidMetadata, fmt.Errorf("metadata must be a JSON object or absent"))
	case !labelsOK:
		return nil, fail(ErrorKindInvalidLabels, fmt.Errorf("labels must be a JSON object"))
	}

	if peerIP == "" {
		return nil, fail(ErrorKindInternal, fmt.Errorf("could not determine originating IP"))
	}

	event := db.Event{
		ApplicationID:          post.ApplicationID,
		EventID:                post.EventID,
		EventType:              post.EventType,
		Payload:                payload,
		PayloadContentType:     post.PayloadContentType,
		IP:                     peerIP,
		Metadata:               rawOrEmpty(post.Metadata),
		OccurredAt:             post.OccurredAt,
		ApplicationSecretToken: post.ApplicationSecret,
		Labels:                 rawOrEmpty(post.Labels),
	}

	receivedAt, err := s.store.InsertEvent(ctx, event)
	if err != nil {
		if isUniqueConstraint(err) {
			return nil, fail(ErrorKindConflict, err)
		}
		s.reporter.Report(ctx, err, map[string]any{"stage": "insert_event", "application_id": post.ApplicationID, "event_id": post.EventID})
		return nil, fail(ErrorKindInternal, err)
	}

	return &EventCreated{
		ApplicationID: post.ApplicationID,
		EventID:       post.EventID,
		ReceivedAt:    receivedAt,
	}, nil
}

func isUniqueConstraint(err error) bool {
	return errors.Is(err, db.ErrConstraintUnique)
}

// ExtractPeerIP strips the port suffix from an address of the form
// "host:port", matching step 6 of the ingest algorithm.
func ExtractPeerIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func isJSONObjectOrAbsent(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	return isJSONObject(raw)
}

func isJSONObject(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v map[string]any
	return json.Unmarshal(raw, &v) == nil
}

func rawOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
