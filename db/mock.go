package db

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockDB is an in-memory Db implementation for unit tests of the ingest
// service and delivery worker, avoiding a real SQLite file per test.
type MockDB struct {
	mu sync.Mutex

	Events           map[[2]string]Event             // key: (application_id, event_id)
	Secrets          map[[2]string]ApplicationSecret // key: (application_id, token)
	ContentTypes     map[string]bool
	Roles            map[[2]string]Role // key: (principal, application_id)
	Attempts         map[string]RequestAttempt
	Responses        map[string]Response
	NextAttemptOrder []string // request_attempt_id in created_at order, pending only
	LogRecords       []LogRecord

	idSeq int
}

var _ Db = (*MockDB)(nil)

func NewMockDB() *MockDB {
	return &MockDB{
		Events:       make(map[[2]string]Event),
		Secrets:      make(map[[2]string]ApplicationSecret),
		ContentTypes: make(map[string]bool),
		Roles:        make(map[[2]string]Role),
		Attempts:     make(map[string]RequestAttempt),
		Responses:    make(map[string]Response),
	}
}

func (m *MockDB) Close() error { return nil }

func (m *MockDB) nextID(prefix string) string {
	m.idSeq++
	return fmt.Sprintf("%s-%d", prefix, m.idSeq)
}

func (m *MockDB) InsertEvent(ctx context.Context, event Event) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := [2]string{event.ApplicationID, event.EventID}
	if _, exists := m.Events[key]; exists {
		return time.Time{}, ErrConstraintUnique
	}

	receivedAt := time.Now().UTC()
	event.ReceivedAt = receivedAt
	m.Events[key] = event
	return receivedAt, nil
}

func (m *MockDB) GetApplicationSecret(ctx context.Context, applicationID, token string) (ApplicationSecret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	secret, ok := m.Secrets[[2]string{applicationID, token}]
	if !ok {
		return ApplicationSecret{}, ErrNotFound
	}
	return secret, nil
}

func (m *MockDB) CountPayloadContentType(ctx context.Context, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ContentTypes[name] {
		return 1, nil
	}
	return 0, nil
}

func (m *MockDB) ResolveRole(ctx context.Context, principal, applicationID string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	role, ok := m.Roles[[2]string{principal, applicationID}]
	if !ok {
		return RoleNone, nil
	}
	return role, nil
}

func (m *MockDB) ClaimNextAttempt(ctx context.Context, workerID, workerVersion string, leaseDuration time.Duration) (*ClaimedAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	leaseExpiresAt := now.Add(leaseDuration)

	// The pending-only NextAttemptOrder slice only ever holds never-claimed
	// rows, so a reclaim (the lease-expired case the real store's claim
	// query also matches) is checked separately across all attempts here.
	for i, id := range m.NextAttemptOrder {
		attempt, ok := m.Attempts[id]
		if !ok || attempt.PickedAt != nil {
			continue
		}
		if attempt.DelayUntil != nil && attempt.DelayUntil.After(now) {
			continue
		}

		attempt.PickedAt = &now
		attempt.LeaseExpiresAt = &leaseExpiresAt
		attempt.WorkerID = workerID
		attempt.WorkerVersion = workerVersion
		m.Attempts[id] = attempt
		m.NextAttemptOrder = append(m.NextAttemptOrder[:i:i], m.NextAttemptOrder[i+1:]...)

		return &ClaimedAttempt{Attempt: attempt}, nil
	}

	for id, attempt := range m.Attempts {
		if attempt.SucceededAt != nil || attempt.FailedAt != nil {
			continue
		}
		if attempt.PickedAt == nil || attempt.LeaseExpiresAt == nil || attempt.LeaseExpiresAt.After(now) {
			continue
		}

		attempt.PickedAt = &now
		attempt.LeaseExpiresAt = &leaseExpiresAt
		attempt.WorkerID = workerID
		attempt.WorkerVersion = workerVersion
		m.Attempts[id] = attempt

		return &ClaimedAttempt{Attempt: attempt}, nil
	}

	return nil, ErrNoRowsClaimed
}

// leaseStillOwned reports whether attempt (as claimed) still matches the
// stored row's worker_id/picked_at, the same compound lease ownership check
// the real zombiezen store conditions its UPDATE on.
func (m *MockDB) leaseStillOwned(attempt RequestAttempt) bool {
	current, ok := m.Attempts[attempt.RequestAttemptID]
	if !ok || current.PickedAt == nil || attempt.PickedAt == nil {
		return false
	}
	return current.WorkerID == attempt.WorkerID && current.PickedAt.Equal(*attempt.PickedAt)
}

func (m *MockDB) RecordSuccess(ctx context.Context, attempt RequestAttempt, resp Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.leaseStillOwned(attempt) {
		return ErrLeaseLost
	}

	resp.ResponseID = m.nextID("response")
	m.Responses[resp.ResponseID] = resp

	now := time.Now().UTC()
	attempt.ResponseID = &resp.ResponseID
	attempt.SucceededAt = &now
	m.Attempts[attempt.RequestAttemptID] = attempt
	return nil
}

func (m *MockDB) RecordFailureAndReschedule(ctx context.Context, attempt RequestAttempt, resp Response, retryDelayUntil *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.leaseStillOwned(attempt) {
		return ErrLeaseLost
	}

	resp.ResponseID = m.nextID("response")
	m.Responses[resp.ResponseID] = resp

	now := time.Now().UTC()
	attempt.ResponseID = &resp.ResponseID
	attempt.FailedAt = &now
	m.Attempts[attempt.RequestAttemptID] = attempt

	retryID := m.nextID("attempt")
	retry := RequestAttempt{
		RequestAttemptID: retryID,
		EventID:          attempt.EventID,
		SubscriptionID:   attempt.SubscriptionID,
		CreatedAt:        now,
		RetryCount:       attempt.RetryCount + 1,
		DelayUntil:       retryDelayUntil,
	}
	m.Attempts[retryID] = retry
	m.NextAttemptOrder = append(m.NextAttemptOrder, retryID)
	return nil
}

func (m *MockDB) WriteLogBatch(ctx context.Context, records []LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LogRecords = append(m.LogRecords, records...)
	return nil
}
