package ingest

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/caasmo/hookrelay/cache"
	"github.com/caasmo/hookrelay/db"
)

// Authorizer is the Authorization Probe: given a principal and an
// application, it resolves the principal's role and checks it against a
// required minimum. Concurrent probes for the same (principal,
// application_id) are coalesced with singleflight so a burst of requests
// for a just-evicted cache entry issues one store read, not N.
type Authorizer struct {
	store    db.Db
	roleCache cache.Cache[string, db.Role]
	cacheTTL time.Duration
	group    singleflight.Group
}

func NewAuthorizer(store db.Db, roleCache cache.Cache[string, db.Role], cacheTTL time.Duration) *Authorizer {
	return &Authorizer{store: store, roleCache: roleCache, cacheTTL: cacheTTL}
}

func roleCacheKey(principal, applicationID string) string {
	return principal + "\x00" + applicationID
}

// Authorize reports whether principal holds at least required on
// applicationID. A resolution failure denies access rather than panicking
// or propagating an ambiguous ok.
func (a *Authorizer) Authorize(ctx context.Context, principal, applicationID string, required db.Role) (bool, error) {
	role, err := a.resolveRole(ctx, principal, applicationID)
	if err != nil {
		return false, err
	}
	return role.Meets(required), nil
}

func (a *Authorizer) resolveRole(ctx context.Context, principal, applicationID string) (db.Role, error) {
	key := roleCacheKey(principal, applicationID)

	if a.roleCache != nil {
		if cached, ok := a.roleCache.Get(key); ok {
			return cached, nil
		}
	}

	v, err, _ := a.group.Do(key, func() (any, error) {
		role, err := a.store.ResolveRole(ctx, principal, applicationID)
		if err != nil {
			return db.RoleNone, fmt.Errorf("resolve role: %w", err)
		}

		if a.roleCache != nil {
			a.roleCache.SetWithTTL(key, role, 1, a.cacheTTL)
		}
		return role, nil
	})
	if err != nil {
		return db.RoleNone, err
	}
	return v.(db.Role), nil
}
