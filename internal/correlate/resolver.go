// Package correlate links IDP-submitted signals to recorded fraud events.
package correlate

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/opensource-identity/harrier/internal/domain"
	"github.com/opensource-identity/harrier/internal/repository"
)

// DefaultTTL bounds how long a matched event id is served from cache.
const DefaultTTL = 15 * time.Minute

// Resolver performs advisory correlation lookups against the audit trail.
// Absence of a match is never an error, and lookup failures degrade to
// "unmatched" so they cannot block persistence.
type Resolver struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// NewResolver creates a resolver. The cache is optional.
func NewResolver(repo domain.Repository, cache domain.Cache) *Resolver {
	return &Resolver{
		repo:  repo,
		cache: cache,
		ttl:   DefaultTTL,
	}
}

// Resolve returns the id of the fraud event recorded under the natural key,
// or nil when unmatched. Matches are cached; misses are not, so a record
// that correlates only after a later audit import still gains its match.
func (r *Resolver) Resolve(ctx context.Context, idpEntityID, idpEventID string) *int64 {
	cacheKey := "correlate:" + idpEntityID + ":" + idpEventID

	if r.cache != nil {
		if val, err := r.cache.Get(ctx, cacheKey); err == nil && val != nil {
			if id, err := strconv.ParseInt(string(val), 10, 64); err == nil {
				return &id
			}
		}
	}

	id, err := r.repo.FindFraudEvent(ctx, idpEntityID, idpEventID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		slog.Warn("correlation lookup failed, treating as unmatched",
			"idp_entity_id", idpEntityID,
			"idp_event_id", idpEventID,
			"error", err,
		)
		return nil
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, cacheKey, []byte(strconv.FormatInt(id, 10)), r.ttl)
	}

	return &id
}
