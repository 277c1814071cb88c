package guard

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"clubhours/internal/apperr"
)

// InFlight marks a record as being processed so a second admin, tab or
// double click gets a Conflict instead of racing the first.
type InFlight struct {
	keys Keys
	ttl  time.Duration
	log  *logrus.Entry
}

// NewInFlight builds a guard whose marks expire after ttl even if never
// released.
func NewInFlight(keys Keys, ttl time.Duration, log *logrus.Entry) *InFlight {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &InFlight{keys: keys, ttl: ttl, log: log}
}

// Acquire marks id as in flight. The returned release must be called when
// the operation finishes. A nil guard always succeeds.
func (g *InFlight) Acquire(ctx context.Context, id string) (func(), error) {
	if g == nil || g.keys == nil {
		return func() {}, nil
	}
	key := "inflight:" + id
	ok, err := g.keys.SetNX(ctx, key, g.ttl)
	if err != nil {
		return nil, apperr.Wrap(apperr.Remote, err, "processing guard unavailable")
	}
	if !ok {
		return nil, apperr.E(apperr.Conflict, "this request is already being processed")
	}
	return func() {
		// The caller's context may already be cancelled.
		if err := g.keys.Delete(context.Background(), key); err != nil {
			g.log.WithError(err).WithField("id", id).Warn("release in-flight mark")
		}
	}, nil
}

// Denylist records revoked session token ids.
type Denylist struct {
	keys Keys
}

// NewDenylist builds a Denylist over keys.
func NewDenylist(keys Keys) *Denylist {
	return &Denylist{keys: keys}
}

// Revoke remembers tokenID until its token would have expired anyway. Only
// the first call for a token reports true.
func (d *Denylist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	return d.keys.SetNX(ctx, "revoked:"+tokenID, ttl)
}

// Revoked reports whether tokenID was revoked.
func (d *Denylist) Revoked(ctx context.Context, tokenID string) (bool, error) {
	return d.keys.Exists(ctx, "revoked:"+tokenID)
}
