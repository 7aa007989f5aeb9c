// pkg/platform/lti/replay.go
package lti

import (
	"context"
	"time"

	"github.com/mind-engage/lti-platform/pkg/platform/session"
)

// Replay is used to prevent nonce/jti replays. Use reports false when the
// value was already seen within ttl.
type Replay interface {
	Use(ctx context.Context, kind, value string, ttl time.Duration) (bool, error)
}

// NoopReplay accepts everything (dev/tests).
type NoopReplay struct{}

func (NoopReplay) Use(context.Context, string, string, time.Duration) (bool, error) { return true, nil }

// StoreReplay marks values in a session store.
type StoreReplay struct {
	Store session.Store
}

func (r StoreReplay) Use(ctx context.Context, kind, value string, ttl time.Duration) (bool, error) {
	return r.Store.PutIfAbsent(ctx, "replay:"+kind+":"+value, []byte{1}, ttl)
}
