// internal/navigator/handlers_test.go
package navigator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"oraclebackend/internal/catalog"
)

func seedSession(id string, lastActive time.Time) {
	sessionsMu.Lock()
	sessions[id] = &session{
		nav:        New(nil, nil, catalog.BuildIndex(nil)),
		lastActive: lastActive,
	}
	sessionsMu.Unlock()
}

func TestSweepSessionsDropsIdle(t *testing.T) {
	sessionsMu.Lock()
	sessions = make(map[string]*session)
	sessionsMu.Unlock()

	now := time.Now()
	seedSession("stale", now.Add(-2*time.Hour))
	seedSession("fresh", now)

	removed := SweepSessions(now)
	assert.Equal(t, 1, removed)

	_, ok := lookupSession("stale")
	assert.False(t, ok, "idle sessions must be swept")
	_, ok = lookupSession("fresh")
	assert.True(t, ok)
}

func TestLookupSessionRefreshesActivity(t *testing.T) {
	sessionsMu.Lock()
	sessions = make(map[string]*session)
	sessionsMu.Unlock()

	now := time.Now()
	seedSession("busy", now.Add(-2*time.Hour))

	// A lookup counts as activity; the next sweep keeps the session.
	_, ok := lookupSession("busy")
	assert.True(t, ok)
	assert.Equal(t, 0, SweepSessions(now))
	_, ok = lookupSession("busy")
	assert.True(t, ok)
}
