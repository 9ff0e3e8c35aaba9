package app

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cazapp/famicall/internal/core"
	"github.com/cazapp/famicall/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("send buffer full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func newTestSession(id core.SessionID, identity domain.Identity) (core.Session, *fakeConn) {
	conn := &fakeConn{}
	user, _ := domain.NewUser(identity, string(identity))
	return core.NewSession(id, user, conn), conn
}

func TestPresenceRegisterSupersedes(t *testing.T) {
	p := NewPresence()
	first, _ := newTestSession("s1", "alice@example.com")
	second, _ := newTestSession("s2", "alice@example.com")

	assert.False(t, p.Register(first))
	assert.True(t, p.Register(second))

	got, ok := p.Lookup("alice@example.com")
	require.True(t, ok)
	assert.Equal(t, core.SessionID("s2"), got.ID())
}

func TestPresenceDeregisterIsGuarded(t *testing.T) {
	p := NewPresence()
	old, _ := newTestSession("s1", "alice@example.com")
	replacement, _ := newTestSession("s2", "alice@example.com")

	p.Register(old)
	p.Register(replacement)

	// A stale disconnect from the superseded session must not evict the
	// newer one.
	assert.False(t, p.Deregister(old))
	got, ok := p.Lookup("alice@example.com")
	require.True(t, ok)
	assert.Equal(t, core.SessionID("s2"), got.ID())

	assert.True(t, p.Deregister(replacement))
	_, ok = p.Lookup("alice@example.com")
	assert.False(t, ok)
}

func TestPresenceCallStatus(t *testing.T) {
	p := NewPresence()
	sess, _ := newTestSession("s1", "bob@example.com")

	assert.Equal(t, domain.StatusOffline, p.Status("bob@example.com"))
	assert.False(t, p.SetInCall("bob@example.com", true))

	p.Register(sess)
	assert.Equal(t, domain.StatusOnline, p.Status("bob@example.com"))

	assert.True(t, p.SetInCall("bob@example.com", true))
	assert.Equal(t, domain.StatusInCall, p.Status("bob@example.com"))

	// Repeating the same value reports no change.
	assert.False(t, p.SetInCall("bob@example.com", true))
	assert.True(t, p.SetInCall("bob@example.com", false))
	assert.Equal(t, domain.StatusOnline, p.Status("bob@example.com"))
}

func TestPresenceSnapshot(t *testing.T) {
	p := NewPresence()
	a, _ := newTestSession("s1", "alice@example.com")
	b, _ := newTestSession("s2", "bob@example.com")
	p.Register(a)
	p.Register(b)
	p.SetInCall("bob@example.com", true)

	online, inCall := p.Snapshot()
	assert.ElementsMatch(t, []domain.Identity{"alice@example.com", "bob@example.com"}, online)
	assert.Equal(t, []domain.Identity{"bob@example.com"}, inCall)
}

func TestPresenceBroadcastSkipsSender(t *testing.T) {
	p := NewPresence()
	a, connA := newTestSession("s1", "alice@example.com")
	b, connB := newTestSession("s2", "bob@example.com")
	c, connC := newTestSession("s3", "carol@example.com")
	p.Register(a)
	p.Register(b)
	p.Register(c)

	sent := p.Broadcast(core.Frame(`{"type":"identity-online"}`), b.ID())
	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, connA.count())
	assert.Equal(t, 0, connB.count())
	assert.Equal(t, 1, connC.count())
}

func TestPresenceBroadcastToleratesBackpressure(t *testing.T) {
	p := NewPresence()
	a, connA := newTestSession("s1", "alice@example.com")
	b, connB := newTestSession("s2", "bob@example.com")
	connB.fail = true
	p.Register(a)
	p.Register(b)

	// The slow consumer only loses its own frame.
	sent := p.Broadcast(core.Frame(`{"type":"identity-offline"}`), "none")
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, connA.count())
	assert.Equal(t, 0, connB.count())
}
