package signal

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cazapp/famicall/internal/app"
	"github.com/cazapp/famicall/internal/core"
	"github.com/cazapp/famicall/internal/domain"
	"github.com/cazapp/famicall/internal/proto"
)

type capturedConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (c *capturedConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	return nil
}

func (c *capturedConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// kinds returns the discriminators of everything sent so far, in order.
func (c *capturedConn) kinds(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		kind, err := proto.Kind(f)
		require.NoError(t, err)
		out = append(out, kind)
	}
	return out
}

// last decodes the most recent frame of the given kind into v.
func (c *capturedConn) last(t *testing.T, kind string, v any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		k, _ := proto.Kind(c.frames[i])
		if k == kind {
			require.NoError(t, json.Unmarshal(c.frames[i], v))
			return
		}
	}
	t.Fatalf("no %s frame captured", kind)
}

func (c *capturedConn) countKind(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		if k, _ := proto.Kind(f); k == kind {
			n++
		}
	}
	return n
}

type harness struct {
	ctl *Controller
}

func newHarness() *harness {
	return &harness{ctl: NewController(app.NewPresence(), app.NewRooms())}
}

func (h *harness) connect(t *testing.T, sid core.SessionID, identity domain.Identity) (core.Session, *capturedConn) {
	t.Helper()
	conn := &capturedConn{}
	user, err := domain.NewUser(identity, string(identity))
	require.NoError(t, err)
	sess := core.NewSession(sid, user, conn)
	h.ctl.Presence.Register(sess)
	h.ctl.announceOnline(sess)
	return sess, conn
}

func send(t *testing.T, ctl *Controller, sess core.Session, v any) {
	t.Helper()
	b, err := proto.Marshal(v)
	require.NoError(t, err)
	ctl.HandleMessage(sess, b)
}

func TestInviteRingsTarget(t *testing.T) {
	h := newHarness()
	alice, _ := h.connect(t, "s-alice", "alice@example.com")
	_, bobConn := h.connect(t, "s-bob", "bob@example.com")

	send(t, h.ctl, alice, proto.CallInvite{
		Type:   proto.KindCallInvite,
		RoomID: "room-1-a",
		Target: "bob@example.com",
		// A forged caller field must not survive the relay.
		Caller:     "mallory@example.com",
		CallerName: "Mallory",
	})

	var ring proto.IncomingCall
	bobConn.last(t, proto.KindIncomingCall, &ring)
	assert.Equal(t, domain.RoomID("room-1-a"), ring.RoomID)
	assert.Equal(t, domain.Identity("alice@example.com"), ring.Caller)
	assert.Equal(t, "alice@example.com", ring.CallerName)
}

func TestInviteOfflineTargetAnswersUnavailable(t *testing.T) {
	h := newHarness()
	alice, aliceConn := h.connect(t, "s-alice", "alice@example.com")

	send(t, h.ctl, alice, proto.CallInvite{
		Type:   proto.KindCallInvite,
		RoomID: "room-1-a",
		Target: "ghost@example.com",
	})

	var un proto.Unavailable
	aliceConn.last(t, proto.KindUnavailable, &un)
	assert.Equal(t, domain.Identity("ghost@example.com"), un.Target)
	// Nothing was persisted or queued server-side.
	assert.False(t, h.ctl.Rooms.Exists("room-1-a"))
}

func TestDeclineReachesCallerAndDestroysRoom(t *testing.T) {
	h := newHarness()
	alice, aliceConn := h.connect(t, "s-alice", "alice@example.com")
	bob, _ := h.connect(t, "s-bob", "bob@example.com")

	send(t, h.ctl, alice, proto.JoinRoom{Type: proto.KindJoinRoom, RoomID: "room-1-a"})
	send(t, h.ctl, bob, proto.CallDeclined{
		Type: proto.KindCallDeclined, RoomID: "room-1-a", Target: "alice@example.com",
	})

	assert.Equal(t, 1, aliceConn.countKind(proto.KindCallDeclined))
	assert.False(t, h.ctl.Rooms.Exists("room-1-a"))
}

func TestCancelLeavesExactlyOneMissedCall(t *testing.T) {
	h := newHarness()
	alice, _ := h.connect(t, "s-alice", "alice@example.com")
	_, bobConn := h.connect(t, "s-bob", "bob@example.com")

	send(t, h.ctl, alice, proto.JoinRoom{Type: proto.KindJoinRoom, RoomID: "room-1-a"})
	send(t, h.ctl, alice, proto.CancelCall{
		Type: proto.KindCancelCall, RoomID: "room-1-a", Target: "bob@example.com",
	})

	assert.Equal(t, 1, bobConn.countKind(proto.KindCancelCall))
	assert.Equal(t, 1, bobConn.countKind(proto.KindMissedCall))
	var missed proto.MissedCall
	bobConn.last(t, proto.KindMissedCall, &missed)
	assert.Equal(t, domain.Identity("alice@example.com"), missed.Caller)
	assert.InDelta(t, time.Now().UnixMilli(), missed.At, 2000)

	// The callee never answered, so no call-status broadcast happened.
	assert.Equal(t, 0, bobConn.countKind(proto.KindCallStatusChanged))
	assert.False(t, h.ctl.Rooms.Exists("room-1-a"))
}

func TestInviteToOfflineTargetLeavesNoRoomBehind(t *testing.T) {
	h := newHarness()
	alice, aliceConn := h.connect(t, "s-alice", "alice@example.com")

	// The caller's real frame order: invite first, then its own join,
	// then the withdrawal it issues on seeing unavailable.
	send(t, h.ctl, alice, proto.CallInvite{
		Type: proto.KindCallInvite, RoomID: "room-1-a", Target: "ghost@example.com",
	})
	send(t, h.ctl, alice, proto.JoinRoom{Type: proto.KindJoinRoom, RoomID: "room-1-a"})
	require.Equal(t, 1, aliceConn.countKind(proto.KindUnavailable))
	require.True(t, h.ctl.Rooms.Exists("room-1-a"))

	send(t, h.ctl, alice, proto.CancelCall{
		Type: proto.KindCancelCall, RoomID: "room-1-a", Target: "ghost@example.com",
	})
	assert.False(t, h.ctl.Rooms.Exists("room-1-a"))
	assert.Equal(t, domain.StatusOnline, h.ctl.Presence.Status("alice@example.com"))
}

func TestCancelAfterCalleeAnsweredSkipsMissedCall(t *testing.T) {
	h := newHarness()
	alice, _ := h.connect(t, "s-alice", "alice@example.com")
	bob, bobConn := h.connect(t, "s-bob", "bob@example.com")

	send(t, h.ctl, alice, proto.JoinRoom{Type: proto.KindJoinRoom, RoomID: "room-1-a"})
	send(t, h.ctl, bob, proto.JoinRoom{Type: proto.KindJoinRoom, RoomID: "room-1-a"})
	// The callee's media arrived first; the call is answered on their side.
	send(t, h.ctl, bob, proto.CallStarted{Type: proto.KindCallStarted, RoomID: "room-1-a"})
	require.Equal(t, domain.StatusInCall, h.ctl.Presence.Status("bob@example.com"))

	send(t, h.ctl, alice, proto.CancelCall{
		Type: proto.KindCancelCall, RoomID: "room-1-a", Target: "bob@example.com",
	})

	// The callee is told the call is over, but it was answered, not missed.
	assert.Equal(t, 1, bobConn.countKind(proto.KindCancelCall))
	assert.Equal(t, 0, bobConn.countKind(proto.KindMissedCall))
	assert.False(t, h.ctl.Rooms.Exists("room-1-a"))
	assert.Equal(t, domain.StatusOnline, h.ctl.Presence.Status("bob@example.com"))
}

func TestDescriptorForwardingTagsSenderAndSkipsSender(t *testing.T) {
	h := newHarness()
	alice, aliceConn := h.connect(t, "s-alice", "alice@example.com")
	bob, bobConn := h.connect(t, "s-bob", "bob@example.com")

	send(t, h.ctl, alice, proto.JoinRoom{Type: proto.KindJoinRoom, RoomID: "room-1-a"})
	send(t, h.ctl, bob, proto.JoinRoom{Type: proto.KindJoinRoom, RoomID: "room-1-a"})

	send(t, h.ctl, alice, proto.Descriptor{
		Type: proto.KindOffer, RoomID: "room-1-a", SDP: "v=0 fake-offer",
	})

	var offer proto.Descriptor
	bobConn.last(t, proto.KindOffer, &offer)
	assert.Equal(t, "v=0 fake-offer", offer.SDP)
	assert.Equal(t, "s-alice", offer.Sender)
	assert.Equal(t, 0, aliceConn.countKind(proto.KindOffer))
}

func TestCandidateToDeadRoomIsDropped(t *testing.T) {
	h := newHarness()
	alice, aliceConn := h.connect(t, "s-alice", "alice@example.com")

	before := len(aliceConn.kinds(t))
	send(t, h.ctl, alice, proto.ICECandidate{
		Type: proto.KindICECandidate, RoomID: "room-gone", Candidate: "candidate:1",
	})
	assert.Len(t, aliceConn.kinds(t), before)
}

func TestCallStartedBroadcastsStatusOnce(t *testing.T) {
	h := newHarness()
	alice, _ := h.connect(t, "s-alice", "alice@example.com")
	bob, _ := h.connect(t, "s-bob", "bob@example.com")
	_, carolConn := h.connect(t, "s-carol", "carol@example.com")

	send(t, h.ctl, alice, proto.JoinRoom{Type: proto.KindJoinRoom, RoomID: "room-1-a"})
	send(t, h.ctl, bob, proto.JoinRoom{Type: proto.KindJoinRoom, RoomID: "room-1-a"})

	// Both sides announce; each member's transition must broadcast once.
	send(t, h.ctl, alice, proto.CallStarted{Type: proto.KindCallStarted, RoomID: "room-1-a"})
	send(t, h.ctl, bob, proto.CallStarted{Type: proto.KindCallStarted, RoomID: "room-1-a"})

	assert.Equal(t, 2, carolConn.countKind(proto.KindCallStatusChanged))
	assert.Equal(t, domain.StatusInCall, h.ctl.Presence.Status("alice@example.com"))
	assert.Equal(t, domain.StatusInCall, h.ctl.Presence.Status("bob@example.com"))
}

func TestDisconnectMidCallEndsItForTheSurvivor(t *testing.T) {
	h := newHarness()
	alice, _ := h.connect(t, "s-alice", "alice@example.com")
	bob, bobConn := h.connect(t, "s-bob", "bob@example.com")

	send(t, h.ctl, alice, proto.JoinRoom{Type: proto.KindJoinRoom, RoomID: "room-1-a"})
	send(t, h.ctl, bob, proto.JoinRoom{Type: proto.KindJoinRoom, RoomID: "room-1-a"})
	send(t, h.ctl, alice, proto.CallStarted{Type: proto.KindCallStarted, RoomID: "room-1-a"})

	h.ctl.onDisconnect(alice)

	assert.Equal(t, 1, bobConn.countKind(proto.KindCallEnded))
	assert.Equal(t, 1, bobConn.countKind(proto.KindIdentityOffline))
	assert.False(t, h.ctl.Rooms.Exists("room-1-a"))
	assert.Equal(t, domain.StatusOffline, h.ctl.Presence.Status("alice@example.com"))
	assert.Equal(t, domain.StatusOnline, h.ctl.Presence.Status("bob@example.com"))

	// The disconnect already ran; a second close of the same session does
	// nothing.
	h.ctl.onDisconnect(alice)
	assert.Equal(t, 1, bobConn.countKind(proto.KindCallEnded))
}

func TestStaleDisconnectKeepsSupersedingSession(t *testing.T) {
	h := newHarness()
	old, _ := h.connect(t, "s-old", "alice@example.com")
	_, bobConn := h.connect(t, "s-bob", "bob@example.com")
	h.connect(t, "s-new", "alice@example.com")

	offlineBefore := bobConn.countKind(proto.KindIdentityOffline)
	h.ctl.onDisconnect(old)

	// No offline event: the identity is still reachable via the new session.
	assert.Equal(t, offlineBefore, bobConn.countKind(proto.KindIdentityOffline))
	got, ok := h.ctl.Presence.Lookup("alice@example.com")
	require.True(t, ok)
	assert.Equal(t, core.SessionID("s-new"), got.ID())
}

func TestOnlineSnapshotOnConnect(t *testing.T) {
	h := newHarness()
	h.connect(t, "s-alice", "alice@example.com")
	_, bobConn := h.connect(t, "s-bob", "bob@example.com")

	var snap proto.OnlineUsers
	bobConn.last(t, proto.KindOnlineUsers, &snap)
	assert.ElementsMatch(t,
		[]domain.Identity{"alice@example.com", "bob@example.com"}, snap.Online)
	assert.Empty(t, snap.InCall)
}

func TestInviteRateLimit(t *testing.T) {
	h := newHarness()
	h.ctl.Invites = NewInviteRateLimiter(2, time.Minute)
	alice, _ := h.connect(t, "s-alice", "alice@example.com")
	_, bobConn := h.connect(t, "s-bob", "bob@example.com")

	for i := 0; i < 5; i++ {
		send(t, h.ctl, alice, proto.CallInvite{
			Type: proto.KindCallInvite, RoomID: "room-1-a", Target: "bob@example.com",
		})
	}
	assert.Equal(t, 2, bobConn.countKind(proto.KindIncomingCall))
}

func TestPingPong(t *testing.T) {
	h := newHarness()
	alice, aliceConn := h.connect(t, "s-alice", "alice@example.com")
	h.ctl.HandleMessage(alice, []byte(`{"type":"ping"}`))
	assert.Equal(t, 1, aliceConn.countKind(proto.KindPong))
}

func TestUnknownKindIgnored(t *testing.T) {
	h := newHarness()
	alice, aliceConn := h.connect(t, "s-alice", "alice@example.com")
	before := len(aliceConn.kinds(t))
	h.ctl.HandleMessage(alice, []byte(`{"type":"teleport"}`))
	h.ctl.HandleMessage(alice, []byte(`not json`))
	assert.Len(t, aliceConn.kinds(t), before)
}
