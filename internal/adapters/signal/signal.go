// Package signal is the WebSocket signaling relay: it authenticates each
// connection once, registers it in the presence directory, and forwards
// typed call-setup messages between sessions. It never carries media.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cazapp/famicall/internal/app"
	"github.com/cazapp/famicall/internal/core"
	"github.com/cazapp/famicall/internal/domain"
	"github.com/cazapp/famicall/internal/proto"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Presence *app.Presence
	Rooms    *app.Rooms
	Invites  *InviteRateLimiter

	SendBuffer int
	ReadLimit  int64
}

func NewController(presence *app.Presence, rooms *app.Rooms) *Controller {
	return &Controller{
		Presence:   presence,
		Rooms:      rooms,
		Invites:    NewInviteRateLimiter(10, time.Minute),
		SendBuffer: 32,
	}
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades an authenticated request to a WebSocket session.
// The identity arrives via the auth middleware; the connection is refused
// upstream when the token is absent or invalid.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	v, ok := c.Get("user")
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	user := v.(*domain.User)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.SendBuffer),
	}
	sess := core.NewSession(core.SessionID(uuid.NewString()), user, conn)
	log.Info().Str("module", "signal").Str("sid", string(sess.ID())).
		Str("identity", string(user.Identity)).Msg("new WS connection")

	ctl.Presence.Register(sess)
	ctl.announceOnline(sess)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sess, conn)
}

// announceOnline tells everyone else the identity came up and hands the new
// session the current bulk presence snapshot.
func (ctl *Controller) announceOnline(sess core.Session) {
	ctl.broadcastAll(proto.IdentityEvent{
		Type:     proto.KindIdentityOnline,
		Identity: sess.Identity(),
	}, sess.ID())

	online, inCall := ctl.Presence.Snapshot()
	ctl.sendJSON(sess.Signal(), proto.OnlineUsers{
		Type:   proto.KindOnlineUsers,
		Online: online,
		InCall: inCall,
	})
}

// onDisconnect runs exactly once per closed transport. The pointer-guarded
// deregister keeps a stale close from tearing down a superseding session.
func (ctl *Controller) onDisconnect(sess core.Session) {
	if !ctl.Presence.Deregister(sess) {
		return
	}
	ctl.broadcastAll(proto.IdentityEvent{
		Type:     proto.KindIdentityOffline,
		Identity: sess.Identity(),
	}, sess.ID())

	for roomID, rest := range ctl.Rooms.DisconnectCleanup(sess.Identity()) {
		ctl.clearInCall(append(rest, sess.Identity()))
		ended := proto.CallEnded{Type: proto.KindCallEnded, RoomID: roomID}
		for _, id := range rest {
			if peer, ok := ctl.Presence.Lookup(id); ok {
				ctl.sendJSON(peer.Signal(), ended)
			}
		}
	}
}
