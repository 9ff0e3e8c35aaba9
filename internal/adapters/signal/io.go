package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cazapp/famicall/internal/core"
	"github.com/cazapp/famicall/internal/proto"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sess core.Session, c *wsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sess.ID())).Msg("readPump closing")
		ctl.onDisconnect(sess)
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.HandleMessage(sess, data)
		}
	}
}

// HandleMessage dispatches one decoded signaling message from sess. Exported
// so tests can drive the relay without a live WebSocket.
func (ctl *Controller) HandleMessage(sess core.Session, data []byte) {
	kind, err := proto.Kind(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch kind {
	case proto.KindPing:
		ctl.handlePing(sess)
	case proto.KindCallInvite:
		ctl.handleCallInvite(sess, data)
	case proto.KindJoinRoom:
		ctl.handleJoinRoom(sess, data)
	case proto.KindReady:
		ctl.forwardToRoom(sess, data)
	case proto.KindOffer, proto.KindAnswer:
		ctl.forwardDescriptor(sess, data)
	case proto.KindICECandidate:
		ctl.forwardCandidate(sess, data)
	case proto.KindCallDeclined:
		ctl.handleCallDeclined(sess, data)
	case proto.KindCancelCall:
		ctl.handleCancelCall(sess, data)
	case proto.KindCallEnded:
		ctl.handleCallEnded(sess, data)
	case proto.KindCallStarted:
		ctl.handleCallStarted(sess, data)
	default:
		log.Warn().Str("module", "signal").Str("type", kind).Msg("unknown signal")
	}
}

func (ctl *Controller) handlePing(sess core.Session) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: proto.KindPong,
	}
	ctl.sendJSON(sess.Signal(), resp)
}

func (ctl *Controller) sendJSON(c core.SignalConnection, v any) {
	b, err := proto.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) broadcastAll(v any, except core.SessionID) {
	b, err := proto.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	ctl.Presence.Broadcast(b, except)
}
