package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/cazapp/famicall/internal/core"
	"github.com/cazapp/famicall/internal/domain"
	"github.com/cazapp/famicall/internal/proto"
)

func (ctl *Controller) handleJoinRoom(sess core.Session, data []byte) {
	var p proto.JoinRoom
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join-room payload")
		return
	}
	ctl.Rooms.Join(p.RoomID, sess.Identity())
}

// forwardToRoom relays a room-scoped message verbatim to all other members.
// Used for ready, which carries no sender-specific fields.
func (ctl *Controller) forwardToRoom(sess core.Session, data []byte) {
	var p proto.Ready
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad room payload")
		return
	}
	ctl.sendToRoom(p.RoomID, sess.Identity(), data)
}

// forwardDescriptor relays an offer or answer tagged with the sender's
// session id, so a sender never processes its own echo.
func (ctl *Controller) forwardDescriptor(sess core.Session, data []byte) {
	var p proto.Descriptor
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad descriptor payload")
		return
	}
	p.Sender = string(sess.ID())
	out, err := proto.Marshal(p)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("descriptor marshal")
		return
	}
	ctl.sendToRoom(p.RoomID, sess.Identity(), out)
}

func (ctl *Controller) forwardCandidate(sess core.Session, data []byte) {
	var p proto.ICECandidate
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}
	p.Sender = string(sess.ID())
	out, err := proto.Marshal(p)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("candidate marshal")
		return
	}
	ctl.sendToRoom(p.RoomID, sess.Identity(), out)
}

// sendToRoom fans a frame out to every room member except the sender.
// A registry miss means the room was already torn down; in-flight messages
// racing a teardown are expected, so the frame is dropped without error.
func (ctl *Controller) sendToRoom(roomID domain.RoomID, from domain.Identity, data core.Frame) {
	for _, id := range ctl.Rooms.Members(roomID) {
		if id == from {
			continue
		}
		if peer, ok := ctl.Presence.Lookup(id); ok {
			_ = peer.Signal().TrySend(data)
		}
	}
}
