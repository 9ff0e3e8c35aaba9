package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/cazapp/famicall/internal/core"
	"github.com/cazapp/famicall/internal/domain"
	"github.com/cazapp/famicall/internal/proto"
)

// handleCallInvite resolves the callee's session and rings it. An offline
// target is reported back to the sender only; the invite is never queued.
func (ctl *Controller) handleCallInvite(sess core.Session, data []byte) {
	var p proto.CallInvite
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad call-invite payload")
		return
	}
	if ctl.Invites != nil && !ctl.Invites.Allow(sess.Identity()) {
		log.Warn().Str("module", "signal").Str("identity", string(sess.Identity())).
			Msg("invite rate limit exceeded")
		return
	}

	target, ok := ctl.Presence.Lookup(p.Target)
	if !ok {
		ctl.sendJSON(sess.Signal(), proto.Unavailable{
			Type:   proto.KindUnavailable,
			Target: p.Target,
		})
		return
	}

	// The caller's identity comes from the session, never from the payload.
	log.Info().Str("module", "signal").Str("room", string(p.RoomID)).
		Str("caller", string(sess.Identity())).Str("target", string(p.Target)).Msg("call invite")
	ctl.sendJSON(target.Signal(), proto.IncomingCall{
		Type:       proto.KindIncomingCall,
		RoomID:     p.RoomID,
		Caller:     sess.Identity(),
		CallerName: sess.User().Name,
	})
}

// handleCallDeclined goes to the caller's session directly, looked up by
// identity: the callee declined without ever joining the room.
func (ctl *Controller) handleCallDeclined(sess core.Session, data []byte) {
	var p proto.CallDeclined
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad call-declined payload")
		return
	}
	caller, ok := ctl.Presence.Lookup(p.Target)
	if !ok {
		// Caller already gone; its disconnect cleanup took the room with it.
		return
	}
	ctl.sendJSON(caller.Signal(), proto.CallDeclined{
		Type:   proto.KindCallDeclined,
		RoomID: p.RoomID,
		Target: p.Target,
	})
	members := ctl.Rooms.Destroy(p.RoomID)
	ctl.clearInCall(members)
}

// handleCancelCall withdraws a ringing invite and leaves a missed-call
// record at the callee.
func (ctl *Controller) handleCancelCall(sess core.Session, data []byte) {
	var p proto.CancelCall
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad cancel-call payload")
		return
	}
	// Status check precedes the destroy: clearInCall wipes the flag the
	// answered-already case is detected by.
	answered := ctl.Presence.Status(p.Target) == domain.StatusInCall
	members := ctl.Rooms.Destroy(p.RoomID)
	ctl.clearInCall(members)

	callee, ok := ctl.Presence.Lookup(p.Target)
	if !ok {
		ctl.sendJSON(sess.Signal(), proto.Unavailable{
			Type:   proto.KindUnavailable,
			Target: p.Target,
		})
		return
	}
	ctl.sendJSON(callee.Signal(), proto.CancelCall{
		Type:   proto.KindCancelCall,
		RoomID: p.RoomID,
		Target: p.Target,
	})
	if answered {
		// The callee reached the call before the caller withdrew; this is a
		// hangup of an answered call, not a missed one.
		return
	}
	ctl.sendJSON(callee.Signal(), proto.MissedCall{
		Type:       proto.KindMissedCall,
		Caller:     sess.Identity(),
		CallerName: sess.User().Name,
		At:         proto.NowMillis(),
	})
}

// handleCallEnded notifies the rest of the room, then destroys it.
func (ctl *Controller) handleCallEnded(sess core.Session, data []byte) {
	var p proto.CallEnded
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad call-ended payload")
		return
	}
	ctl.sendToRoom(p.RoomID, sess.Identity(), data)
	members := ctl.Rooms.Destroy(p.RoomID)
	ctl.clearInCall(members)
}

// handleCallStarted marks every room member as in a call. Either side may
// announce it; the changed-flag keeps each status transition broadcast once.
func (ctl *Controller) handleCallStarted(sess core.Session, data []byte) {
	var p proto.CallStarted
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad call-started payload")
		return
	}
	for _, id := range ctl.Rooms.Members(p.RoomID) {
		if ctl.Presence.SetInCall(id, true) {
			ctl.broadcastAll(proto.CallStatusChanged{
				Type:     proto.KindCallStatusChanged,
				Identity: id,
				InCall:   true,
			}, "")
		}
	}
}

func (ctl *Controller) clearInCall(ids []domain.Identity) {
	for _, id := range ids {
		if ctl.Presence.SetInCall(id, false) {
			ctl.broadcastAll(proto.CallStatusChanged{
				Type:     proto.KindCallStatusChanged,
				Identity: id,
				InCall:   false,
			}, "")
		}
	}
}
