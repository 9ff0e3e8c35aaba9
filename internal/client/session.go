// Package client implements the user-side half of the signaling protocol:
// a single call session state machine, its negotiation peer, and the
// transport that connects both to the relay. The UI layer subscribes to
// Events and renders; it never touches the state machine's internals.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/cazapp/famicall/internal/domain"
	"github.com/cazapp/famicall/internal/proto"
)

type State string

const (
	StateIdle       State = "idle"
	StateDialing    State = "dialing"
	StateRinging    State = "ringing"
	StateConnecting State = "connecting"
	StateActive     State = "active"
)

type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

var (
	ErrBusy      = errors.New("another call is already in progress")
	ErrNoRinging = errors.New("no call is ringing")
)

// MissedCallStore is the slice of the ledger the session writes to.
type MissedCallStore interface {
	Record(domain.MissedCall) error
	Clear(domain.Identity) error
}

// Event is what the UI layer consumes. Kind selects which fields are set.
type Event struct {
	Kind     string
	State    State
	RoomID   domain.RoomID
	Peer     domain.Identity
	PeerName string
	InCall   bool
	Err      error
}

const (
	EventState        = "state"
	EventIncomingCall = "incoming-call"
	EventMissedCall   = "missed-call"
	EventUnavailable  = "unavailable"
	EventPeerOnline   = "peer-online"
	EventPeerOffline  = "peer-offline"
	EventPeerStatus   = "peer-status"
	EventRemoteTrack  = "remote-track"
)

// Session drives at most one call at a time through its lifecycle. All
// transitions pass through the mutex; asynchronous completions (media
// acquisition, pion callbacks) are fenced by an epoch so a completion from
// a torn-down call can never touch its successor.
type Session struct {
	self    *domain.User
	tr      sender
	media   MediaProvider
	store   MissedCallStore
	stun    []string
	logger  zerolog.Logger
	newPeer peerFactory

	events chan Event

	epoch atomic.Int64

	mu          sync.Mutex
	state       State
	role        Role
	roomID      domain.RoomID
	peerID      domain.Identity
	peerName    string
	neg         negotiator
	tracks      []webrtc.TrackLocal
	localReady  bool
	remoteReady bool
	offerSent   bool
	remoteDesc  bool
	pendingICE  []webrtc.ICECandidateInit
	cancelSetup context.CancelFunc
}

func NewSession(self *domain.User, tr *Transport, media MediaProvider, store MissedCallStore, stun []string, logger zerolog.Logger) *Session {
	return newSession(self, tr, media, store, stun, logger)
}

func newSession(self *domain.User, tr sender, media MediaProvider, store MissedCallStore, stun []string, logger zerolog.Logger) *Session {
	return &Session{
		self:    self,
		tr:      tr,
		media:   media,
		store:   store,
		stun:    stun,
		logger:  logger,
		newPeer: newPeer,
		events:  make(chan Event, 16),
		state:   StateIdle,
	}
}

// Events delivers state changes and notifications to the UI. Fire-and-forget:
// a UI that stops draining only loses its own events.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run consumes transport frames until the context ends or the connection
// drops. A dropped transport is this side's own disconnect: tear down
// locally without notifying anyone, since the relay's cleanup is already
// telling the peer. Context cancellation is an unmount and hangs up.
func (s *Session) Run(ctx context.Context, frames <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			// Unmount is an explicit hangup: the transport may still be
			// writable, so the peer gets a best-effort notification.
			_ = s.HangUp()
			return
		case data, ok := <-frames:
			if !ok {
				s.teardown("transport lost")
				return
			}
			s.HandleFrame(data)
		}
	}
}

// Place starts an outgoing call. Rejected locally, with nothing sent to the
// server, when any call is already in progress.
func (s *Session) Place(ctx context.Context, target domain.Identity, targetName string) (domain.RoomID, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return "", ErrBusy
	}
	roomID := domain.NewRoomID()
	epoch := s.epoch.Add(1)
	setupCtx, cancel := context.WithCancel(ctx)
	s.state = StateDialing
	s.role = RoleCaller
	s.roomID = roomID
	s.peerID = target
	s.peerName = targetName
	s.cancelSetup = cancel
	s.mu.Unlock()

	s.logger.Info().Str("module", "client.session").Str("room", string(roomID)).
		Str("target", string(target)).Msg("placing call")
	s.emit(Event{Kind: EventState, State: StateDialing, RoomID: roomID, Peer: target, PeerName: targetName})

	if err := s.tr.Send(proto.CallInvite{
		Type:       proto.KindCallInvite,
		RoomID:     roomID,
		Caller:     s.self.Identity,
		CallerName: s.self.Name,
		Target:     target,
	}); err != nil {
		s.teardown("invite send failed")
		return "", err
	}
	_ = s.tr.Send(proto.JoinRoom{Type: proto.KindJoinRoom, RoomID: roomID})

	// The caller prepares its own side in parallel; the offer itself waits
	// for the callee's ready.
	go s.setupLocal(setupCtx, epoch, roomID)
	return roomID, nil
}

// Accept answers the currently ringing call: join the room, acquire media,
// and emit ready once the negotiation object exists.
func (s *Session) Accept(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRinging {
		s.mu.Unlock()
		return ErrNoRinging
	}
	epoch := s.epoch.Add(1)
	setupCtx, cancel := context.WithCancel(ctx)
	s.state = StateConnecting
	s.cancelSetup = cancel
	roomID := s.roomID
	peer, peerName := s.peerID, s.peerName
	s.mu.Unlock()

	s.emit(Event{Kind: EventState, State: StateConnecting, RoomID: roomID, Peer: peer, PeerName: peerName})
	_ = s.tr.Send(proto.JoinRoom{Type: proto.KindJoinRoom, RoomID: roomID})
	go s.setupLocal(setupCtx, epoch, roomID)
	return nil
}

// Decline rejects the ringing call without ever joining the room.
// Idempotent: declining twice, or after the caller already cancelled, is a
// no-op.
func (s *Session) Decline() error {
	s.mu.Lock()
	if s.state != StateRinging {
		s.mu.Unlock()
		return nil
	}
	roomID, caller := s.roomID, s.peerID
	s.resetLocked()
	s.mu.Unlock()

	_ = s.tr.Send(proto.CallDeclined{Type: proto.KindCallDeclined, RoomID: roomID, Target: caller})
	s.emit(Event{Kind: EventState, State: StateIdle})
	return nil
}

// HangUp ends the call from any state: cancel-call while setup never
// completed, call-ended once it did, decline while ringing. Local teardown
// happens even when the notification cannot be delivered. Idempotent.
func (s *Session) HangUp() error {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return nil
	}
	s.notifyPeerLocked()
	s.resetLocked()
	s.mu.Unlock()
	s.emit(Event{Kind: EventState, State: StateIdle})
	return nil
}

// Close releases the session on page teardown. Equivalent to an explicit
// hangup: peers are notified best-effort before resources are dropped.
func (s *Session) Close() {
	_ = s.HangUp()
}

// notifyPeerLocked sends the teardown signal matching the current state.
func (s *Session) notifyPeerLocked() {
	switch {
	case s.state == StateRinging:
		_ = s.tr.Send(proto.CallDeclined{Type: proto.KindCallDeclined, RoomID: s.roomID, Target: s.peerID})
	case s.state == StateActive, s.state == StateConnecting && s.role == RoleCallee:
		_ = s.tr.Send(proto.CallEnded{Type: proto.KindCallEnded, RoomID: s.roomID})
	default:
		_ = s.tr.Send(proto.CancelCall{Type: proto.KindCancelCall, RoomID: s.roomID, Target: s.peerID})
	}
}

// resetLocked tears down local resources and returns to Idle. Bumping the
// epoch first orphans every in-flight async completion for the old call.
func (s *Session) resetLocked() {
	s.epoch.Add(1)
	if s.cancelSetup != nil {
		s.cancelSetup()
		s.cancelSetup = nil
	}
	if s.neg != nil {
		s.neg.Close()
		s.neg = nil
	}
	s.media.Release()
	s.tracks = nil
	s.state = StateIdle
	s.role = ""
	s.roomID = ""
	s.peerID = ""
	s.peerName = ""
	s.localReady = false
	s.remoteReady = false
	s.offerSent = false
	s.remoteDesc = false
	s.pendingICE = nil
}

func (s *Session) teardown(reason string) {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.logger.Info().Str("module", "client.session").Str("reason", reason).Msg("teardown")
	s.resetLocked()
	s.mu.Unlock()
	s.emit(Event{Kind: EventState, State: StateIdle})
}

// setupLocal acquires media and builds the negotiation peer off the lock.
// The epoch fences the result: if the call went away meanwhile, everything
// acquired here is released again.
func (s *Session) setupLocal(ctx context.Context, epoch int64, roomID domain.RoomID) {
	tracks, err := s.media.Acquire(ctx)
	if err != nil {
		s.failSetup(epoch, err)
		return
	}

	cb := peerCallbacks{
		OnICECandidate: func(ci webrtc.ICECandidateInit) {
			if s.epoch.Load() != epoch {
				return
			}
			msg := proto.ICECandidate{
				Type:      proto.KindICECandidate,
				RoomID:    roomID,
				Candidate: ci.Candidate,
			}
			if ci.SDPMid != nil {
				msg.SDPMid = *ci.SDPMid
			}
			if ci.SDPMLineIndex != nil {
				idx := *ci.SDPMLineIndex
				msg.SDPMLineIndex = &idx
			}
			_ = s.tr.Send(msg)
		},
		OnRemoteTrack: func(track *webrtc.TrackRemote) {
			s.onRemoteMedia(epoch)
		},
		OnClosed: func() {
			s.onPeerClosed(epoch)
		},
	}

	neg, err := s.newPeer(s.stun, cb, s.logger)
	if err != nil {
		s.media.Release()
		s.failSetup(epoch, err)
		return
	}
	for _, track := range tracks {
		if err := neg.AddTrack(track); err != nil {
			neg.Close()
			s.media.Release()
			s.failSetup(epoch, err)
			return
		}
	}

	s.mu.Lock()
	if s.epoch.Load() != epoch {
		s.mu.Unlock()
		neg.Close()
		return
	}
	s.neg = neg
	s.tracks = tracks
	s.localReady = true
	role := s.role
	s.mu.Unlock()

	if role == RoleCallee {
		_ = s.tr.Send(proto.Ready{Type: proto.KindReady, RoomID: roomID})
		return
	}
	s.maybeOffer(epoch)
}

// failSetup handles a media or negotiation failure during call setup:
// notify the peer exactly as a hangup would, then resolve to Idle.
func (s *Session) failSetup(epoch int64, err error) {
	s.mu.Lock()
	if s.epoch.Load() != epoch || s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.logger.Error().Err(err).Str("module", "client.session").Msg("local setup failed")
	s.notifyPeerLocked()
	s.resetLocked()
	s.mu.Unlock()
	s.emit(Event{Kind: EventState, State: StateIdle, Err: err})
}

// maybeOffer enforces the readiness gate: the offer is created only when the
// caller's own setup finished AND the callee has signalled ready. Whichever
// arrives last triggers it, and it fires once.
func (s *Session) maybeOffer(epoch int64) {
	s.mu.Lock()
	if s.epoch.Load() != epoch ||
		s.role != RoleCaller || s.neg == nil ||
		!s.localReady || !s.remoteReady || s.offerSent {
		s.mu.Unlock()
		return
	}
	s.offerSent = true
	neg := s.neg
	roomID := s.roomID
	s.mu.Unlock()

	offer, err := neg.CreateOffer()
	if err != nil {
		s.failSetup(epoch, err)
		return
	}
	_ = s.tr.Send(proto.Descriptor{Type: proto.KindOffer, RoomID: roomID, SDP: offer.SDP})
}

// onRemoteMedia runs on the first remote track: each side reaches Active
// independently the moment it has live media, and announces it so presence
// reflects the call as soon as either side does.
func (s *Session) onRemoteMedia(epoch int64) {
	s.mu.Lock()
	if s.epoch.Load() != epoch {
		s.mu.Unlock()
		return
	}
	if s.state != StateConnecting && s.state != StateDialing {
		s.mu.Unlock()
		return
	}
	s.state = StateActive
	roomID := s.roomID
	peer := s.peerID
	peerName := s.peerName
	s.mu.Unlock()

	_ = s.tr.Send(proto.CallStarted{Type: proto.KindCallStarted, RoomID: roomID})
	if s.store != nil {
		// Reaching the peer acknowledges any missed call from them.
		_ = s.store.Clear(peer)
	}
	s.emit(Event{Kind: EventRemoteTrack, RoomID: roomID, Peer: peer})
	s.emit(Event{Kind: EventState, State: StateActive, RoomID: roomID, Peer: peer, PeerName: peerName})
}

// onPeerClosed fires when the peer connection dies underneath an ongoing
// call. Treated exactly like a hangup.
func (s *Session) onPeerClosed(epoch int64) {
	s.mu.Lock()
	if s.epoch.Load() != epoch || s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.notifyPeerLocked()
	s.resetLocked()
	s.mu.Unlock()
	s.emit(Event{Kind: EventState, State: StateIdle})
}

// ShareScreen swaps the outgoing video track for a capture track and
// renegotiates. StopShare restores the original camera track the same way.
func (s *Session) ShareScreen(track webrtc.TrackLocal) error {
	return s.swapVideo(track)
}

func (s *Session) StopShare() error {
	s.mu.Lock()
	var camera webrtc.TrackLocal
	for _, t := range s.tracks {
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			camera = t
			break
		}
	}
	s.mu.Unlock()
	if camera == nil {
		return errors.New("no camera track to restore")
	}
	return s.swapVideo(camera)
}

func (s *Session) swapVideo(track webrtc.TrackLocal) error {
	s.mu.Lock()
	if s.state != StateActive || s.neg == nil {
		s.mu.Unlock()
		return errors.New("no active call")
	}
	neg := s.neg
	epoch := s.epoch.Load()
	roomID := s.roomID
	s.mu.Unlock()

	if err := neg.ReplaceTrack(webrtc.RTPCodecTypeVideo, track); err != nil {
		return err
	}
	// The swapped track changes the media description, so the peer needs a
	// fresh offer.
	return s.renegotiate(neg, epoch, roomID)
}

// SetMuted stops or resumes the outgoing track of a kind without touching
// the negotiated session.
func (s *Session) SetMuted(kind webrtc.RTPCodecType, muted bool) error {
	s.mu.Lock()
	if s.neg == nil {
		s.mu.Unlock()
		return errors.New("no active call")
	}
	neg := s.neg
	var original webrtc.TrackLocal
	for _, t := range s.tracks {
		if t.Kind() == kind {
			original = t
			break
		}
	}
	s.mu.Unlock()

	if muted {
		return neg.ReplaceTrack(kind, nil)
	}
	if original == nil {
		return fmt.Errorf("no %s track to restore", kind)
	}
	return neg.ReplaceTrack(kind, original)
}

func (s *Session) renegotiate(neg negotiator, epoch int64, roomID domain.RoomID) error {
	if s.epoch.Load() != epoch {
		return errors.New("call ended")
	}
	offer, err := neg.CreateOffer()
	if err != nil {
		return err
	}
	return s.tr.Send(proto.Descriptor{Type: proto.KindOffer, RoomID: roomID, SDP: offer.SDP})
}

func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
		s.logger.Warn().Str("module", "client.session").Str("kind", e.Kind).Msg("event dropped")
	}
}

// HandleFrame dispatches one inbound signaling message. Exported so tests
// drive the machine without a live transport.
func (s *Session) HandleFrame(data []byte) {
	kind, err := proto.Kind(data)
	if err != nil {
		s.logger.Error().Err(err).Str("module", "client.session").Msg("bad frame")
		return
	}

	switch kind {
	case proto.KindIncomingCall:
		s.handleIncomingCall(data)
	case proto.KindReady:
		s.handleReady(data)
	case proto.KindOffer:
		s.handleOffer(data)
	case proto.KindAnswer:
		s.handleAnswer(data)
	case proto.KindICECandidate:
		s.handleCandidate(data)
	case proto.KindCallDeclined:
		s.handleRemoteEnd(data, "declined")
	case proto.KindCancelCall:
		s.handleRemoteEnd(data, "cancelled")
	case proto.KindCallEnded:
		s.handleRemoteEnd(data, "ended")
	case proto.KindUnavailable:
		s.handleUnavailable(data)
	case proto.KindMissedCall:
		s.handleMissedCall(data)
	case proto.KindIdentityOnline:
		s.handlePresence(data, EventPeerOnline)
	case proto.KindIdentityOffline:
		s.handlePresence(data, EventPeerOffline)
	case proto.KindCallStatusChanged:
		s.handleStatusChanged(data)
	case proto.KindOnlineUsers:
		// Bulk snapshot is consumed by the UI's presence view directly.
	case proto.KindPong:
		// Keepalive reply, nothing to do.
	default:
		s.logger.Warn().Str("module", "client.session").Str("type", kind).Msg("unknown frame")
	}
}

func (s *Session) handleIncomingCall(data []byte) {
	var p proto.IncomingCall
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	if s.state != StateIdle {
		// Already on a call: decline automatically, the caller sees busy.
		s.mu.Unlock()
		_ = s.tr.Send(proto.CallDeclined{Type: proto.KindCallDeclined, RoomID: p.RoomID, Target: p.Caller})
		return
	}
	s.epoch.Add(1)
	s.state = StateRinging
	s.role = RoleCallee
	s.roomID = p.RoomID
	s.peerID = p.Caller
	s.peerName = p.CallerName
	s.mu.Unlock()

	s.emit(Event{Kind: EventIncomingCall, RoomID: p.RoomID, Peer: p.Caller, PeerName: p.CallerName})
	s.emit(Event{Kind: EventState, State: StateRinging, RoomID: p.RoomID, Peer: p.Caller, PeerName: p.CallerName})
}

func (s *Session) handleReady(data []byte) {
	var p proto.Ready
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	if s.role != RoleCaller || s.roomID != p.RoomID || s.state != StateDialing {
		s.mu.Unlock()
		return
	}
	s.remoteReady = true
	s.state = StateConnecting
	epoch := s.epoch.Load()
	peer, peerName := s.peerID, s.peerName
	s.mu.Unlock()

	s.emit(Event{Kind: EventState, State: StateConnecting, RoomID: p.RoomID, Peer: peer, PeerName: peerName})
	s.maybeOffer(epoch)
}

func (s *Session) handleOffer(data []byte) {
	var p proto.Descriptor
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	if s.neg == nil || s.roomID != p.RoomID {
		s.mu.Unlock()
		return
	}
	neg := s.neg
	epoch := s.epoch.Load()
	s.remoteDesc = true
	pending := s.pendingICE
	s.pendingICE = nil
	s.mu.Unlock()

	answer, err := neg.ApplyOfferAndAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer, SDP: p.SDP,
	})
	if err != nil {
		s.failSetup(epoch, err)
		return
	}
	for _, ci := range pending {
		_ = neg.AddICECandidate(ci)
	}
	_ = s.tr.Send(proto.Descriptor{Type: proto.KindAnswer, RoomID: p.RoomID, SDP: answer.SDP})
}

func (s *Session) handleAnswer(data []byte) {
	var p proto.Descriptor
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	if s.neg == nil || s.roomID != p.RoomID {
		s.mu.Unlock()
		return
	}
	neg := s.neg
	epoch := s.epoch.Load()
	s.remoteDesc = true
	pending := s.pendingICE
	s.pendingICE = nil
	s.mu.Unlock()

	if err := neg.ApplyAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer, SDP: p.SDP,
	}); err != nil {
		s.failSetup(epoch, err)
		return
	}
	for _, ci := range pending {
		_ = neg.AddICECandidate(ci)
	}
}

// handleCandidate applies remote candidates as they arrive, in any order.
// Candidates that beat the remote description are buffered and flushed once
// it lands.
func (s *Session) handleCandidate(data []byte) {
	var p proto.ICECandidate
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	ci := webrtc.ICECandidateInit{Candidate: p.Candidate}
	if p.SDPMid != "" {
		mid := p.SDPMid
		ci.SDPMid = &mid
	}
	if p.SDPMLineIndex != nil {
		idx := *p.SDPMLineIndex
		ci.SDPMLineIndex = &idx
	}

	s.mu.Lock()
	if s.roomID != p.RoomID {
		s.mu.Unlock()
		return
	}
	if s.neg == nil || !s.remoteDesc {
		s.pendingICE = append(s.pendingICE, ci)
		s.mu.Unlock()
		return
	}
	neg := s.neg
	s.mu.Unlock()

	if err := neg.AddICECandidate(ci); err != nil {
		s.logger.Warn().Err(err).Str("module", "client.session").Msg("add ice candidate")
	}
}

// handleRemoteEnd covers declined, cancelled and ended alike: whatever the
// peer did, this side resolves to Idle with only local teardown.
func (s *Session) handleRemoteEnd(data []byte, reason string) {
	var p proto.CallEnded
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	if s.state == StateIdle || s.roomID != p.RoomID {
		s.mu.Unlock()
		return
	}
	s.logger.Info().Str("module", "client.session").Str("reason", reason).
		Str("room", string(p.RoomID)).Msg("remote end")
	s.resetLocked()
	s.mu.Unlock()
	s.emit(Event{Kind: EventState, State: StateIdle})
}

func (s *Session) handleUnavailable(data []byte) {
	var p proto.Unavailable
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	name := s.peerName
	roomID := s.roomID
	dialing := s.state == StateDialing && s.peerID == p.Target
	if dialing {
		s.resetLocked()
	}
	s.mu.Unlock()

	if dialing {
		// Place already joined the room; withdraw it so the one-sided room
		// does not outlive the failed attempt.
		_ = s.tr.Send(proto.CancelCall{Type: proto.KindCancelCall, RoomID: roomID, Target: p.Target})
		if s.store != nil {
			_ = s.store.Record(domain.MissedCall{Caller: p.Target, CallerName: name, At: time.Now()})
		}
		s.emit(Event{Kind: EventUnavailable, Peer: p.Target, PeerName: name})
		s.emit(Event{Kind: EventState, State: StateIdle})
	}
}

func (s *Session) handleMissedCall(data []byte) {
	var p proto.MissedCall
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if s.store != nil {
		_ = s.store.Record(domain.MissedCall{
			Caller:     p.Caller,
			CallerName: p.CallerName,
			At:         time.UnixMilli(p.At),
		})
	}
	s.emit(Event{Kind: EventMissedCall, Peer: p.Caller, PeerName: p.CallerName})
}

func (s *Session) handlePresence(data []byte, kind string) {
	var p proto.IdentityEvent
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.emit(Event{Kind: kind, Peer: p.Identity})
}

func (s *Session) handleStatusChanged(data []byte) {
	var p proto.CallStatusChanged
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.emit(Event{Kind: EventPeerStatus, Peer: p.Identity, InCall: p.InCall})
}
