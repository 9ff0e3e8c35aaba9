package client

import (
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// negotiator is the slice of a peer connection the session state machine
// drives. Narrow on purpose: tests substitute a fake.
type negotiator interface {
	AddTrack(track webrtc.TrackLocal) error
	CreateOffer() (webrtc.SessionDescription, error)
	ApplyOfferAndAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyAnswer(answer webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error
	Close()
}

// peerCallbacks are bound before the connection starts; all fire from pion
// goroutines.
type peerCallbacks struct {
	OnICECandidate func(webrtc.ICECandidateInit)
	OnRemoteTrack  func(track *webrtc.TrackRemote)
	OnClosed       func()
}

type peerFactory func(stun []string, cb peerCallbacks, logger zerolog.Logger) (negotiator, error)

// Peer wraps a pion PeerConnection for one call. It exists from call setup
// until teardown and is never reused across calls.
type Peer struct {
	pc      *webrtc.PeerConnection
	logger  zerolog.Logger
	senders map[webrtc.RTPCodecType]*webrtc.RTPSender
}

func newPeer(stun []string, cb peerCallbacks, logger zerolog.Logger) (negotiator, error) {
	cfg := webrtc.Configuration{}
	if len(stun) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stun}}
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	p := &Peer{
		pc:      pc,
		logger:  logger,
		senders: make(map[webrtc.RTPCodecType]*webrtc.RTPSender),
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		logger.Info().Str("module", "client.peer").Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logger.Info().Str("module", "client.peer").Str("peer_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			if cb.OnClosed != nil {
				cb.OnClosed()
			}
		}
	})
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && cb.OnICECandidate != nil {
			cb.OnICECandidate(cand.ToJSON())
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		logger.Info().Str("module", "client.peer").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).Msg("remote track")
		if cb.OnRemoteTrack != nil {
			cb.OnRemoteTrack(track)
		}
	})

	return p, nil
}

func (p *Peer) AddTrack(track webrtc.TrackLocal) error {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return err
	}
	p.senders[track.Kind()] = sender
	return nil
}

// CreateOffer produces and installs the local description. Candidates
// trickle out through the OnICECandidate callback, so this returns without
// waiting for gathering.
func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (p *Peer) ApplyOfferAndAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (p *Peer) ApplyAnswer(answer webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(answer)
}

func (p *Peer) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(ci)
}

// ReplaceTrack swaps the outgoing track of the given kind in place. A nil
// track stops sending on that sender; used for mute and screen share.
func (p *Peer) ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error {
	sender, ok := p.senders[kind]
	if !ok {
		return fmt.Errorf("no %s sender", kind)
	}
	return sender.ReplaceTrack(track)
}

func (p *Peer) Close() {
	if p.pc != nil {
		if err := p.pc.Close(); err != nil {
			p.logger.Error().Err(err).Str("module", "client.peer").Msg("close error")
		}
	}
}
