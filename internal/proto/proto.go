// Package proto defines the signaling wire protocol shared by the server
// relay and the client session. Every message is a JSON object with a "type"
// discriminator; payload shapes are kept flat so both sides can decode them
// without an envelope/payload split.
package proto

import (
	"encoding/json"
	"time"

	"github.com/cazapp/famicall/internal/domain"
)

// Client → server message kinds.
const (
	KindPing         = "ping"
	KindCallInvite   = "call-invite"
	KindJoinRoom     = "join-room"
	KindReady        = "ready"
	KindOffer        = "offer"
	KindAnswer       = "answer"
	KindICECandidate = "ice-candidate"
	KindCallDeclined = "call-declined"
	KindCancelCall   = "cancel-call"
	KindCallEnded    = "call-ended"
	KindCallStarted  = "call-started"
)

// Server → client event kinds.
const (
	KindPong              = "pong"
	KindOnlineUsers       = "online-users-list"
	KindIdentityOnline    = "identity-online"
	KindIdentityOffline   = "identity-offline"
	KindCallStatusChanged = "call-status-changed"
	KindIncomingCall      = "incoming-call"
	KindUnavailable       = "unavailable"
	KindMissedCall        = "missed-call"
)

// Envelope carries only the discriminator; handlers re-decode the full
// payload once they know the kind.
type Envelope struct {
	Type string `json:"type"`
}

type CallInvite struct {
	Type       string          `json:"type"`
	RoomID     domain.RoomID   `json:"roomId"`
	Caller     domain.Identity `json:"caller"`
	CallerName string          `json:"callerName"`
	Target     domain.Identity `json:"target"`
}

type JoinRoom struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type Ready struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

// Descriptor messages (offer/answer) carry the raw SDP plus the sender's
// session id so a sender never processes its own echo.
type Descriptor struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
	SDP    string        `json:"sdp"`
	Sender string        `json:"sender,omitempty"`
}

type ICECandidate struct {
	Type          string        `json:"type"`
	RoomID        domain.RoomID `json:"roomId"`
	Candidate     string        `json:"candidate"`
	SDPMid        string        `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16       `json:"sdpMLineIndex,omitempty"`
	Sender        string        `json:"sender,omitempty"`
}

type CallDeclined struct {
	Type   string          `json:"type"`
	RoomID domain.RoomID   `json:"roomId"`
	Target domain.Identity `json:"target"`
}

type CancelCall struct {
	Type   string          `json:"type"`
	RoomID domain.RoomID   `json:"roomId"`
	Target domain.Identity `json:"target"`
}

type CallEnded struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type CallStarted struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type OnlineUsers struct {
	Type   string            `json:"type"`
	Online []domain.Identity `json:"online"`
	InCall []domain.Identity `json:"inCall,omitempty"`
}

type IdentityEvent struct {
	Type     string          `json:"type"`
	Identity domain.Identity `json:"identity"`
}

type CallStatusChanged struct {
	Type     string          `json:"type"`
	Identity domain.Identity `json:"identity"`
	InCall   bool            `json:"inCall"`
}

type IncomingCall struct {
	Type       string          `json:"type"`
	RoomID     domain.RoomID   `json:"roomId"`
	Caller     domain.Identity `json:"caller"`
	CallerName string          `json:"callerName"`
}

type Unavailable struct {
	Type   string          `json:"type"`
	Target domain.Identity `json:"target"`
}

type MissedCall struct {
	Type       string          `json:"type"`
	Caller     domain.Identity `json:"caller"`
	CallerName string          `json:"callerName"`
	At         int64           `json:"at"`
}

func NowMillis() int64 { return time.Now().UnixMilli() }

// Marshal is a shorthand used by both halves; a message that fails to
// marshal is a programming error, so the error is surfaced, not swallowed.
func Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Kind peeks at the discriminator of a raw message.
func Kind(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}
