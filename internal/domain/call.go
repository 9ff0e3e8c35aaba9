package domain

import "time"

// CallStatus is the presence annotation broadcast for an identity.
// InCall layers on top of Online: it is set the moment a call goes live
// and must be cleared whenever the owning room is destroyed.
type CallStatus string

const (
	StatusOffline CallStatus = "offline"
	StatusOnline  CallStatus = "online"
	StatusInCall  CallStatus = "inCall"
)

// MissedCall records a call attempt that never reached the local user.
// One record per caller; a newer attempt overwrites the previous one.
type MissedCall struct {
	Caller     Identity  `json:"caller"`
	CallerName string    `json:"callerName"`
	At         time.Time `json:"at"`
}
