// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxIdentityLen    = 254
	MaxDisplayNameLen = 64
)

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
	ErrNameTooLong     = errors.New("display name too long")
)

// Identity is the opaque unique name of a user (an email in practice).
// It is supplied by the auth collaborator and never minted here.
type Identity string

// User pairs an identity with the display name shown to peers.
type User struct {
	Identity Identity `json:"identity"`
	Name     string   `json:"name"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(identity Identity, name string) (*User, error) {
	if identity == "" {
		return nil, ErrIdentityEmpty
	}
	if len(identity) > MaxIdentityLen {
		return nil, ErrIdentityTooLong
	}
	if len(name) > MaxDisplayNameLen {
		return nil, ErrNameTooLong
	}
	if name == "" {
		name = string(identity)
	}
	return &User{Identity: identity, Name: name}, nil
}
