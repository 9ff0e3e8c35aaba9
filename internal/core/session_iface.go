package core

import "github.com/cazapp/famicall/internal/domain"

type SessionID string

// Session binds an authenticated identity to its transport endpoint.
// The identity is set once at connect time and never mutated; this is what
// the presence directory stores and the relay fans out to.
type Session interface {
	ID() SessionID
	User() *domain.User
	Identity() domain.Identity
	Signal() SignalConnection
}

type session struct {
	id   SessionID
	user *domain.User
	conn SignalConnection
}

func NewSession(id SessionID, user *domain.User, conn SignalConnection) Session {
	return &session{id: id, user: user, conn: conn}
}

func (s *session) ID() SessionID             { return s.id }
func (s *session) User() *domain.User        { return s.user }
func (s *session) Identity() domain.Identity { return s.user.Identity }
func (s *session) Signal() SignalConnection  { return s.conn }
