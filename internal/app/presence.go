package app

import (
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/cazapp/famicall/internal/core"
	"github.com/cazapp/famicall/internal/domain"
)

const presenceShards = 32

// presenceEntry pairs the addressable session with its derived call flag.
type presenceEntry struct {
	sess   core.Session
	inCall bool
}

type presenceShard struct {
	mu      sync.RWMutex
	entries map[domain.Identity]*presenceEntry
}

// Presence is the process-wide directory mapping identity to its active
// transport session. Shards keep unrelated identities independent; every
// mutation for one identity is serialized by its shard lock.
type Presence struct {
	shards [presenceShards]presenceShard
}

func NewPresence() *Presence {
	p := &Presence{}
	for i := range p.shards {
		p.shards[i].entries = make(map[domain.Identity]*presenceEntry)
	}
	return p
}

func (p *Presence) shard(id domain.Identity) *presenceShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &p.shards[h.Sum32()%presenceShards]
}

// Register makes sess the addressable session for its identity. An existing
// session for the same identity is superseded, not closed: closing it could
// disrupt an in-flight call on the old device.
func (p *Presence) Register(sess core.Session) (superseded bool) {
	id := sess.Identity()
	s := p.shard(id)
	s.mu.Lock()
	_, superseded = s.entries[id]
	s.entries[id] = &presenceEntry{sess: sess}
	s.mu.Unlock()
	log.Info().Str("module", "app.presence").Str("identity", string(id)).
		Bool("superseded", superseded).Msg("registered")
	return superseded
}

// Deregister removes the mapping for sess's identity, but only if the entry
// still points at that exact session. The guard keeps a stale disconnect from
// tearing down a newer session for the same identity after a reconnect.
func (p *Presence) Deregister(sess core.Session) bool {
	id := sess.Identity()
	s := p.shard(id)
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.sess != sess {
		s.mu.Unlock()
		return false
	}
	delete(s.entries, id)
	s.mu.Unlock()
	log.Info().Str("module", "app.presence").Str("identity", string(id)).Msg("deregistered")
	return true
}

func (p *Presence) Lookup(id domain.Identity) (core.Session, bool) {
	s := p.shard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[id]; ok {
		return e.sess, true
	}
	return nil, false
}

// SetInCall flips the inCall annotation; reports whether the flag actually
// changed so callers broadcast each status transition exactly once.
func (p *Presence) SetInCall(id domain.Identity, inCall bool) (changed bool) {
	s := p.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.inCall == inCall {
		return false
	}
	e.inCall = inCall
	return true
}

func (p *Presence) Status(id domain.Identity) domain.CallStatus {
	s := p.shard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	switch {
	case !ok:
		return domain.StatusOffline
	case e.inCall:
		return domain.StatusInCall
	default:
		return domain.StatusOnline
	}
}

// Snapshot returns the online set and the subset currently in a call.
func (p *Presence) Snapshot() (online, inCall []domain.Identity) {
	for i := range p.shards {
		s := &p.shards[i]
		s.mu.RLock()
		for id, e := range s.entries {
			online = append(online, id)
			if e.inCall {
				inCall = append(inCall, id)
			}
		}
		s.mu.RUnlock()
	}
	return online, inCall
}

// Broadcast fans a frame out to every connected session except the one named.
// Delivery is fire-and-forget: a slow consumer only loses its own frames.
func (p *Presence) Broadcast(data core.Frame, except core.SessionID) (sent int) {
	for i := range p.shards {
		s := &p.shards[i]
		s.mu.RLock()
		sessions := make([]core.Session, 0, len(s.entries))
		for _, e := range s.entries {
			sessions = append(sessions, e.sess)
		}
		s.mu.RUnlock()
		for _, sess := range sessions {
			if sess.ID() == except {
				continue
			}
			if err := sess.Signal().TrySend(data); err == nil {
				sent++
			}
		}
	}
	return sent
}
