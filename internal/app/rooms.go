package app

import (
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/cazapp/famicall/internal/domain"
)

const roomShards = 16

type roomShard struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[domain.Identity]struct{}
}

// Rooms is the ephemeral registry of signaling rooms. A room exists exactly
// while a call attempt is alive; it is destroyed on explicit end, cancel, or
// a member's transport disconnect. Lookup misses are expected (in-flight
// messages racing a teardown) and are never errors.
type Rooms struct {
	shards [roomShards]roomShard
}

func NewRooms() *Rooms {
	r := &Rooms{}
	for i := range r.shards {
		r.shards[i].rooms = make(map[domain.RoomID]map[domain.Identity]struct{})
	}
	return r
}

func (r *Rooms) shard(id domain.RoomID) *roomShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &r.shards[h.Sum32()%roomShards]
}

// Join adds identity to the room, creating the room on first join.
func (r *Rooms) Join(roomID domain.RoomID, id domain.Identity) {
	s := r.shard(roomID)
	s.mu.Lock()
	members, ok := s.rooms[roomID]
	if !ok {
		members = make(map[domain.Identity]struct{})
		s.rooms[roomID] = members
	}
	members[id] = struct{}{}
	s.mu.Unlock()
	log.Info().Str("module", "app.rooms").Str("room", string(roomID)).
		Str("identity", string(id)).Msg("joined")
}

// Leave removes identity; an emptied room is destroyed.
func (r *Rooms) Leave(roomID domain.RoomID, id domain.Identity) {
	s := r.shard(roomID)
	s.mu.Lock()
	if members, ok := s.rooms[roomID]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(s.rooms, roomID)
		}
	}
	s.mu.Unlock()
}

// Members returns the current member set, nil if the room does not exist.
func (r *Rooms) Members(roomID domain.RoomID) []domain.Identity {
	s := r.shard(roomID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]domain.Identity, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

func (r *Rooms) Exists(roomID domain.RoomID) bool {
	s := r.shard(roomID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

// Destroy removes the room outright and returns the members it still held,
// so the caller can clear their call status and notify them.
func (r *Rooms) Destroy(roomID domain.RoomID) []domain.Identity {
	s := r.shard(roomID)
	s.mu.Lock()
	members, ok := s.rooms[roomID]
	if ok {
		delete(s.rooms, roomID)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	out := make([]domain.Identity, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	log.Info().Str("module", "app.rooms").Str("room", string(roomID)).
		Int("members", len(out)).Msg("destroyed")
	return out
}

// DisconnectCleanup destroys every room containing identity and reports the
// surviving members per room. This converts an ungraceful network drop into
// a graceful call-ended event for the remaining party; transport close is
// itself the signal, so no timeout is involved.
func (r *Rooms) DisconnectCleanup(id domain.Identity) map[domain.RoomID][]domain.Identity {
	affected := make(map[domain.RoomID][]domain.Identity)
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for roomID, members := range s.rooms {
			if _, ok := members[id]; !ok {
				continue
			}
			rest := make([]domain.Identity, 0, len(members)-1)
			for m := range members {
				if m != id {
					rest = append(rest, m)
				}
			}
			affected[roomID] = rest
			delete(s.rooms, roomID)
		}
		s.mu.Unlock()
	}
	if len(affected) > 0 {
		log.Info().Str("module", "app.rooms").Str("identity", string(id)).
			Int("rooms", len(affected)).Msg("disconnect cleanup")
	}
	return affected
}
