package signal

import (
	"sync"
	"time"

	"github.com/cazapp/famicall/internal/domain"
)

// InviteRateLimiter caps how many call invites one identity may place per
// interval, so a misbehaving client cannot ring a contact in a loop.
type InviteRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.Identity][]time.Time
	limit    int
	interval time.Duration
}

func NewInviteRateLimiter(limit int, interval time.Duration) *InviteRateLimiter {
	return &InviteRateLimiter{
		history:  make(map[domain.Identity][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *InviteRateLimiter) Allow(id domain.Identity) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[id] = fresh
	return true
}
