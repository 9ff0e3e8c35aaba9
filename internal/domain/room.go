package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RoomID string

// NewRoomID mints a globally unique room identifier on the initiating side.
// The timestamp keeps ids readable in logs; uniqueness comes from the suffix.
func NewRoomID() RoomID {
	return RoomID(fmt.Sprintf("room-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8]))
}
