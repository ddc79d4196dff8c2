package core

import (
	"time"

	"github.com/dkeye/meet/internal/domain"
)

// RoomState is the lifecycle of a room key: Absent -> Active -> Absent.
// Join and Leave are the only transitions.
type RoomState int

const (
	RoomAbsent RoomState = iota
	RoomActive
)

func (s RoomState) String() string {
	if s == RoomActive {
		return "active"
	}
	return "absent"
}

// RoomInfo is a read-only view for APIs.
type RoomInfo struct {
	Name        domain.RoomKey `json:"name"`
	MemberCount int            `json:"member_count"`
	StartedAt   time.Time      `json:"started_at"`
}

// room holds all room-scoped state. It is dropped as a whole when empty.
type room struct {
	key       domain.RoomKey
	members   []domain.ConnID
	startedAt time.Time
	history   []domain.ChatMessage
}

func (r *room) indexOf(id domain.ConnID) int {
	for i, m := range r.members {
		if m == id {
			return i
		}
	}
	return -1
}

func (r *room) remove(id domain.ConnID) bool {
	i := r.indexOf(id)
	if i < 0 {
		return false
	}
	r.members = append(r.members[:i], r.members[i+1:]...)
	return true
}

func (r *room) appendMessage(msg domain.ChatMessage, limit int) {
	r.history = append(r.history, msg)
	if limit > 0 && len(r.history) > limit {
		r.history = append(r.history[:0:0], r.history[len(r.history)-limit:]...)
	}
}
