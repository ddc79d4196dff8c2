package core

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dkeye/meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry maps room keys to ordered member lists and keeps a reverse
// conn -> room index in step with it.
// It is not safe for concurrent use; the orchestrator loop owns it.
type Registry struct {
	rooms        map[domain.RoomKey]*room
	byConn       map[domain.ConnID]domain.RoomKey
	historyLimit int
	now          func() time.Time
}

// NewRegistry builds an empty registry. historyLimit <= 0 keeps every chat
// message for the room's lifetime; now defaults to time.Now.
func NewRegistry(historyLimit int, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		rooms:        make(map[domain.RoomKey]*room),
		byConn:       make(map[domain.ConnID]domain.RoomKey),
		historyLimit: historyLimit,
		now:          now,
	}
}

// Join adds id to the room, creating it when absent, and returns the member list.
// A connection already in any room is rejected with domain.ErrAlreadyMember.
func (r *Registry) Join(key domain.RoomKey, id domain.ConnID) ([]domain.ConnID, error) {
	if key == "" {
		return nil, domain.ErrEmptyRoomKey
	}
	if cur, ok := r.byConn[id]; ok {
		return nil, fmt.Errorf("join %q: %w %q", key, domain.ErrAlreadyMember, cur)
	}
	rm, ok := r.rooms[key]
	if !ok {
		rm = &room{key: key, startedAt: r.now()}
		r.rooms[key] = rm
		log.Info().Str("module", "core.registry").Str("room", string(key)).Msg("room active")
	}
	rm.members = append(rm.members, id)
	r.byConn[id] = key
	return slices.Clone(rm.members), nil
}

// Leave removes id from its room. An emptied room is discarded together with
// its history and start time. ok is false when id was in no room.
func (r *Registry) Leave(id domain.ConnID) (domain.RoomKey, bool) {
	key, ok := r.byConn[id]
	if !ok {
		return "", false
	}
	delete(r.byConn, id)
	rm := r.rooms[key]
	rm.remove(id)
	if len(rm.members) == 0 {
		delete(r.rooms, key)
		log.Info().Str("module", "core.registry").Str("room", string(key)).Msg("room absent")
	}
	return key, true
}

func (r *Registry) FindRoom(id domain.ConnID) (domain.RoomKey, bool) {
	key, ok := r.byConn[id]
	return key, ok
}

// RoomOf is FindRoom for callers that want an error; a miss wraps ErrNotMember.
func (r *Registry) RoomOf(id domain.ConnID) (domain.RoomKey, error) {
	key, ok := r.byConn[id]
	if !ok {
		return "", fmt.Errorf("room of %s: %w", id, domain.ErrNotMember)
	}
	return key, nil
}

// Members returns a snapshot of the room's members in join order.
func (r *Registry) Members(key domain.RoomKey) []domain.ConnID {
	rm, ok := r.rooms[key]
	if !ok {
		return nil
	}
	return slices.Clone(rm.members)
}

func (r *Registry) State(key domain.RoomKey) RoomState {
	if _, ok := r.rooms[key]; ok {
		return RoomActive
	}
	return RoomAbsent
}

func (r *Registry) IsActive(key domain.RoomKey) bool {
	return r.State(key) == RoomActive
}

func (r *Registry) StartedAt(key domain.RoomKey) (time.Time, bool) {
	rm, ok := r.rooms[key]
	if !ok {
		return time.Time{}, false
	}
	return rm.startedAt, true
}

// AppendMessage adds msg to the room history. It reports false for absent rooms.
func (r *Registry) AppendMessage(key domain.RoomKey, msg domain.ChatMessage) bool {
	rm, ok := r.rooms[key]
	if !ok {
		return false
	}
	rm.appendMessage(msg, r.historyLimit)
	return true
}

// History returns a snapshot of the room's chat history in send order.
func (r *Registry) History(key domain.RoomKey) []domain.ChatMessage {
	rm, ok := r.rooms[key]
	if !ok {
		return nil
	}
	return slices.Clone(rm.history)
}

// Rooms lists active rooms ordered by name.
func (r *Registry) Rooms() []RoomInfo {
	out := make([]RoomInfo, 0, len(r.rooms))
	for key, rm := range r.rooms {
		out = append(out, RoomInfo{Name: key, MemberCount: len(rm.members), StartedAt: rm.startedAt})
	}
	slices.SortFunc(out, func(a, b RoomInfo) int { return strings.Compare(string(a.Name), string(b.Name)) })
	return out
}

// Len reports the number of active rooms and tracked connections.
func (r *Registry) Len() (rooms, conns int) {
	return len(r.rooms), len(r.byConn)
}

// CheckConsistency verifies that the room index and the reverse index agree.
func (r *Registry) CheckConsistency() error {
	seen := 0
	for key, rm := range r.rooms {
		if rm.key != key {
			return fmt.Errorf("room %q stored under %q", rm.key, key)
		}
		if len(rm.members) == 0 {
			return fmt.Errorf("room %q is empty but present", key)
		}
		dup := make(map[domain.ConnID]struct{}, len(rm.members))
		for _, id := range rm.members {
			if _, ok := dup[id]; ok {
				return fmt.Errorf("room %q lists %q twice", key, id)
			}
			dup[id] = struct{}{}
			if got, ok := r.byConn[id]; !ok || got != key {
				return fmt.Errorf("member %q of %q indexed to %q", id, key, got)
			}
			seen++
		}
	}
	if seen != len(r.byConn) {
		return fmt.Errorf("index has %d conns, rooms hold %d", len(r.byConn), seen)
	}
	return nil
}
