package orch

import (
	"time"

	"github.com/dkeye/meet/internal/core"
	"github.com/dkeye/meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Connect binds metadata for a freshly accepted connection.
func (o *Orchestrator) Connect(id domain.ConnID, clientToken string) {
	o.Sessions.Bind(id, clientToken)
}

// JoinCall puts id into the room named by rawKey.
// Re-joining the current room only refreshes the joiner's view; joining a
// different room leaves the current one first.
func (o *Orchestrator) JoinCall(id domain.ConnID, rawKey, displayName string) {
	key, err := domain.NormalizeRoomKey(rawKey)
	if err != nil {
		log.Debug().Str("module", "orch").Str("conn", string(id)).Msg("join with empty room key ignored")
		return
	}
	name := domain.SanitizeUsername(displayName)

	if cur, ok := o.Rooms.FindRoom(id); ok {
		if cur == key {
			o.Sessions.UpdateUsername(id, name)
			o.sendRoomState(id, key)
			log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(key)).Msg("re-join of current room")
			return
		}
		o.leave(id)
		log.Info().Str("module", "orch").Str("conn", string(id)).Str("from_room", string(cur)).Msg("left previous room")
	}

	members, err := o.Rooms.Join(key, id)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("conn", string(id)).Msg("join rejected")
		return
	}
	joinedAt := o.now()
	o.Sessions.MarkJoined(id, joinedAt)
	o.Sessions.UpdateUsername(id, name)

	ev := core.UserJoined(id, members, o.Sessions.Usernames(members), o.Sessions.MediaStates(members))
	for _, m := range members {
		o.Out.Deliver(m, ev)
	}
	if startedAt, ok := o.Rooms.StartedAt(key); ok {
		o.Out.Deliver(id, core.MeetingStartTime(startedAt))
	}
	for _, msg := range o.Rooms.History(key) {
		o.Out.Deliver(id, core.ChatMessage(msg.Text, msg.SenderName, msg.SenderConnID))
	}

	log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(key)).Int("members", len(members)).Msg("joined")
	o.recordVisit(id, key, joinedAt)
}

// LeaveCall removes id from its room but keeps the connection and its metadata.
func (o *Orchestrator) LeaveCall(id domain.ConnID) {
	if key, ok := o.leave(id); ok {
		log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(key)).Msg("left")
	}
}

// Disconnect drops all state held for id and returns how long it was in a call.
func (o *Orchestrator) Disconnect(id domain.ConnID) time.Duration {
	var online time.Duration
	if sess, ok := o.Sessions.Unbind(id); ok && !sess.JoinedAt.IsZero() {
		online = o.now().Sub(sess.JoinedAt)
	}
	key, ok := o.leave(id)
	if !ok {
		log.Debug().Str("module", "orch").Str("conn", string(id)).Msg("disconnect outside any room")
		return online
	}
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(key)).Dur("online", online).Msg("disconnected")
	return online
}

// leave notifies the other members, then removes id from its room.
func (o *Orchestrator) leave(id domain.ConnID) (domain.RoomKey, bool) {
	key, ok := o.Rooms.FindRoom(id)
	if !ok {
		return "", false
	}
	ev := core.UserLeft(id)
	for _, m := range o.Rooms.Members(key) {
		if m != id {
			o.Out.Deliver(m, ev)
		}
	}
	o.Rooms.Leave(id)
	return key, true
}

func (o *Orchestrator) sendRoomState(id domain.ConnID, key domain.RoomKey) {
	members := o.Rooms.Members(key)
	o.Out.Deliver(id, core.UserJoined(id, members, o.Sessions.Usernames(members), o.Sessions.MediaStates(members)))
	if startedAt, ok := o.Rooms.StartedAt(key); ok {
		o.Out.Deliver(id, core.MeetingStartTime(startedAt))
	}
}

func (o *Orchestrator) recordVisit(id domain.ConnID, key domain.RoomKey, at time.Time) {
	if o.History == nil {
		return
	}
	sess, ok := o.Sessions.Get(id)
	if !ok || sess.ClientToken == "" {
		return
	}
	o.History.Record(domain.Visit{
		ClientToken: sess.ClientToken,
		MeetingCode: key,
		DisplayName: sess.Username,
		JoinedAt:    at,
	})
}
