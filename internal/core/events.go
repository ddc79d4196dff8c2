package core

import (
	"encoding/json"
	"time"

	"github.com/dkeye/meet/internal/domain"
)

// Outbound event names. They are the wire names browsers subscribe to.
const (
	EventConnected        = "connected"
	EventPong             = "pong"
	EventUserJoined       = "user-joined"
	EventUserLeft         = "user-left"
	EventMeetingStartTime = "meeting-start-time"
	EventSignal           = "signal"
	EventChatMessage      = "chat-message"
	EventTyping           = "typing"
	EventStopTyping       = "stop-typing"
	EventReaction         = "reaction"
	EventMediaState       = "media-state"
	EventRaiseHand        = "raise-hand"
	EventLowerHand        = "lower-hand"
)

// Event is a named message with positional arguments.
type Event struct {
	Name string `json:"event"`
	Args []any  `json:"args"`
}

// Sink delivers an event to one connection.
// Delivery is fire-and-forget.
type Sink interface {
	Deliver(to domain.ConnID, ev Event)
}

func Connected(id domain.ConnID) Event {
	return Event{Name: EventConnected, Args: []any{id}}
}

func Pong() Event {
	return Event{Name: EventPong, Args: []any{}}
}

func UserJoined(
	id domain.ConnID,
	members []domain.ConnID,
	names map[domain.ConnID]string,
	media map[domain.ConnID]domain.MediaState,
) Event {
	return Event{Name: EventUserJoined, Args: []any{id, members, names, media}}
}

func UserLeft(id domain.ConnID) Event {
	return Event{Name: EventUserLeft, Args: []any{id}}
}

func MeetingStartTime(t time.Time) Event {
	return Event{Name: EventMeetingStartTime, Args: []any{t.UnixMilli()}}
}

func Signal(from domain.ConnID, payload json.RawMessage) Event {
	return Event{Name: EventSignal, Args: []any{from, payload}}
}

func ChatMessage(text, senderName string, from domain.ConnID) Event {
	return Event{Name: EventChatMessage, Args: []any{text, senderName, from}}
}

func Typing(senderName string, from domain.ConnID) Event {
	return Event{Name: EventTyping, Args: []any{senderName, from}}
}

func StopTyping(from domain.ConnID) Event {
	return Event{Name: EventStopTyping, Args: []any{from}}
}

func Reaction(emoji, senderName string, from domain.ConnID) Event {
	return Event{Name: EventReaction, Args: []any{emoji, senderName, from}}
}

func MediaState(id domain.ConnID, state domain.MediaState) Event {
	return Event{Name: EventMediaState, Args: []any{id, state}}
}

func RaiseHand(senderName string, from domain.ConnID) Event {
	return Event{Name: EventRaiseHand, Args: []any{senderName, from}}
}

func LowerHand(from domain.ConnID) Event {
	return Event{Name: EventLowerHand, Args: []any{from}}
}
