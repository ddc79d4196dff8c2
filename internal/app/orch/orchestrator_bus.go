package orch

import (
	"github.com/dkeye/meet/internal/core"
	"github.com/dkeye/meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Broadcast delivers ev to every current member of the room in join order.
func (o *Orchestrator) Broadcast(key domain.RoomKey, ev core.Event) {
	for _, m := range o.Rooms.Members(key) {
		o.Out.Deliver(m, ev)
	}
}

func (o *Orchestrator) broadcastExcept(key domain.RoomKey, except domain.ConnID, ev core.Event) {
	for _, m := range o.Rooms.Members(key) {
		if m != except {
			o.Out.Deliver(m, ev)
		}
	}
}

func (o *Orchestrator) roomOf(from domain.ConnID, event string) (domain.RoomKey, bool) {
	key, err := o.Rooms.RoomOf(from)
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("conn", string(from)).Str("event", event).Msg("sender not in a room")
		return "", false
	}
	return key, true
}

// Chat appends the message to the room history, then fans it out to everyone.
func (o *Orchestrator) Chat(from domain.ConnID, text, senderName string) {
	key, ok := o.roomOf(from, core.EventChatMessage)
	if !ok {
		return
	}
	senderName = domain.SanitizeUsername(senderName)
	o.Rooms.AppendMessage(key, domain.ChatMessage{
		SenderName:   senderName,
		Text:         text,
		SenderConnID: from,
		Timestamp:    o.now(),
	})
	o.Broadcast(key, core.ChatMessage(text, senderName, from))
}

func (o *Orchestrator) Typing(from domain.ConnID, senderName string) {
	if key, ok := o.roomOf(from, core.EventTyping); ok {
		o.broadcastExcept(key, from, core.Typing(domain.SanitizeUsername(senderName), from))
	}
}

func (o *Orchestrator) StopTyping(from domain.ConnID) {
	if key, ok := o.roomOf(from, core.EventStopTyping); ok {
		o.broadcastExcept(key, from, core.StopTyping(from))
	}
}

func (o *Orchestrator) Reaction(from domain.ConnID, emoji, senderName string) {
	if key, ok := o.roomOf(from, core.EventReaction); ok {
		o.Broadcast(key, core.Reaction(emoji, domain.SanitizeUsername(senderName), from))
	}
}

// MediaState stores the sender's reported state and tells the whole room.
func (o *Orchestrator) MediaState(from domain.ConnID, state domain.MediaState) {
	key, ok := o.roomOf(from, core.EventMediaState)
	if !ok {
		return
	}
	o.Sessions.UpdateMedia(from, state)
	o.Broadcast(key, core.MediaState(from, state))
}

func (o *Orchestrator) RaiseHand(from domain.ConnID, senderName string) {
	if key, ok := o.roomOf(from, core.EventRaiseHand); ok {
		o.Broadcast(key, core.RaiseHand(domain.SanitizeUsername(senderName), from))
	}
}

func (o *Orchestrator) LowerHand(from domain.ConnID) {
	if key, ok := o.roomOf(from, core.EventLowerHand); ok {
		o.Broadcast(key, core.LowerHand(from))
	}
}
