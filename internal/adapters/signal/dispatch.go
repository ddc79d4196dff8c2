package signal

import (
	"encoding/json"

	"github.com/dkeye/meet/internal/app/orch"
	"github.com/dkeye/meet/internal/core"
	"github.com/dkeye/meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Inbound event names.
const (
	InJoinCall    = "join-call"
	InLeaveCall   = "leave-call"
	InSignal      = "signal"
	InChatMessage = "chat-message"
	InTyping      = "typing"
	InStopTyping  = "stop-typing"
	InReaction    = "reaction"
	InMediaState  = "media-state"
	InRaiseHand   = "raise-hand"
	InLowerHand   = "lower-hand"
	InPing        = "ping"
)

type frame struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args"`
}

// str returns positional arg i as a string, or "" when missing or not a string.
func (f frame) str(i int) string {
	if i >= len(f.Args) {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.Args[i], &s); err != nil {
		return ""
	}
	return s
}

func (f frame) raw(i int) json.RawMessage {
	if i >= len(f.Args) {
		return nil
	}
	return f.Args[i]
}

// media decodes a media-state object. Missing or non-boolean fields stay on.
func (f frame) media(i int) domain.MediaState {
	state := domain.DefaultMediaState()
	if i >= len(f.Args) {
		return state
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(f.Args[i], &fields); err != nil {
		return state
	}
	state.AudioEnabled = boolOr(fields["audioEnabled"], true)
	state.VideoEnabled = boolOr(fields["videoEnabled"], true)
	return state
}

func boolOr(raw json.RawMessage, def bool) bool {
	var b bool
	if len(raw) == 0 || json.Unmarshal(raw, &b) != nil {
		return def
	}
	return b
}

func (ctl *Controller) handleFrame(id domain.ConnID, data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad json")
		return
	}

	var task orch.Task
	switch f.Event {
	case InJoinCall:
		key, name := f.str(0), f.str(1)
		task = func(o *orch.Orchestrator) { o.JoinCall(id, key, name) }
	case InLeaveCall:
		task = func(o *orch.Orchestrator) { o.LeaveCall(id) }
	case InSignal:
		to, payload := domain.ConnID(f.str(0)), f.raw(1)
		task = func(o *orch.Orchestrator) { o.Signal(id, to, payload) }
	case InChatMessage:
		text, sender := f.str(0), f.str(1)
		task = func(o *orch.Orchestrator) { o.Chat(id, text, sender) }
	case InTyping:
		sender := f.str(0)
		task = func(o *orch.Orchestrator) { o.Typing(id, sender) }
	case InStopTyping:
		task = func(o *orch.Orchestrator) { o.StopTyping(id) }
	case InReaction:
		emoji, sender := f.str(0), f.str(1)
		task = func(o *orch.Orchestrator) { o.Reaction(id, emoji, sender) }
	case InMediaState:
		state := f.media(0)
		task = func(o *orch.Orchestrator) { o.MediaState(id, state) }
	case InRaiseHand:
		sender := f.str(0)
		task = func(o *orch.Orchestrator) { o.RaiseHand(id, sender) }
	case InLowerHand:
		task = func(o *orch.Orchestrator) { o.LowerHand(id) }
	case InPing:
		task = func(*orch.Orchestrator) { ctl.Deliver(id, core.Pong()) }
	default:
		log.Warn().Str("module", "signal").Str("conn", string(id)).Str("event", f.Event).Msg("unknown event")
		return
	}

	if !ctl.loop.Submit(task) {
		log.Debug().Str("module", "signal").Str("conn", string(id)).Str("event", f.Event).Msg("loop stopped, event dropped")
	}
}
