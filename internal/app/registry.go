package app

import (
	"time"

	"github.com/dkeye/meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Session is the metadata kept for one live connection.
type Session struct {
	ClientToken string
	Username    string
	Media       *domain.MediaState // nil until the member reports it
	JoinedAt    time.Time          // zero until the first join
}

// Registry owns per-connection metadata. Entries are dropped on Unbind, so
// nothing here outlives the connection. Not safe for concurrent use.
type Registry struct {
	sessions map[domain.ConnID]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.ConnID]*Session)}
}

func (r *Registry) Bind(id domain.ConnID, clientToken string) {
	r.sessions[id] = &Session{ClientToken: clientToken}
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Str("client", clientToken).Msg("bound session")
}

// Unbind removes the entry and returns what it held.
func (r *Registry) Unbind(id domain.ConnID) (Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, id)
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Msg("unbound session")
	return *s, true
}

func (r *Registry) Get(id domain.ConnID) (Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (r *Registry) getOrCreate(id domain.ConnID) *Session {
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := &Session{}
	r.sessions[id] = s
	return s
}

// UpdateUsername ignores empty names so a nameless re-join keeps the old one.
func (r *Registry) UpdateUsername(id domain.ConnID, name string) {
	if name == "" {
		return
	}
	r.getOrCreate(id).Username = name
}

func (r *Registry) UpdateMedia(id domain.ConnID, state domain.MediaState) {
	r.getOrCreate(id).Media = &state
}

func (r *Registry) MarkJoined(id domain.ConnID, at time.Time) {
	r.getOrCreate(id).JoinedAt = at
}

func (r *Registry) Media(id domain.ConnID) domain.MediaState {
	if s, ok := r.sessions[id]; ok && s.Media != nil {
		return *s.Media
	}
	return domain.DefaultMediaState()
}

// Usernames maps the given members to their display names, skipping unnamed ones.
func (r *Registry) Usernames(ids []domain.ConnID) map[domain.ConnID]string {
	out := make(map[domain.ConnID]string, len(ids))
	for _, id := range ids {
		if s, ok := r.sessions[id]; ok && s.Username != "" {
			out[id] = s.Username
		}
	}
	return out
}

// MediaStates maps every given member to its media state, defaulting to all-on.
func (r *Registry) MediaStates(ids []domain.ConnID) map[domain.ConnID]domain.MediaState {
	out := make(map[domain.ConnID]domain.MediaState, len(ids))
	for _, id := range ids {
		out[id] = r.Media(id)
	}
	return out
}

func (r *Registry) Len() int { return len(r.sessions) }
