// Package orch coordinates rooms, member metadata and outbound delivery.
// Every method assumes it runs on the Loop goroutine.
package orch

import (
	"time"

	"github.com/dkeye/meet/internal/app"
	"github.com/dkeye/meet/internal/core"
	"github.com/dkeye/meet/internal/domain"
)

//go:generate mockgen -destination=mocks/history.go -package=mocks github.com/dkeye/meet/internal/app/orch HistoryRecorder
//go:generate mockgen -destination=mocks/sink.go -package=mocks github.com/dkeye/meet/internal/core Sink

// HistoryRecorder receives a visit for every successful join.
// Implementations must not block.
type HistoryRecorder interface {
	Record(v domain.Visit)
}

type Orchestrator struct {
	Rooms    *core.Registry
	Sessions *app.Registry
	Out      core.Sink
	History  HistoryRecorder
	Now      func() time.Time
}

// Stats is a point-in-time summary used by the statistics job.
type Stats struct {
	Rooms    int
	Members  int
	Sessions int
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) Stats() Stats {
	rooms, members := o.Rooms.Len()
	return Stats{Rooms: rooms, Members: members, Sessions: o.Sessions.Len()}
}

func (o *Orchestrator) RoomsSnapshot() []core.RoomInfo {
	return o.Rooms.Rooms()
}

// IsRoomActive reports whether the meeting code currently has members.
func (o *Orchestrator) IsRoomActive(code string) bool {
	key, err := domain.NormalizeRoomKey(code)
	if err != nil {
		return false
	}
	return o.Rooms.IsActive(key)
}
