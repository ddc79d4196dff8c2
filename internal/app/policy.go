package app

import (
	"fmt"
	"strings"

	"github.com/dkeye/meet/internal/domain"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

func (a BackpressureAction) String() string {
	if a == KickMember {
		return "kick"
	}
	return "drop"
}

func ParseBackpressureAction(s string) (BackpressureAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop":
		return DropFrame, nil
	case "kick":
		return KickMember, nil
	}
	return DropFrame, fmt.Errorf("unknown backpressure action %q", s)
}

// Policy decides what happens to a connection whose outbound queue is full.
type Policy interface {
	OnBackPressure(id domain.ConnID, event string) BackpressureAction
}

type SimplePolicy struct {
	Action BackpressureAction
}

func (p SimplePolicy) OnBackPressure(domain.ConnID, string) BackpressureAction {
	return p.Action
}
