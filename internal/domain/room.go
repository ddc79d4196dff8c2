// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"

	"github.com/google/uuid"
)

type (
	// RoomKey is the meeting code a client joins with.
	RoomKey string
	// ConnID names one live transport connection. Never reused.
	ConnID string
)

// NormalizeRoomKey trims surrounding whitespace. Keys stay case-sensitive.
func NormalizeRoomKey(raw string) (RoomKey, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", ErrEmptyRoomKey
	}
	return RoomKey(key), nil
}

func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}
