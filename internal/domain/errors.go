package domain

import "errors"

var (
	ErrEmptyRoomKey  = errors.New("room key empty")
	ErrAlreadyMember = errors.New("connection already in a room")
	ErrNotMember     = errors.New("connection not in a room")
)
