package domain

import "time"

// Visit is one meeting-history entry for a browser identified by its client token.
type Visit struct {
	ClientToken string    `json:"-"`
	MeetingCode RoomKey   `json:"meetingCode"`
	DisplayName string    `json:"displayName,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
}
