package domain

import (
	"strings"
	"unicode/utf8"
)

const MaxUsernameLen = 64

// MediaState is what a member reports about its own microphone and camera.
type MediaState struct {
	AudioEnabled bool `json:"audioEnabled"`
	VideoEnabled bool `json:"videoEnabled"`
}

// DefaultMediaState is assumed for members that never reported anything.
func DefaultMediaState() MediaState {
	return MediaState{AudioEnabled: true, VideoEnabled: true}
}

// SanitizeUsername trims the display name and caps its length in runes.
func SanitizeUsername(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= MaxUsernameLen {
		return name
	}
	return string([]rune(name)[:MaxUsernameLen])
}
