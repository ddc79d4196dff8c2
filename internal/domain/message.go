package domain

import "time"

// ChatMessage lives in process memory for as long as its room does.
type ChatMessage struct {
	SenderName   string    `json:"senderName"`
	Text         string    `json:"text"`
	SenderConnID ConnID    `json:"senderConnId"`
	Timestamp    time.Time `json:"timestamp"`
}
