package domain

import "time"

// ChatMessage is transient and display-only; nothing persists it.
type ChatMessage struct {
	SenderID   PeerID    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
}
