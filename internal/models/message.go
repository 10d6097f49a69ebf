package models

import "time"

// ChatMessage is a single conversational message stored in the chat history index.
// Score is populated on search results only.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score,omitempty"`
}
