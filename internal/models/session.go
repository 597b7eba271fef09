package models

import "time"

type SessionKind string

const (
	KindChat  SessionKind = "chat"
	KindVoice SessionKind = "voice"
)

type SessionStatus string

// Session status transitions are monotonic:
// waiting -> active -> ended, or waiting -> missed.
const (
	StatusWaiting SessionStatus = "waiting"
	StatusActive  SessionStatus = "active"
	StatusEnded   SessionStatus = "ended"
	StatusMissed  SessionStatus = "missed"
)

// Session is one billed consultation between a user and an astrologer.
type Session struct {
	ID              string        `json:"id" db:"id"`
	Kind            SessionKind   `json:"kind" db:"kind"`
	UserID          string        `json:"userId" db:"user_id"`
	AstrologerID    string        `json:"astrologerId" db:"astrologer_id"`
	Status          SessionStatus `json:"status" db:"status"`
	RatePerMinute   int64         `json:"ratePerMinute" db:"rate_per_minute"`
	StartTime       *time.Time    `json:"startTime" db:"start_time"`
	EndTime         *time.Time    `json:"endTime" db:"end_time"`
	DurationSeconds int           `json:"durationSeconds" db:"duration_seconds"`
	AmountCharged   int64         `json:"amountCharged" db:"amount_charged"`
	CreatedAt       time.Time     `json:"createdAt" db:"created_at"`
}

// Message is one chat line within a chat session, append-only,
// ordered by CreatedAt ascending.
type Message struct {
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"sessionId" db:"session_id"`
	SenderID  string    `json:"senderId" db:"sender_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
