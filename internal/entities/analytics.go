package entities

import "time"

// MessageRecord is the raw-message analytics event.
type MessageRecord struct {
	MessageID string
	From      string
	Name      string
	Type      string
	TextBody  string
	Keyword   string
	Status    string
}

// ConsultationRecord captures a consultation request for follow-up.
type ConsultationRecord struct {
	From     string
	Name     string
	Message  string
	Status   string // pending until an admin closes it
	Notified bool
}

type ButtonClickRecord struct {
	From        string
	ButtonID    string
	ButtonTitle string
	Context     string
}

// ConversionRecord tracks a funnel transition (fromKeyword -> toKeyword).
type ConversionRecord struct {
	From        string
	FromKeyword string
	ToKeyword   string
}

type ErrorRecord struct {
	Type    string
	Message string
	Context string
}

// UserProfile is the analytics view of a sender. Owned by the analytics
// store; the pipeline only supplies updates.
type UserProfile struct {
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	MessageCount int       `json:"message_count"`
	LastKeyword  string    `json:"last_keyword"`
}
