package protocol

import "time"

// ChatEvent is an inbound Slack message event, normalised at the webhook boundary.
type ChatEvent struct {
	ChannelID string `json:"channel"`
	ChatID    string `json:"ts"`
	ThreadID  string `json:"thread_ts,omitempty"` // empty for root messages
	UserID    string `json:"user"`
	Text      string `json:"text"`
	SubType   string `json:"subtype,omitempty"`
	BotID     string `json:"bot_id,omitempty"`
}

// IsBot reports whether the event was produced by an automated account.
func (e ChatEvent) IsBot() bool {
	return e.BotID != "" || e.SubType == "bot_message"
}

// IsReply reports whether the event is a reply inside a thread.
func (e ChatEvent) IsReply() bool {
	return e.ThreadID != ""
}

// ChatMessage is one message of a Slack thread.
type ChatMessage struct {
	ID        string    `json:"ts"`
	UserID    string    `json:"user,omitempty"`
	BotID     string    `json:"bot_id,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// UserProfile is the part of a Slack user the bridge needs.
type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}
