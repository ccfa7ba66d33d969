package protocol

import "time"

// LinkStatus is the lifecycle state of a Slack thread linked to a ticket.
type LinkStatus string

const (
	LinkOpen     LinkStatus = "open"
	LinkResolved LinkStatus = "resolved"
)

// TicketLink ties a Slack root message to the Zendesk ticket opened for it.
type TicketLink struct {
	ChannelID string     `json:"channel_id"`
	ChatID    string     `json:"chat_id"` // ts of the root message
	TicketID  int64      `json:"ticket_id"`
	Status    LinkStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Ticket is the subset of a Zendesk ticket the bridge cares about.
type Ticket struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"external_id,omitempty"`
	Subject    string `json:"subject"`
	Status     string `json:"status"`
}

// NewTicket holds the fields used to open a ticket from a Slack message.
type NewTicket struct {
	ExternalID     string
	RecipientEmail string
	Subject        string
	Description    string
	LinkBackURL    string
	AssigneeID     int64 // 0 = leave unassigned
	GroupID        int64 // 0 = default group
}

// TicketComment is a normalised ticket comment.
type TicketComment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Via       string    `json:"via"` // channel the comment arrived through: web, api, email...
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
}

// ViaWeb is the Via channel of comments written in the Zendesk agent UI.
const ViaWeb = "web"

// TicketEvent is the payload of a Zendesk comment webhook.
type TicketEvent struct {
	ExternalID string `json:"external_id"`
	TicketID   int64  `json:"ticket_id"`
}
