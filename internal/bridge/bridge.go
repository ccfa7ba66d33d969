// Package bridge holds the Slack <-> Zendesk reconciliation core: the
// dispatcher for inbound Slack events and the reconciler that mirrors
// Zendesk agent comments back into Slack threads.
package bridge

import (
	"context"
	"errors"

	"github.com/h1v3-io/zenslack/pkg/protocol"
)

// ErrAlreadyClosed is returned by TicketGateway.CloseTicket when the ticket
// is already closed.
var ErrAlreadyClosed = errors.New("ticket already closed")

// ChatGateway is the Slack capability surface the bridge consumes.
type ChatGateway interface {
	GetUser(ctx context.Context, userID string) (*protocol.UserProfile, error)
	// PostMessage posts text to channelID, inside the thread rooted at
	// threadID when it is non-empty.
	PostMessage(ctx context.Context, channelID, threadID, text string) error
	// ThreadMessages returns every message of a thread, root first.
	ThreadMessages(ctx context.Context, channelID, rootID string) ([]protocol.ChatMessage, error)
}

// TicketGateway is the Zendesk capability surface the bridge consumes.
type TicketGateway interface {
	CreateTicket(ctx context.Context, t protocol.NewTicket) (*protocol.Ticket, error)
	GetTicket(ctx context.Context, ticketID int64) (*protocol.Ticket, error)
	AddComment(ctx context.Context, ticketID int64, body string) error
	// CloseTicket closes a ticket. A non-empty comment is recorded in the
	// same update, since a closed ticket accepts no further comments.
	CloseTicket(ctx context.Context, ticketID int64, comment string) error
	ListComments(ctx context.Context, ticketID int64) ([]protocol.TicketComment, error)
}

// Config is the immutable configuration shared by the dispatcher and reconciler.
type Config struct {
	MonitoredChannel string
	WorkspaceURI     string // e.g. https://acme.slack.com/archives
	TicketURI        string // e.g. https://acme.zendesk.com/agent/tickets
	AssigneeID       int64
	GroupID          int64
}

// TicketURL returns the agent-facing URL of a ticket.
func (c Config) TicketURL(ticketID int64) string {
	return TicketURL(c.TicketURI, ticketID)
}

// MessageURL returns the Slack archive URL of a message.
func (c Config) MessageURL(channelID, ts string) string {
	return MessageURL(c.WorkspaceURI, channelID, ts)
}
