package link

import (
	"context"
	"errors"

	"github.com/h1v3-io/zenslack/pkg/protocol"
)

var (
	// ErrNotFound is returned when no link matches the lookup key.
	ErrNotFound = errors.New("link not found")
	// ErrAlreadyExists is returned by Insert when the root message is already linked.
	ErrAlreadyExists = errors.New("link already exists")
)

// Store is the persistence interface for Slack thread <-> ticket links.
// Links are never deleted.
type Store interface {
	// Insert records a new open link. It fails with ErrAlreadyExists if
	// (channelID, chatID) or ticketID is already linked.
	Insert(ctx context.Context, channelID, chatID string, ticketID int64) (*protocol.TicketLink, error)
	// GetByRoot looks a link up by its Slack root message.
	GetByRoot(ctx context.Context, channelID, chatID string) (*protocol.TicketLink, error)
	// GetByTicket looks a link up by ticket id, requiring the stored root
	// message id to equal chatID (the ticket's external_id).
	GetByTicket(ctx context.Context, chatID string, ticketID int64) (*protocol.TicketLink, error)
	// MarkResolved sets the link status to resolved. Resolving a resolved link is not an error.
	MarkResolved(ctx context.Context, channelID, chatID string) error
	// List returns links matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*protocol.TicketLink, error)
}

// Filter constrains link list queries.
type Filter struct {
	Status    *protocol.LinkStatus
	ChannelID string
	Limit     int // 0 = no limit
}
