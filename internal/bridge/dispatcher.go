package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/h1v3-io/zenslack/internal/link"
	"github.com/h1v3-io/zenslack/internal/metrics"
	"github.com/h1v3-io/zenslack/pkg/protocol"
)

// ResolveCommand closes the ticket linked to the thread it is posted in.
const ResolveCommand = "resolve ticket"

// ignoredSubtypes are Slack message subtypes that never reach Zendesk.
var ignoredSubtypes = map[string]bool{
	"channel_join":    true,
	"bot_message":     true,
	"channel_rename":  true,
	"message_changed": true,
	"message_deleted": true,
}

// Dispatcher decides what to do with each inbound Slack message: open a
// ticket, add a comment, resolve, or ignore.
type Dispatcher struct {
	cfg     Config
	chat    ChatGateway
	tickets TicketGateway
	links   link.Store

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// NewDispatcher creates a dispatcher for cfg.MonitoredChannel.
func NewDispatcher(cfg Config, chat ChatGateway, tickets TicketGateway, links link.Store) *Dispatcher {
	return &Dispatcher{
		cfg:     cfg,
		chat:    chat,
		tickets: tickets,
		links:   links,
		Logger:  slog.Default(),
	}
}

// Handle processes one Slack message event. It returns false for events the
// bridge ignores (other channels, bots, housekeeping subtypes) and true once
// the event has been acted on. A non-nil error means a gateway or store call
// failed part way; callers log it and drop the event.
func (d *Dispatcher) Handle(ctx context.Context, ev protocol.ChatEvent) (bool, error) {
	if ev.ChannelID != d.cfg.MonitoredChannel {
		return false, nil
	}
	if ev.IsBot() || ignoredSubtypes[ev.SubType] {
		d.Logger.Debug("ignoring message", "channel", ev.ChannelID, "subtype", ev.SubType, "bot_id", ev.BotID)
		return false, nil
	}

	d.Logger.Debug("new message on support channel", "channel", ev.ChannelID, "ts", ev.ChatID, "thread_ts", ev.ThreadID)

	user, err := d.chat.GetUser(ctx, ev.UserID)
	if err != nil {
		return false, fmt.Errorf("bridge: get user %s: %w", ev.UserID, err)
	}

	if ev.IsReply() {
		return true, d.handleReply(ctx, ev, user)
	}
	return true, d.handleRoot(ctx, ev, user)
}

func (d *Dispatcher) handleReply(ctx context.Context, ev protocol.ChatEvent, user *protocol.UserProfile) error {
	threadURL := d.cfg.MessageURL(ev.ChannelID, ev.ThreadID)

	l, err := d.links.GetByRoot(ctx, ev.ChannelID, ev.ThreadID)
	if errors.Is(err, link.ErrNotFound) {
		// Threads started before the bridge was installed.
		d.Logger.Warn("no ticket found for thread, old thread?", "url", threadURL)
		return nil
	}
	if err != nil {
		return fmt.Errorf("bridge: lookup thread %s: %w", ev.ThreadID, err)
	}

	d.Logger.Debug("recovered ticket for thread", "ticket_id", l.TicketID, "url", threadURL)

	comment := SlackComment(user.DisplayName, ev.Text)
	if NormalizeCommand(ev.Text) == ResolveCommand {
		return d.resolve(ctx, l, comment)
	}

	t, err := d.tickets.GetTicket(ctx, l.TicketID)
	if err != nil {
		return fmt.Errorf("bridge: get ticket %d: %w", l.TicketID, err)
	}
	if err := d.tickets.AddComment(ctx, t.ID, comment); err != nil {
		return fmt.Errorf("bridge: add comment to ticket %d: %w", t.ID, err)
	}
	d.Metrics.Mirrored("to_zendesk", 1)
	return nil
}

// resolve closes the linked ticket with the command reply as its last
// comment. A ticket that is already closed cannot take the comment.
func (d *Dispatcher) resolve(ctx context.Context, l *protocol.TicketLink, comment string) error {
	url := d.cfg.TicketURL(l.TicketID)
	d.Logger.Info("closing ticket from slack", "ticket_id", l.TicketID, "url", url)

	if err := d.links.MarkResolved(ctx, l.ChannelID, l.ChatID); err != nil {
		return fmt.Errorf("bridge: resolve link %s/%s: %w", l.ChannelID, l.ChatID, err)
	}

	notice := fmt.Sprintf("🤖 Understood. Ticket %s has been closed.", url)
	switch err := d.tickets.CloseTicket(ctx, l.TicketID, comment); {
	case errors.Is(err, ErrAlreadyClosed):
		d.Logger.Info("ticket already closed, reply not mirrored", "ticket_id", l.TicketID)
		notice = fmt.Sprintf("🤖 Ticket %s is already closed.", url)
	case err != nil:
		return fmt.Errorf("bridge: close ticket %d: %w", l.TicketID, err)
	default:
		d.Metrics.Mirrored("to_zendesk", 1)
	}

	if err := d.chat.PostMessage(ctx, l.ChannelID, l.ChatID, notice); err != nil {
		return fmt.Errorf("bridge: post resolve notice: %w", err)
	}
	return nil
}

func (d *Dispatcher) handleRoot(ctx context.Context, ev protocol.ChatEvent, user *protocol.UserProfile) error {
	chatURL := d.cfg.MessageURL(ev.ChannelID, ev.ChatID)

	_, err := d.links.GetByRoot(ctx, ev.ChannelID, ev.ChatID)
	if err == nil {
		d.Logger.Info("message is already tracked", "chat_id", ev.ChatID, "url", chatURL)
		return nil
	}
	if !errors.Is(err, link.ErrNotFound) {
		return fmt.Errorf("bridge: lookup message %s: %w", ev.ChatID, err)
	}

	d.Logger.Debug("opening ticket", "email", user.Email, "url", chatURL)
	t, err := d.tickets.CreateTicket(ctx, protocol.NewTicket{
		ExternalID:     ev.ChatID,
		RecipientEmail: user.Email,
		Subject:        ev.Text,
		Description:    ev.Text,
		LinkBackURL:    chatURL,
		AssigneeID:     d.cfg.AssigneeID,
		GroupID:        d.cfg.GroupID,
	})
	if err != nil {
		return fmt.Errorf("bridge: create ticket for %s: %w", ev.ChatID, err)
	}

	if _, err := d.links.Insert(ctx, ev.ChannelID, ev.ChatID, t.ID); err != nil {
		if errors.Is(err, link.ErrAlreadyExists) {
			// A concurrent delivery of the same message won the insert.
			d.Logger.Warn("message linked concurrently, leaving duplicate ticket unlinked",
				"chat_id", ev.ChatID, "ticket_id", t.ID)
			return nil
		}
		return fmt.Errorf("bridge: link ticket %d: %w", t.ID, err)
	}
	d.Metrics.TicketCreated()

	msg := fmt.Sprintf("Hello, your new support request is %s", d.cfg.TicketURL(t.ID))
	if err := d.chat.PostMessage(ctx, ev.ChannelID, ev.ChatID, msg); err != nil {
		return fmt.Errorf("bridge: post ticket link: %w", err)
	}
	d.Logger.Info("ticket opened", "ticket_id", t.ID, "chat_id", ev.ChatID)
	return nil
}
