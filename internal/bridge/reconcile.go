package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/h1v3-io/zenslack/internal/link"
	"github.com/h1v3-io/zenslack/internal/metrics"
	"github.com/h1v3-io/zenslack/pkg/protocol"
)

// botSlots is the number of leading thread messages never considered
// mirrored: the root question and the "new support request" reply.
//
// TODO: tag bot-authored messages instead of relying on thread position.
const botSlots = 2

// Reconciler copies Zendesk agent comments missing from a Slack thread into it.
type Reconciler struct {
	chat    ChatGateway
	tickets TicketGateway
	links   link.Store

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// NewReconciler creates a reconciler.
func NewReconciler(chat ChatGateway, tickets TicketGateway, links link.Store) *Reconciler {
	return &Reconciler{
		chat:    chat,
		tickets: tickets,
		links:   links,
		Logger:  slog.Default(),
	}
}

// Reconcile brings the Slack thread of ev's ticket up to date and returns the
// number of messages posted. Tickets that did not start in Slack, or that are
// not linked, are skipped without error. A failed post does not stop the
// remaining ones; all failures are returned joined.
func (r *Reconciler) Reconcile(ctx context.Context, ev protocol.TicketEvent) (int, error) {
	if ev.ExternalID == "" {
		r.Logger.Debug("external_id is empty, ignoring ticket comment", "ticket_id", ev.TicketID)
		return 0, nil
	}

	l, err := r.links.GetByTicket(ctx, ev.ExternalID, ev.TicketID)
	if errors.Is(err, link.ErrNotFound) {
		r.Logger.Debug("ticket not tracked, ignoring ticket comment", "ticket_id", ev.TicketID, "external_id", ev.ExternalID)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("bridge: lookup ticket %d: %w", ev.TicketID, err)
	}

	thread, err := r.chat.ThreadMessages(ctx, l.ChannelID, l.ChatID)
	if err != nil {
		return 0, fmt.Errorf("bridge: thread %s/%s: %w", l.ChannelID, l.ChatID, err)
	}
	comments, err := r.tickets.ListComments(ctx, l.TicketID)
	if err != nil {
		return 0, fmt.Errorf("bridge: comments of ticket %d: %w", l.TicketID, err)
	}

	pending := MessagesForChat(thread, comments)
	r.Logger.Debug("reconciling ticket", "ticket_id", l.TicketID,
		"thread", len(thread), "comments", len(comments), "pending", len(pending))

	var errs []error
	posted := 0
	for _, c := range pending {
		if err := r.chat.PostMessage(ctx, l.ChannelID, l.ChatID, ZendeskMessage(c.Body)); err != nil {
			r.Logger.Error("failed to mirror comment", "ticket_id", l.TicketID, "comment_id", c.ID, "error", err)
			errs = append(errs, fmt.Errorf("bridge: post comment %d: %w", c.ID, err))
			continue
		}
		posted++
	}
	r.Metrics.Mirrored("to_slack", posted)
	return posted, errors.Join(errs...)
}

// MessagesForChat returns the comments that must be appended to the Slack
// thread, oldest first: comments written in the Zendesk web UI whose body is
// not already present in the thread. Thread messages after the first
// botSlots are the mirror set, each reduced to the text after any
// "(Zendesk):" marker.
func MessagesForChat(thread []protocol.ChatMessage, comments []protocol.TicketComment) []protocol.TicketComment {
	thread = slices.Clone(thread)
	slices.SortStableFunc(thread, func(a, b protocol.ChatMessage) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	mirrored := make(map[string]struct{})
	if len(thread) > botSlots {
		for _, m := range thread[botSlots:] {
			mirrored[StripMirrorMarker(m.Text)] = struct{}{}
		}
	}

	comments = slices.Clone(comments)
	slices.SortStableFunc(comments, func(a, b protocol.TicketComment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	var pending []protocol.TicketComment
	for _, c := range comments {
		if c.Via != protocol.ViaWeb {
			continue
		}
		if _, ok := mirrored[strings.TrimSpace(c.Body)]; ok {
			continue
		}
		pending = append(pending, c)
	}
	return pending
}
