package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/h1v3-io/zenslack/internal/metrics"
	"github.com/h1v3-io/zenslack/pkg/protocol"
)

// Outcome is the result of one inbound event as seen by the webhook layer.
type Outcome string

const (
	OutcomeIgnored Outcome = "ignored"
	OutcomeHandled Outcome = "handled"
	OutcomeFailed  Outcome = "failed"
)

// Boundary is the only place inbound events enter the core. It converts every
// failure, including panics, into a logged OutcomeFailed so the webhook can
// always acknowledge delivery.
type Boundary struct {
	Dispatcher *Dispatcher
	Reconciler *Reconciler
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// HandleChat runs the dispatcher for one Slack event.
func (b *Boundary) HandleChat(ctx context.Context, ev protocol.ChatEvent) (out Outcome) {
	defer b.recoverPanic("chat", slog.Any("event", ev), &out)

	handled, err := b.Dispatcher.Handle(ctx, ev)
	switch {
	case err != nil:
		b.logger().Error("slack message handler error", "event", ev, "error", err)
		out = OutcomeFailed
	case handled:
		out = OutcomeHandled
	default:
		out = OutcomeIgnored
	}
	b.Metrics.Event("chat", string(out))
	return out
}

// HandleTicket runs the reconciler for one Zendesk event.
func (b *Boundary) HandleTicket(ctx context.Context, ev protocol.TicketEvent) (out Outcome) {
	defer b.recoverPanic("ticket", slog.Any("event", ev), &out)

	posted, err := b.Reconciler.Reconcile(ctx, ev)
	switch {
	case err != nil:
		b.logger().Error("zendesk comment handler error", "event", ev, "posted", posted, "error", err)
		out = OutcomeFailed
	case posted > 0:
		out = OutcomeHandled
	default:
		out = OutcomeIgnored
	}
	b.Metrics.Event("ticket", string(out))
	return out
}

func (b *Boundary) recoverPanic(kind string, event slog.Attr, out *Outcome) {
	if r := recover(); r != nil {
		b.logger().Error("event handler panicked", "kind", kind, event, "panic", fmt.Sprintf("%v", r))
		b.Metrics.Event(kind, string(OutcomeFailed))
		*out = OutcomeFailed
	}
}

func (b *Boundary) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}
