// Package webhook receives Slack Events API callbacks and Zendesk trigger
// webhooks and hands them to the bridge.
package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/slack-go/slack/slackevents"

	"github.com/h1v3-io/zenslack/internal/bridge"
	"github.com/h1v3-io/zenslack/internal/metrics"
	"github.com/h1v3-io/zenslack/pkg/protocol"
)

const maxBody = 1 << 20 // 1MB

// Config holds webhook verification settings.
type Config struct {
	// VerificationToken is the Slack app verification token sent in every
	// Events API payload.
	VerificationToken string
	// ZendeskUser and ZendeskToken, when both set, are the Basic credentials
	// the Zendesk webhook must present.
	ZendeskUser  string
	ZendeskToken string
	// Disabled acknowledges every event without processing it.
	Disabled bool
}

// EventHandler consumes normalised events. *bridge.Boundary implements it.
type EventHandler interface {
	HandleChat(ctx context.Context, ev protocol.ChatEvent) bridge.Outcome
	HandleTicket(ctx context.Context, ev protocol.TicketEvent) bridge.Outcome
}

// Handler provides the HTTP handlers for both webhook sources.
type Handler struct {
	config  Config
	events  EventHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a webhook handler. logger and m may be nil.
func New(cfg Config, events EventHandler, logger *slog.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		config:  cfg,
		events:  events,
		logger:  logger,
		metrics: m,
	}
}

// SlackEvents handles POST /slack/events/. The only non-200 answer is 403
// for a body whose verification token cannot be confirmed, so Slack never
// retries an event the bridge already saw.
func (h *Handler) SlackEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		h.logger.Warn("unreadable slack event body", "error", err)
		h.reply(w, "slack", http.StatusForbidden)
		return
	}

	// A body that does not decode carries no token to verify.
	var envelope struct {
		Token string `json:"token"`
		Type  string `json:"type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		h.logger.Warn("invalid slack event payload", "error", err)
		h.reply(w, "slack", http.StatusForbidden)
		return
	}

	if !equal(envelope.Token, h.config.VerificationToken) {
		h.logger.Warn("slack verification token mismatch")
		h.reply(w, "slack", http.StatusForbidden)
		return
	}

	if envelope.Type == slackevents.URLVerification {
		h.metrics.Webhook("slack", http.StatusOK)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
		return
	}

	if envelope.Type != slackevents.CallbackEvent {
		h.logger.Debug("ignoring slack event", "type", envelope.Type)
		h.reply(w, "slack", http.StatusOK)
		return
	}

	// Unknown inner event types fail to parse; they are acknowledged anyway.
	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		h.logger.Debug("ignoring unparsable slack callback", "error", err)
		h.reply(w, "slack", http.StatusOK)
		return
	}

	msg, ok := ev.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		h.logger.Debug("ignoring slack callback", "type", ev.InnerEvent.Type)
		h.reply(w, "slack", http.StatusOK)
		return
	}

	if h.config.Disabled {
		h.logger.Info("message processing disabled, dropping slack event", "channel", msg.Channel, "ts", msg.TimeStamp)
		h.metrics.Event("chat", "disabled")
		h.reply(w, "slack", http.StatusOK)
		return
	}

	out := h.events.HandleChat(context.WithoutCancel(r.Context()), chatEvent(msg))
	h.logger.Debug("slack event processed", "channel", msg.Channel, "ts", msg.TimeStamp, "outcome", out)
	h.reply(w, "slack", http.StatusOK)
}

// Zendesk handles POST /zendesk/webhook/. Anything past authentication is
// acknowledged with 200; a payload that does not decode is logged and dropped.
func (h *Handler) Zendesk(w http.ResponseWriter, r *http.Request) {
	if !h.authenticateZendesk(r) {
		h.logger.Warn("zendesk webhook credentials mismatch")
		h.reply(w, "zendesk", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		h.logger.Warn("unreadable zendesk webhook body", "error", err)
		h.metrics.Event("ticket", "invalid")
		h.reply(w, "zendesk", http.StatusOK)
		return
	}

	var payload ticketPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("invalid zendesk webhook payload, dropping", "error", err, "body", string(body))
		h.metrics.Event("ticket", "invalid")
		h.reply(w, "zendesk", http.StatusOK)
		return
	}

	if h.config.Disabled {
		h.logger.Info("message processing disabled, dropping zendesk event", "ticket_id", int64(payload.TicketID))
		h.metrics.Event("ticket", "disabled")
		h.reply(w, "zendesk", http.StatusOK)
		return
	}

	ev := protocol.TicketEvent{ExternalID: payload.ExternalID, TicketID: int64(payload.TicketID)}
	out := h.events.HandleTicket(context.WithoutCancel(r.Context()), ev)
	h.logger.Debug("zendesk event processed", "ticket_id", ev.TicketID, "outcome", out)
	h.reply(w, "zendesk", http.StatusOK)
}

func (h *Handler) authenticateZendesk(r *http.Request) bool {
	if h.config.ZendeskUser == "" || h.config.ZendeskToken == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	// Evaluate both so timing does not reveal which one differs.
	userOK := equal(user, h.config.ZendeskUser)
	passOK := equal(pass, h.config.ZendeskToken)
	return userOK && passOK
}

func (h *Handler) reply(w http.ResponseWriter, source string, status int) {
	h.metrics.Webhook(source, status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusOK {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"error": http.StatusText(status)})
}

// chatEvent converts a Slack message event. Slack sets thread_ts equal to ts
// on a thread root once it has replies; such a message is still a root.
func chatEvent(m *slackevents.MessageEvent) protocol.ChatEvent {
	ev := protocol.ChatEvent{
		ChannelID: m.Channel,
		ChatID:    m.TimeStamp,
		ThreadID:  m.ThreadTimeStamp,
		UserID:    m.User,
		Text:      m.Text,
		SubType:   m.SubType,
		BotID:     m.BotID,
	}
	if ev.ThreadID == ev.ChatID {
		ev.ThreadID = ""
	}
	return ev
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type ticketPayload struct {
	ExternalID string   `json:"external_id"`
	TicketID   ticketID `json:"ticket_id"`
}

// ticketID accepts a JSON number or a numeric string; Zendesk placeholders
// render as strings.
type ticketID int64

func (id *ticketID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	s := string(bytes.Trim(data, `"`))
	if s == "" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("ticket_id %q: %w", s, err)
	}
	*id = ticketID(n)
	return nil
}
