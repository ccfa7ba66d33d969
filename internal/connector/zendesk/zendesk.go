// Package zendesk adapts github.com/nukosuke/go-zendesk to the bridge's
// ticket gateway: tickets, comments and the authenticated user.
package zendesk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nukosuke/go-zendesk/zendesk"

	"github.com/h1v3-io/zenslack/internal/bridge"
	"github.com/h1v3-io/zenslack/pkg/protocol"
)

// APIError is a non-2xx answer from the Zendesk API.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zendesk: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client implements bridge.TicketGateway.
type Client struct {
	api *zendesk.Client

	mu          sync.Mutex
	requesterID int64
}

var _ bridge.TicketGateway = (*Client)(nil)

type options struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*options)

// WithBaseURL sets the account URL (e.g. https://acme.zendesk.com),
// overriding the one derived from the subdomain.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.httpClient = &http.Client{Timeout: d} }
}

// New creates a client for https://{subdomain}.zendesk.com using API token auth.
func New(subdomain, email, token string, opts ...Option) (*Client, error) {
	o := options{httpClient: &http.Client{Timeout: 15 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}

	api, err := zendesk.NewClient(o.httpClient)
	if err != nil {
		return nil, fmt.Errorf("zendesk: new client: %w", err)
	}
	if o.baseURL != "" {
		err = api.SetEndpointURL(o.baseURL + "/api/v2")
	} else {
		err = api.SetSubdomain(subdomain)
	}
	if err != nil {
		return nil, fmt.Errorf("zendesk: endpoint: %w", err)
	}
	api.SetCredential(zendesk.NewAPITokenCredential(email, token))

	return &Client{api: api}, nil
}

// CreateTicket opens a question ticket requested by the API user on behalf
// of t.RecipientEmail. The Slack link is appended to the description.
func (c *Client) CreateTicket(ctx context.Context, t protocol.NewTicket) (*protocol.Ticket, error) {
	requester, err := c.me(ctx)
	if err != nil {
		return nil, err
	}

	body := t.Description
	if t.LinkBackURL != "" {
		body = fmt.Sprintf("%s\n\nSlack: %s", body, t.LinkBackURL)
	}
	created, err := c.api.CreateTicket(ctx, zendesk.Ticket{
		Type:        "question",
		ExternalID:  t.ExternalID,
		Subject:     t.Subject,
		Comment:     publicComment(body),
		Recipient:   t.RecipientEmail,
		RequesterID: requester,
		AssigneeID:  t.AssigneeID,
		GroupID:     t.GroupID,
	})
	if err != nil {
		return nil, apiError("create ticket", err)
	}
	return toTicket(created), nil
}

// GetTicket fetches a ticket by id.
func (c *Client) GetTicket(ctx context.Context, ticketID int64) (*protocol.Ticket, error) {
	t, err := c.api.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, apiError(fmt.Sprintf("get ticket %d", ticketID), err)
	}
	return toTicket(t), nil
}

// AddComment appends a public comment to a ticket.
func (c *Client) AddComment(ctx context.Context, ticketID int64, body string) error {
	_, err := c.api.UpdateTicket(ctx, ticketID, zendesk.Ticket{Comment: publicComment(body)})
	if err != nil {
		return apiError(fmt.Sprintf("comment on ticket %d", ticketID), err)
	}
	return nil
}

// CloseTicket sets a ticket's status to closed, adding comment in the same
// update when it is not empty. It returns bridge.ErrAlreadyClosed when the
// ticket is closed already, which Zendesk reports as 422 on update.
func (c *Client) CloseTicket(ctx context.Context, ticketID int64, comment string) error {
	t, err := c.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if t.Status == "closed" {
		return fmt.Errorf("zendesk: ticket %d: %w", ticketID, bridge.ErrAlreadyClosed)
	}

	update := zendesk.Ticket{Status: "closed"}
	if comment != "" {
		update.Comment = publicComment(comment)
	}
	_, err = c.api.UpdateTicket(ctx, ticketID, update)
	err = apiError(fmt.Sprintf("close ticket %d", ticketID), err)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity {
		return fmt.Errorf("zendesk: ticket %d: %w", ticketID, bridge.ErrAlreadyClosed)
	}
	return err
}

// ListComments returns every comment of a ticket, page by page. Pages are
// decoded locally to read each comment's via channel.
func (c *Client) ListComments(ctx context.Context, ticketID int64) ([]protocol.TicketComment, error) {
	var out []protocol.TicketComment
	for page := 1; ; page++ {
		path := fmt.Sprintf("/tickets/%d/comments.json?page=%d", ticketID, page)
		raw, err := c.api.Get(ctx, path)
		if err != nil {
			return nil, apiError(fmt.Sprintf("list comments of ticket %d", ticketID), err)
		}

		var p commentsPage
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("zendesk: decode comments of ticket %d: %w", ticketID, err)
		}
		for _, wc := range p.Comments {
			out = append(out, wc.toProtocol())
		}
		if p.NextPage == "" {
			return out, nil
		}
	}
}

// me returns the id of the authenticated API user, cached after the first call.
func (c *Client) me(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requesterID != 0 {
		return c.requesterID, nil
	}

	raw, err := c.api.Get(ctx, "/users/me.json")
	if err != nil {
		return 0, apiError("get current user", err)
	}
	var resp struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("zendesk: decode current user: %w", err)
	}
	c.requesterID = resp.User.ID
	return c.requesterID, nil
}

// apiError converts go-zendesk's response error into *APIError and wraps
// everything else.
func apiError(op string, err error) error {
	if err == nil {
		return nil
	}
	var zerr zendesk.Error
	if errors.As(err, &zerr) {
		return &APIError{Op: op, StatusCode: zerr.Status(), Body: zerr.Error()}
	}
	return fmt.Errorf("zendesk: %s: %w", op, err)
}

func publicComment(body string) *zendesk.TicketComment {
	public := true
	return &zendesk.TicketComment{Body: body, Public: &public}
}

func toTicket(t zendesk.Ticket) *protocol.Ticket {
	return &protocol.Ticket{
		ID:         t.ID,
		ExternalID: t.ExternalID,
		Subject:    t.Subject,
		Status:     t.Status,
	}
}

type commentsPage struct {
	Comments []wireComment `json:"comments"`
	NextPage string        `json:"next_page"`
}

type wireComment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Public    *bool     `json:"public"`
	CreatedAt time.Time `json:"created_at"`
	Via       struct {
		Channel string `json:"channel"`
	} `json:"via"`
}

func (c wireComment) toProtocol() protocol.TicketComment {
	return protocol.TicketComment{
		ID:        c.ID,
		Body:      c.Body,
		Via:       c.Via.Channel,
		Public:    c.Public == nil || *c.Public,
		CreatedAt: c.CreatedAt.UTC(),
	}
}
