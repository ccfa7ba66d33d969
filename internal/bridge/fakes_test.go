package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/h1v3-io/zenslack/internal/link"
	"github.com/h1v3-io/zenslack/pkg/protocol"
)

var errGateway = errors.New("gateway unavailable")

type postedMessage struct {
	ChannelID string
	ThreadID  string
	Text      string
}

// fakeChat records every Slack call.
type fakeChat struct {
	mu       sync.Mutex
	users    map[string]*protocol.UserProfile
	threads  map[string][]protocol.ChatMessage
	posted   []postedMessage
	calls    int
	failPost func(text string) bool
	userErr  error
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		users: map[string]*protocol.UserProfile{
			"U001": {ID: "U001", DisplayName: "Ada Lovelace", Email: "ada@example.com"},
		},
		threads: make(map[string][]protocol.ChatMessage),
	}
}

func (f *fakeChat) GetUser(_ context.Context, userID string) (*protocol.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.userErr != nil {
		return nil, f.userErr
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, errors.New("user_not_found")
	}
	return u, nil
}

func (f *fakeChat) PostMessage(_ context.Context, channelID, threadID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failPost != nil && f.failPost(text) {
		return errGateway
	}
	f.posted = append(f.posted, postedMessage{ChannelID: channelID, ThreadID: threadID, Text: text})
	return nil
}

func (f *fakeChat) ThreadMessages(_ context.Context, channelID, rootID string) ([]protocol.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.threads[channelID+"/"+rootID], nil
}

func (f *fakeChat) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.posted))
	for i, p := range f.posted {
		out[i] = p.Text
	}
	return out
}

// fakeTickets is an in-memory Zendesk.
type fakeTickets struct {
	mu       sync.Mutex
	nextID   int64
	tickets  map[int64]*protocol.Ticket
	created  []protocol.NewTicket
	comments map[int64][]string
	listed   map[int64][]protocol.TicketComment
	closes   int
	calls    int
	closeErr error
}

func newFakeTickets() *fakeTickets {
	return &fakeTickets{
		nextID:   100,
		tickets:  make(map[int64]*protocol.Ticket),
		comments: make(map[int64][]string),
		listed:   make(map[int64][]protocol.TicketComment),
	}
}

func (f *fakeTickets) CreateTicket(_ context.Context, nt protocol.NewTicket) (*protocol.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.nextID++
	t := &protocol.Ticket{ID: f.nextID, ExternalID: nt.ExternalID, Subject: nt.Subject, Status: "new"}
	f.tickets[t.ID] = t
	f.created = append(f.created, nt)
	return t, nil
}

func (f *fakeTickets) GetTicket(_ context.Context, id int64) (*protocol.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	t, ok := f.tickets[id]
	if !ok {
		return nil, errors.New("ticket not found")
	}
	return t, nil
}

func (f *fakeTickets) AddComment(_ context.Context, id int64, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if t, ok := f.tickets[id]; ok && t.Status == "closed" {
		return errors.New("status: closed prevents ticket update")
	}
	f.comments[id] = append(f.comments[id], body)
	return nil
}

func (f *fakeTickets) CloseTicket(_ context.Context, id int64, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.closes++
	if f.closeErr != nil {
		return f.closeErr
	}
	t, ok := f.tickets[id]
	if !ok {
		return errors.New("ticket not found")
	}
	if t.Status == "closed" {
		return ErrAlreadyClosed
	}
	t.Status = "closed"
	if comment != "" {
		f.comments[id] = append(f.comments[id], comment)
	}
	return nil
}

func (f *fakeTickets) ListComments(_ context.Context, id int64) ([]protocol.TicketComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.listed[id], nil
}

func (f *fakeTickets) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestLinks(t *testing.T) *link.SQLiteStore {
	t.Helper()
	s, err := link.NewSQLiteStore(filepath.Join(t.TempDir(), "links.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testConfig = Config{
	MonitoredChannel: "C0SUPPORT",
	WorkspaceURI:     "https://acme.slack.com/archives",
	TicketURI:        "https://acme.zendesk.com/agent/tickets/",
	AssigneeID:       7,
	GroupID:          8,
}
