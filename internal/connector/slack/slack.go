package slackconn

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"github.com/h1v3-io/zenslack/internal/bridge"
	"github.com/h1v3-io/zenslack/pkg/protocol"
)

// Config holds Slack Web API configuration.
type Config struct {
	BotToken string        // xoxb-... Bot User OAuth Token
	APIURL   string        // Optional: override https://slack.com/api/ (tests)
	Timeout  time.Duration // Per-request timeout, default 15s
}

// Gateway implements bridge.ChatGateway over the Slack Web API.
type Gateway struct {
	api    *slack.Client
	logger *slog.Logger
	botID  string
}

var _ bridge.ChatGateway = (*Gateway)(nil)

// New creates a Slack gateway and verifies the bot token.
func New(cfg Config, logger *slog.Logger) (*Gateway, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	opts := []slack.Option{
		slack.OptionHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	api := slack.New(cfg.BotToken, opts...)

	// Test auth and get bot user ID
	authResp, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack: auth test: %w", err)
	}

	logger.Info("slack bot authorized", "user", authResp.User, "team", authResp.Team)

	return &Gateway{
		api:    api,
		logger: logger,
		botID:  authResp.UserID,
	}, nil
}

// BotUserID returns the user id of the bot the token belongs to.
func (g *Gateway) BotUserID() string { return g.botID }

// GetUser fetches a user's display name and email.
func (g *Gateway) GetUser(ctx context.Context, userID string) (*protocol.UserProfile, error) {
	g.logger.Debug("recovering profile for user", "user", userID)
	u, err := g.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("slack: users.info %s: %w", userID, err)
	}
	return userProfile(u), nil
}

// PostMessage posts text to a channel, in the thread rooted at threadID when set.
func (g *Gateway) PostMessage(ctx context.Context, channelID, threadID, text string) error {
	opts := []slack.MsgOption{
		slack.MsgOptionText(text, false),
	}
	if threadID != "" {
		opts = append(opts, slack.MsgOptionTS(threadID))
	}

	_, _, err := g.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return fmt.Errorf("slack: send message: %w", err)
	}
	return nil
}

// ThreadMessages returns every message of the thread rooted at rootID, root
// first, following pagination cursors.
func (g *Gateway) ThreadMessages(ctx context.Context, channelID, rootID string) ([]protocol.ChatMessage, error) {
	params := &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: rootID,
		Limit:     200,
	}

	var out []protocol.ChatMessage
	for {
		msgs, hasMore, cursor, err := g.api.GetConversationRepliesContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("slack: conversations.replies %s/%s: %w", channelID, rootID, err)
		}
		for _, m := range msgs {
			cm, err := chatMessage(m)
			if err != nil {
				g.logger.Warn("skipping thread message with bad timestamp", "ts", m.Timestamp, "error", err)
				continue
			}
			out = append(out, cm)
		}
		if !hasMore || cursor == "" {
			return out, nil
		}
		params.Cursor = cursor
	}
}

func userProfile(u *slack.User) *protocol.UserProfile {
	name := u.RealName
	if name == "" {
		name = u.Profile.RealName
	}
	if name == "" {
		name = u.Profile.DisplayName
	}
	if name == "" {
		name = u.ID
	}
	return &protocol.UserProfile{
		ID:          u.ID,
		DisplayName: name,
		Email:       u.Profile.Email,
	}
}

func chatMessage(m slack.Message) (protocol.ChatMessage, error) {
	created, err := bridge.ParseSlackTS(m.Timestamp)
	if err != nil {
		return protocol.ChatMessage{}, err
	}
	return protocol.ChatMessage{
		ID:        m.Timestamp,
		UserID:    m.User,
		BotID:     m.BotID,
		Text:      m.Text,
		CreatedAt: created,
	}, nil
}
