package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/h1v3-io/zenslack/internal/bridge"
)

// Config is the top-level zenslack configuration.
type Config struct {
	Slack   SlackConfig   `json:"slack"`
	Zendesk ZendeskConfig `json:"zendesk"`
	API     APIConfig     `json:"api"`
	DataDir string        `json:"data_dir"`

	// DisableProcessing acknowledges webhooks without acting on them.
	DisableProcessing bool `json:"disable_message_processing,omitempty"`
	Debug             bool `json:"debug,omitempty"`
}

// SlackConfig holds Slack app settings.
type SlackConfig struct {
	BotToken          string `json:"bot_token"`
	VerificationToken string `json:"verification_token"`
	WorkspaceURI      string `json:"workspace_uri"` // e.g. https://acme.slack.com/archives
	SupportChannel    string `json:"support_channel"`
	APIURL            string `json:"api_url,omitempty"`
}

// ZendeskConfig holds Zendesk API and webhook settings.
type ZendeskConfig struct {
	Email          string `json:"email"`
	Token          string `json:"token"`
	Subdomain      string `json:"subdomain"`
	BaseURL        string `json:"base_url,omitempty"`
	TicketURI      string `json:"ticket_uri"` // e.g. https://acme.zendesk.com/agent/tickets
	AssigneeID     int64  `json:"assignee_id,omitempty"`
	GroupID        int64  `json:"group_id,omitempty"`
	WebhookUser    string `json:"webhook_user,omitempty"`
	WebhookToken   string `json:"webhook_token,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"` // default 15
}

// Timeout returns the HTTP timeout for Zendesk API calls.
func (z ZendeskConfig) Timeout() time.Duration {
	if z.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(z.TimeoutSeconds) * time.Second
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Config{API: APIConfig{Host: "0.0.0.0", Port: 8080}}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds the config from environment variables after loading
// envFiles (".env" when none are given). Missing env files are ignored and
// variables already set in the environment win over the files.
func LoadFromEnv(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load env file: %w", err)
	}

	var errs []string
	cfg := &Config{
		Slack: SlackConfig{
			BotToken:          os.Getenv("SLACK_BOT_USER_TOKEN"),
			VerificationToken: os.Getenv("SLACK_VERIFICATION_TOKEN"),
			WorkspaceURI:      os.Getenv("SLACK_WORKSPACE_URI"),
			SupportChannel:    os.Getenv("SRE_SUPPORT_CHANNEL"),
			APIURL:            os.Getenv("SLACK_API_URL"),
		},
		Zendesk: ZendeskConfig{
			Email:          os.Getenv("ZENDESK_EMAIL"),
			Token:          os.Getenv("ZENDESK_TOKEN"),
			Subdomain:      os.Getenv("ZENDESK_SUBDOMAIN"),
			BaseURL:        os.Getenv("ZENDESK_BASE_URL"),
			TicketURI:      os.Getenv("ZENDESK_TICKET_URI"),
			AssigneeID:     getenvInt64("ZENDESK_USER_ID", &errs),
			GroupID:        getenvInt64("ZENDESK_GROUP_ID", &errs),
			WebhookUser:    os.Getenv("ZENDESK_WEBHOOK_USER"),
			WebhookToken:   os.Getenv("ZENDESK_WEBHOOK_TOKEN"),
			TimeoutSeconds: getenvInt("ZENDESK_TIMEOUT_SECONDS", 0),
		},
		API: APIConfig{
			Host: getenv("API_HOST", "0.0.0.0"),
			Port: getenvInt("API_PORT", 8080),
			Key:  os.Getenv("API_KEY"),
		},
		DataDir:           getenv("DATA_DIR", "/data"),
		DisableProcessing: getenvBool("DISABLE_MESSAGE_PROCESSING"),
		Debug:             getenvBool("DEBUG_ENABLED"),
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for required fields.
func (c *Config) Validate() error {
	var errs []string

	if c.Slack.BotToken == "" {
		errs = append(errs, "slack.bot_token is required")
	}
	if c.Slack.VerificationToken == "" {
		errs = append(errs, "slack.verification_token is required")
	}
	if c.Slack.WorkspaceURI == "" {
		errs = append(errs, "slack.workspace_uri is required")
	}
	if c.Slack.SupportChannel == "" {
		errs = append(errs, "slack.support_channel is required")
	}

	if c.Zendesk.Email == "" {
		errs = append(errs, "zendesk.email is required")
	}
	if c.Zendesk.Token == "" {
		errs = append(errs, "zendesk.token is required")
	}
	if c.Zendesk.Subdomain == "" && c.Zendesk.BaseURL == "" {
		errs = append(errs, "zendesk.subdomain or zendesk.base_url is required")
	}
	if c.Zendesk.TicketURI == "" {
		errs = append(errs, "zendesk.ticket_uri is required")
	}
	if (c.Zendesk.WebhookUser == "") != (c.Zendesk.WebhookToken == "") {
		errs = append(errs, "zendesk.webhook_user and zendesk.webhook_token must be set together")
	}

	if c.DataDir == "" {
		errs = append(errs, "data_dir is required")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d is out of range", c.API.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Bridge returns the settings shared by the dispatcher and reconciler.
func (c *Config) Bridge() bridge.Config {
	return bridge.Config{
		MonitoredChannel: c.Slack.SupportChannel,
		WorkspaceURI:     c.Slack.WorkspaceURI,
		TicketURI:        c.Zendesk.TicketURI,
		AssigneeID:       c.Zendesk.AssigneeID,
		GroupID:          c.Zendesk.GroupID,
	}
}

// Secrets returns the configured credentials, for log masking.
func (c *Config) Secrets() []string {
	var out []string
	for _, s := range []string{c.Slack.BotToken, c.Slack.VerificationToken, c.Zendesk.Token, c.Zendesk.WebhookToken, c.API.Key} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvInt64(key string, errs *[]string) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return 0
	}
	return n
}

func getenvBool(key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return b
}
