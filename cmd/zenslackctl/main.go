package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/h1v3-io/zenslack/internal/config"
	"github.com/h1v3-io/zenslack/internal/logbuf"
	"github.com/h1v3-io/zenslack/pkg/protocol"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "health":
		cmdHealth()
	case "links":
		if len(os.Args) < 3 || os.Args[2] != "list" {
			fmt.Fprintln(os.Stderr, "usage: zenslackctl links list [--status open|resolved] [--channel C..] [--limit N]")
			os.Exit(1)
		}
		cmdLinksList(os.Args[3:])
	case "logs":
		cmdLogs(os.Args[2:])
	case "config":
		if len(os.Args) < 3 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: zenslackctl config validate [path]")
			os.Exit(1)
		}
		path := ""
		if len(os.Args) > 3 {
			path = os.Args[3]
		}
		cmdConfigValidate(path)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func cmdHealth() {
	body, err := apiGet("/api/health", nil)
	if err != nil {
		fail(err)
	}
	fmt.Println(string(body))
}

func cmdLinksList(args []string) {
	fs := flag.NewFlagSet("links list", flag.ExitOnError)
	status := fs.String("status", "", "Filter by status (open|resolved)")
	channel := fs.String("channel", "", "Filter by Slack channel id")
	limit := fs.Int("limit", 50, "Max results")
	fs.Parse(args)

	q := url.Values{"limit": {strconv.Itoa(*limit)}}
	if *status != "" {
		q.Set("status", *status)
	}
	if *channel != "" {
		q.Set("channel", *channel)
	}

	body, err := apiGet("/api/links", q)
	if err != nil {
		fail(err)
	}
	var links []protocol.TicketLink
	if err := json.Unmarshal(body, &links); err != nil {
		fail(fmt.Errorf("decode links: %w", err))
	}
	for _, l := range links {
		fmt.Printf("%-10d %-9s %-12s %-20s %s\n",
			l.TicketID, l.Status, l.ChannelID, l.ChatID, l.UpdatedAt.Format(time.RFC3339))
	}
}

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	level := fs.String("level", "info", "Minimum level (debug|info|warn|error)")
	component := fs.String("component", "", "Filter by component (dispatcher, reconciler, webhook, ...)")
	limit := fs.Int("limit", 100, "Max entries")
	since := fs.Duration("since", 0, "Only entries newer than this (e.g. 15m)")
	fs.Parse(args)

	q := url.Values{
		"level": {*level},
		"limit": {strconv.Itoa(*limit)},
	}
	if *component != "" {
		q.Set("component", *component)
	}
	if *since > 0 {
		q.Set("since", strconv.FormatInt(time.Now().Add(-*since).UnixMilli(), 10))
	}

	body, err := apiGet("/api/logs", q)
	if err != nil {
		fail(err)
	}
	var entries []logbuf.Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		fail(fmt.Errorf("decode logs: %w", err))
	}
	for _, e := range entries {
		attrs := ""
		if len(e.Attrs) > 0 {
			b, _ := json.Marshal(e.Attrs)
			attrs = string(b)
		}
		fmt.Printf("%s %-5s %-11s %s %s\n", e.Time.Format(time.RFC3339), e.Level, e.Component, e.Message, attrs)
	}
}

func cmdConfigValidate(path string) {
	var err error
	if path != "" {
		_, err = config.Load(path)
	} else {
		_, err = config.LoadFromEnv()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func apiGet(path string, q url.Values) ([]byte, error) {
	u := envOr("ZENSLACK_API_URL", "http://localhost:8080") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if key := os.Getenv("API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println("zenslackctl - Slack/Zendesk bridge operator CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  health                 Check daemon health")
	fmt.Println("  links list             List thread/ticket links (--status, --channel, --limit)")
	fmt.Println("  logs                   Show recent daemon logs (--level, --component, --limit, --since)")
	fmt.Println("  config validate [p]    Validate a config file, or the environment when p is omitted")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  ZENSLACK_API_URL   Daemon URL (default: http://localhost:8080)")
	fmt.Println("  API_KEY            API key for authentication")
}
