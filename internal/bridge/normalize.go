package bridge

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	slackMarker   = "(Slack):"
	zendeskMarker = "(Zendesk):"
)

// ParseSlackTS converts a Slack message timestamp ("1598459584.013100") to a UTC time.
func ParseSlackTS(ts string) (time.Time, error) {
	secs, frac, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bridge: invalid slack ts %q", ts)
	}
	var usec int64
	if frac != "" {
		frac = (frac + "000000")[:6]
		usec, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("bridge: invalid slack ts %q", ts)
		}
	}
	return time.Unix(sec, usec*int64(time.Microsecond)).UTC(), nil
}

// MessageURL builds the archive link of a Slack message: the ts loses its dot
// and gains a "p" prefix.
func MessageURL(workspaceURI, channelID, ts string) string {
	return fmt.Sprintf("%s/%s/p%s", strings.TrimRight(workspaceURI, "/"), channelID, strings.ReplaceAll(ts, ".", ""))
}

// TicketURL joins the ticket base URI and id, with or without a trailing slash on the base.
func TicketURL(ticketURI string, ticketID int64) string {
	return strings.TrimRight(ticketURI, "/") + "/" + strconv.FormatInt(ticketID, 10)
}

// NormalizeCommand lowercases and trims a message so it can be compared against command literals.
func NormalizeCommand(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// StripMirrorMarker removes everything up to and including the last
// "(Zendesk):" marker, leaving the mirrored comment body.
func StripMirrorMarker(text string) string {
	if i := strings.LastIndex(text, zendeskMarker); i >= 0 {
		text = text[i+len(zendeskMarker):]
	}
	return strings.TrimSpace(text)
}

// SlackComment formats a Slack reply as a ticket comment.
func SlackComment(displayName, text string) string {
	return fmt.Sprintf("%s %s %s", displayName, slackMarker, text)
}

// ZendeskMessage formats a ticket comment as a Slack thread message.
func ZendeskMessage(body string) string {
	return zendeskMarker + " " + body
}
