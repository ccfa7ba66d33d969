package slackconn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSlack struct {
	mu     sync.Mutex
	posted []map[string]string
}

func (f *fakeSlack) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth.test", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true, "user": "zenbot", "team": "acme", "user_id": "UBOT"})
	})
	mux.HandleFunc("/users.info", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.Form.Get("user") != "U001" {
			writeJSON(w, map[string]any{"ok": false, "error": "user_not_found"})
			return
		}
		writeJSON(w, map[string]any{"ok": true, "user": map[string]any{
			"id":        "U001",
			"real_name": "Ada Lovelace",
			"profile":   map[string]any{"email": "ada@example.com", "display_name": "ada"},
		}})
	})
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.posted = append(f.posted, map[string]string{
			"channel":   r.Form.Get("channel"),
			"text":      r.Form.Get("text"),
			"thread_ts": r.Form.Get("thread_ts"),
		})
		f.mu.Unlock()
		writeJSON(w, map[string]any{"ok": true, "channel": r.Form.Get("channel"), "ts": "999.000001"})
	})
	mux.HandleFunc("/conversations.replies", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.Form.Get("cursor") == "" {
			writeJSON(w, map[string]any{
				"ok":       true,
				"has_more": true,
				"messages": []map[string]any{
					{"type": "message", "user": "U001", "text": "root", "ts": "1598459584.013100"},
					{"type": "message", "bot_id": "B1", "text": "Hello, your new support request is x", "ts": "1598459585.000100"},
				},
				"response_metadata": map[string]any{"next_cursor": "page2"},
			})
			return
		}
		writeJSON(w, map[string]any{
			"ok":       true,
			"has_more": false,
			"messages": []map[string]any{
				{"type": "message", "user": "U002", "text": "(Zendesk): hi", "ts": "1598459590.000000"},
				{"type": "message", "user": "U002", "text": "broken", "ts": "not-a-ts"},
			},
		})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newTestGateway(t *testing.T) (*Gateway, *fakeSlack) {
	t.Helper()
	fake := &fakeSlack{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	g, err := New(Config{BotToken: "xoxb-test", APIURL: srv.URL + "/", Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	return g, fake
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestNew_AuthTest(t *testing.T) {
	g, _ := newTestGateway(t)
	assert.Equal(t, "UBOT", g.BotUserID())
}

func TestGetUser(t *testing.T) {
	g, _ := newTestGateway(t)

	u, err := g.GetUser(context.Background(), "U001")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", u.DisplayName)
	assert.Equal(t, "ada@example.com", u.Email)

	_, err = g.GetUser(context.Background(), "U404")
	assert.ErrorContains(t, err, "user_not_found")
}

func TestPostMessage(t *testing.T) {
	g, fake := newTestGateway(t)

	require.NoError(t, g.PostMessage(context.Background(), "C001", "100.1", "in thread"))
	require.NoError(t, g.PostMessage(context.Background(), "C001", "", "top level"))

	require.Len(t, fake.posted, 2)
	assert.Equal(t, map[string]string{"channel": "C001", "text": "in thread", "thread_ts": "100.1"}, fake.posted[0])
	assert.Equal(t, "", fake.posted[1]["thread_ts"])
}

func TestThreadMessages_Paginates(t *testing.T) {
	g, _ := newTestGateway(t)

	msgs, err := g.ThreadMessages(context.Background(), "C001", "1598459584.013100")
	require.NoError(t, err)
	require.Len(t, msgs, 3, "message with a bad ts is skipped")
	assert.Equal(t, "root", msgs[0].Text)
	assert.Equal(t, "B1", msgs[1].BotID)
	assert.Equal(t, "(Zendesk): hi", msgs[2].Text)
	assert.Equal(t, int64(1598459584), msgs[0].CreatedAt.Unix())
}

func TestUserProfile_NameFallbacks(t *testing.T) {
	u := &slack.User{ID: "U9"}
	assert.Equal(t, "U9", userProfile(u).DisplayName)

	u.Profile.DisplayName = "nine"
	assert.Equal(t, "nine", userProfile(u).DisplayName)

	u.Profile.RealName = "Nine Nines"
	assert.Equal(t, "Nine Nines", userProfile(u).DisplayName)

	u.RealName = "Top Level"
	assert.Equal(t, "Top Level", userProfile(u).DisplayName)
}
