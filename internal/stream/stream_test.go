package stream

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logsieve/logsieve/internal/accesslog"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubscribeAndPublish(t *testing.T) {
	hub := NewHub(discard())
	ch, cancel := hub.Subscribe()
	defer cancel()

	assert.Equal(t, 1, hub.SubscriberCount())

	hub.PublishBatch(
		[]accesslog.Record{{Method: "GET", URL: "/x", StatusCode: 200}},
		[]accesslog.Verdict{{IsAttack: true, AttackScore: 0.9, AttackType: "xss"}},
	)

	select {
	case ev := <-ch:
		assert.Equal(t, "/x", ev.URL)
		assert.True(t, ev.IsAttack)
		assert.Equal(t, "xss", ev.AttackType)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestCancelUnsubscribes(t *testing.T) {
	hub := NewHub(discard())
	_, cancel := hub.Subscribe()
	cancel()
	assert.Equal(t, 0, hub.SubscriberCount())
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub(discard())
	ch, cancel := hub.Subscribe()
	defer cancel()

	records := []accesslog.Record{{URL: "/x"}}
	verdicts := []accesslog.Verdict{{}}
	for i := 0; i < 100; i++ {
		hub.PublishBatch(records, verdicts)
	}

	// The channel buffer caps what a stalled reader can accumulate; the
	// publisher must not have blocked to get here.
	assert.LessOrEqual(t, len(ch), 64)
}

func TestHandleWS(t *testing.T) {
	hub := NewHub(discard())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the subscription to register before publishing.
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		time.Second, 10*time.Millisecond)

	hub.PublishBatch(
		[]accesslog.Record{{Method: "GET", URL: "/attack", StatusCode: 200}},
		[]accesslog.Verdict{{IsAttack: true, AttackScore: 0.8, AttackType: "ssrf_rfi"}},
	)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "/attack", ev.URL)
	assert.Equal(t, "ssrf_rfi", ev.AttackType)
}
