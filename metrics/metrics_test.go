package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCounters(t *testing.T) {
	m := New()

	m.MessageSent("TEXT")
	m.MessageSent("TEXT")
	m.MessageSent("IMAGE")
	m.Push("delivered")
	m.Push("dropped")
	m.ConversationDeleted(3)
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	out := scrape(t, m)
	assert.Contains(t, out, `dmchat_messages_sent_total{type="TEXT"} 2`)
	assert.Contains(t, out, `dmchat_messages_sent_total{type="IMAGE"} 1`)
	assert.Contains(t, out, `dmchat_pushes_total{result="dropped"} 1`)
	assert.Contains(t, out, "dmchat_conversation_deletes_total 1")
	assert.Contains(t, out, "dmchat_hidden_messages_total 3")
	assert.Contains(t, out, "dmchat_ws_connections 1")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageSent("TEXT")
		m.Push("delivered")
		m.Typing()
		m.ConversationDeleted(1)
		m.RateLimited()
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.TrackPresence(func() int { return 1 })
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestHandlerExposesPresenceGauge(t *testing.T) {
	m := New()
	m.TrackPresence(func() int { return 7 })
	m.Typing()

	out := scrape(t, m)
	assert.Contains(t, out, "dmchat_presence_tracked_users 7")
	assert.Contains(t, out, "dmchat_typing_events_total 1")
}
