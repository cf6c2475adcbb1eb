package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNotifier struct {
	name    string
	enabled bool
	err     error
	got     []Message
}

func (s *stubNotifier) Push(_ context.Context, msg Message) error {
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, msg)
	return nil
}
func (s *stubNotifier) Name() string                     { return s.name }
func (s *stubNotifier) IsEnabled() bool                  { return s.enabled }
func (s *stubNotifier) GetStats() map[string]interface{} { return nil }

func TestCompositeSucceedsWhenAnyChannelDelivers(t *testing.T) {
	broken := &stubNotifier{name: "broken", enabled: true, err: errors.New("boom")}
	ok := &stubNotifier{name: "ok", enabled: true}
	off := &stubNotifier{name: "off"}

	c := NewCompositeNotificationService(broken, ok, off)
	require.NoError(t, c.Push(context.Background(), Message{UserID: "u1", Title: "hi"}))
	assert.Len(t, ok.got, 1)
	assert.Empty(t, off.got)

	stats := c.GetStats()
	assert.Equal(t, 1, stats["successful"])
}

func TestCompositeFailsWhenNothingDelivers(t *testing.T) {
	broken := &stubNotifier{name: "broken", enabled: true, err: errors.New("boom")}
	c := NewCompositeNotificationService(broken)

	err := c.Push(context.Background(), Message{UserID: "u1"})
	assert.ErrorContains(t, err, "boom")

	empty := NewCompositeNotificationService()
	assert.ErrorIs(t, empty.Push(context.Background(), Message{UserID: "u1"}), ErrNoRecipient)
	assert.False(t, empty.HealthCheck())

	c.SetEnabled(false)
	assert.ErrorIs(t, c.Push(context.Background(), Message{}), ErrDisabled)
}

func TestHubPushesToConnectedUser(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r, r.URL.Query().Get("user_id"))
	}))
	defer srv.Close()

	assert.ErrorIs(t, hub.Push(context.Background(), Message{UserID: "u1"}), ErrNoRecipient)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user_id=u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Connected("u1") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Push(context.Background(), Message{ID: "n1", UserID: "u1", Title: "Trade closed"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "n1", got.ID)
	assert.Equal(t, "Trade closed", got.Title)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connected("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBuildFCMMessage(t *testing.T) {
	m := buildFCMMessage(Message{
		ID:     "n1",
		UserID: "u9",
		Type:   "trade.closed",
		Title:  "Closed",
		Body:   "won 2.00",
		Data:   map[string]interface{}{"profit": 2.5},
	})
	assert.Equal(t, "user_u9", m.Topic)
	assert.Equal(t, "Closed", m.Notification.Title)
	assert.Equal(t, "2.5", m.Data["profit"])
	assert.Equal(t, "trade.closed", m.Data["type"])
}
