package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/44dummies/tradermind-server-sub000/application/services/orchestrator"
	"github.com/44dummies/tradermind-server-sub000/internal/adapters/notification"
)

type fakeBot struct {
	state     orchestrator.State
	emergency bool
	reason    string
	startErr  error
}

func (f *fakeBot) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	if f.emergency {
		return orchestrator.ErrEmergencyLatch
	}
	f.state = orchestrator.StateRunning
	return nil
}

func (f *fakeBot) Stop(reason string) error {
	if f.state != orchestrator.StateRunning {
		return orchestrator.ErrNotRunning
	}
	f.state = orchestrator.StateStopped
	f.reason = reason
	return nil
}

func (f *fakeBot) EmergencyStop(reason string) {
	f.emergency = true
	f.state = orchestrator.StateEmergency
	f.reason = reason
}

func (f *fakeBot) ResetEmergency() bool {
	if !f.emergency {
		return false
	}
	f.emergency = false
	f.state = orchestrator.StateStopped
	return true
}

func (f *fakeBot) Status() orchestrator.Status {
	return orchestrator.Status{State: f.state, Emergency: f.emergency, Reason: f.reason}
}

type component struct {
	name string
	ok   bool
}

func (c component) Name() string      { return c.name }
func (c component) HealthCheck() bool { return c.ok }

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := httptest.NewServer(NewServer(deps).Router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, payload interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(payload))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthReportsComponents(t *testing.T) {
	srv := newTestServer(t, Deps{
		Components: []HealthChecker{component{"Broker", true}, component{"PostgreSQL", false}},
		Mode:       func() string { return "direct" },
	})

	var body struct {
		Status     string          `json:"status"`
		BrokerMode string          `json:"broker_mode"`
		Components map[string]bool `json:"components"`
	}
	code := doJSON(t, http.MethodGet, srv.URL+"/health", nil, &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "direct", body.BrokerMode)
	assert.Equal(t, map[string]bool{"Broker": true, "PostgreSQL": false}, body.Components)
}

func TestBotControlRoutes(t *testing.T) {
	bot := &fakeBot{state: orchestrator.StateStopped}
	srv := newTestServer(t, Deps{
		Bot:   bot,
		Stats: map[string]StatsFunc{"workers": func() interface{} { return map[string]int{"db_worker": 1} }},
	})

	var st orchestrator.Status
	assert.Equal(t, http.StatusConflict, doJSON(t, http.MethodPost, srv.URL+"/bot/stop", nil, nil))
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/bot/start", nil, &st))
	assert.Equal(t, orchestrator.StateRunning, st.State)

	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/bot/stop", reasonRequest{Reason: "maintenance"}, &st))
	assert.Equal(t, "maintenance", st.Reason)

	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/bot/emergency-stop", nil, &st))
	assert.True(t, st.Emergency)
	assert.Equal(t, "emergency_api", st.Reason)
	assert.Equal(t, http.StatusConflict, doJSON(t, http.MethodPost, srv.URL+"/bot/start", nil, nil))

	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/bot/reset", nil, &st))
	assert.Equal(t, orchestrator.StateStopped, st.State)
	assert.Equal(t, http.StatusConflict, doJSON(t, http.MethodPost, srv.URL+"/bot/reset", nil, nil))

	var status map[string]json.RawMessage
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/status", nil, &status))
	assert.Contains(t, status, "bot")
	assert.JSONEq(t, `{"db_worker":1}`, string(status["workers"]))
}

func TestStartWithoutSessionIsPreconditionFailed(t *testing.T) {
	bot := &fakeBot{startErr: orchestrator.ErrNoActiveSession}
	srv := newTestServer(t, Deps{Bot: bot})

	var body errorResponse
	assert.Equal(t, http.StatusPreconditionFailed, doJSON(t, http.MethodPost, srv.URL+"/bot/start", nil, &body))
	assert.Contains(t, body.Error, "no active session")
}

func TestWebSocketRegistersUser(t *testing.T) {
	hub := notification.NewHub()
	srv := newTestServer(t, Deps{Hub: hub})

	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet, srv.URL+"/ws", nil, nil))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user_id=alice"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Connected("alice") == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Push(context.Background(), notification.Message{ID: "n-1", UserID: "alice", Title: "hi"}))

	var got notification.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "n-1", got.ID)
}
