package telemetry

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestWSRecorderBroadcasts(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	server := httptest.NewServer(hub)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// registration finishes on the server side after the dial returns
	deadline := time.Now().Add(2 * time.Second)
	for hub.NumClients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, hub.NumClients())

	recorder := NewWSRecorder(hub)
	recorder.Log("training_loss", 0.25)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var env MetricEnvelope
	require.NoError(t, json.Unmarshal(payload, &env))
	require.Equal(t, "metric", env.Type)
	require.Equal(t, "training_loss", env.Name)
	require.InDelta(t, 0.25, env.Value, 1e-12)
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.Log("anything", 1) // must not panic or block
}
