package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()

	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *gorilla.Conn {
	t.Helper()
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestHubWelcomesAndBroadcasts(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	var welcome Message
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, MessageTypeWelcome, welcome.Type)
	assert.Equal(t, 1, hub.GetClientCount())

	msg := NewMessage(MessageTypeShiftChanged, map[string]string{"status": "active"})
	msg.MachineID = "MACHINE_001"
	msg.ShiftID = "M1_S7"
	require.True(t, hub.Broadcast(msg))

	var got Message
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, MessageTypeShiftChanged, got.Type)
	assert.Equal(t, "M1_S7", got.ShiftID)
	assert.Equal(t, map[string]any{"status": "active"}, got.Data)
}

func TestHubUnregistersClosedClient(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	var welcome Message
	require.NoError(t, conn.ReadJSON(&welcome))
	conn.Close()

	assert.Eventually(t, func() bool { return hub.GetClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}
