package progress

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entropy-gateway/internal/shared/opcache"
)

func wsEnv(t *testing.T) (*opcache.Tracker, *websocket.Conn) {
	t.Helper()

	tracker := opcache.NewTracker(opcache.DefaultSafetyTimeout)
	t.Cleanup(tracker.Close)

	h := NewWSHandler(tracker)
	t.Cleanup(h.Close)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return tracker, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWSHandler_InitialSnapshot(t *testing.T) {
	_, conn := wsEnv(t)

	msg := readMessage(t, conn)
	assert.Equal(t, "progress", msg.Type)
	assert.False(t, msg.Data.Loading)
	assert.Equal(t, 0, msg.Data.Pending)
}

func TestWSHandler_BroadcastsTrackerChanges(t *testing.T) {
	tracker, conn := wsEnv(t)

	// 初始快照
	readMessage(t, conn)

	id := tracker.Start("分析代码中...", "")

	msg := readMessage(t, conn)
	assert.True(t, msg.Data.Loading)
	assert.Equal(t, "分析代码中...", msg.Data.Message)
	assert.Equal(t, 1, msg.Data.Pending)

	tracker.UpdateProgress(id, 60)

	msg = readMessage(t, conn)
	assert.Equal(t, 60, msg.Data.Progress)

	tracker.Stop(id)

	msg = readMessage(t, conn)
	assert.False(t, msg.Data.Loading)
	assert.Equal(t, 0, msg.Data.Pending)
}

func TestWSHandler_MultipleClients(t *testing.T) {
	tracker := opcache.NewTracker(opcache.DefaultSafetyTimeout)
	t.Cleanup(tracker.Close)

	h := NewWSHandler(tracker)
	t.Cleanup(h.Close)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress"

	var conns []*websocket.Conn
	for i := 0; i < 3; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		readMessage(t, conn) // 消费初始快照
		conns = append(conns, conn)
	}

	tracker.Start("上传中...", "op-1")

	for _, conn := range conns {
		msg := readMessage(t, conn)
		assert.True(t, msg.Data.Loading)
		assert.Equal(t, "上传中...", msg.Data.Message)
	}
}
