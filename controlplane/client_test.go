package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speechbot/core"
	"speechbot/protocol"
)

type received struct {
	msgType protocol.MessageType
	raw     []byte
}

func controlPlaneStub(t *testing.T, inbox chan<- received, outbox <-chan []byte) string {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		go func() {
			for data := range outbox {
				conn.WriteMessage(websocket.TextMessage, data)
			}
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgType, raw, err := protocol.Unmarshal(data)
			require.NoError(t, err)
			inbox <- received{msgType: msgType, raw: raw}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func next(t *testing.T, inbox <-chan received, want protocol.MessageType) received {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case m := <-inbox:
			if m.msgType == want {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestClientRegistersHeartbeatsAndShipsLogs(t *testing.T) {
	inbox := make(chan received, 64)
	outbox := make(chan []byte, 4)
	defer close(outbox)
	url := controlPlaneStub(t, inbox, outbox)

	client := NewClient(ClientConfig{
		ConnectURL:        url,
		AgentID:           "bot-1",
		Version:           "test",
		HeartbeatInterval: 20 * time.Millisecond,
		Logger:            core.NewLogger(nil),
		ActiveSessions:    func() int { return 2 },
	})
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	reg, err := protocol.UnmarshalPayload[protocol.RegisterPayload](next(t, inbox, protocol.MsgRegister).raw)
	require.NoError(t, err)
	assert.Equal(t, "bot-1", reg.AgentID)

	hb, err := protocol.UnmarshalPayload[protocol.HeartbeatPayload](next(t, inbox, protocol.MsgHeartbeat).raw)
	require.NoError(t, err)
	assert.Equal(t, 2, hb.ActiveSessions)
	assert.Equal(t, "running", hb.Status)

	writer := NewWSLogWriter(client, "sess-1")
	writer.Write(core.LevelWarn, "inference failed", map[string]interface{}{"error": errors.New("timeout")})
	logMsg, err := protocol.UnmarshalPayload[protocol.LogPayload](next(t, inbox, protocol.MsgLog).raw)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", logMsg.SessionID)
	assert.Equal(t, "WARN", logMsg.Entry.Level)
	assert.Equal(t, "timeout", logMsg.Entry.Attrs["error"])

	writer.Close()
	end, err := protocol.UnmarshalPayload[protocol.LogEndPayload](next(t, inbox, protocol.MsgLogEnd).raw)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", end.SessionID)
}

func TestClientHandlesConfigUpdateAndShutdown(t *testing.T) {
	inbox := make(chan received, 64)
	outbox := make(chan []byte, 4)
	defer close(outbox)
	url := controlPlaneStub(t, inbox, outbox)

	client := NewClient(ClientConfig{ConnectURL: url, AgentID: "bot", Logger: core.NewLogger(nil)})
	keys := make(chan map[string]string, 1)
	reasons := make(chan string, 1)
	client.OnConfigUpdate = func(_ json.RawMessage, k map[string]string) { keys <- k }
	client.OnShutdown = func(reason string) { reasons <- reason }
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()
	next(t, inbox, protocol.MsgRegister)

	update, err := protocol.Marshal(protocol.MsgConfigUpdate, protocol.ConfigUpdatePayload{Keys: map[string]string{"OPENAI_API_KEY": "sk"}})
	require.NoError(t, err)
	outbox <- update
	select {
	case k := <-keys:
		assert.Equal(t, "sk", k["OPENAI_API_KEY"])
	case <-time.After(3 * time.Second):
		t.Fatal("config update not delivered")
	}

	shutdown, err := protocol.Marshal(protocol.MsgShutdown, protocol.ShutdownPayload{})
	require.NoError(t, err)
	outbox <- shutdown
	select {
	case r := <-reasons:
		assert.Equal(t, "shutdown requested by control plane", r)
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown not delivered")
	}
	assert.NoError(t, client.Wait())
}

func TestClientReconnectsAndReregisters(t *testing.T) {
	registrations := make(chan string, 4)
	var mu sync.Mutex
	accepted := 0
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mu.Lock()
		accepted++
		first := accepted == 1
		mu.Unlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msgType, raw, err := protocol.Unmarshal(data)
		if err != nil || msgType != protocol.MsgRegister {
			return
		}
		reg, _ := protocol.UnmarshalPayload[protocol.RegisterPayload](raw)
		registrations <- strings.Join(reg.Capabilities, ",")
		if first {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		ConnectURL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		AgentID:        "bot",
		Capabilities:   []string{"chat", "tts"},
		Logger:         core.NewLogger(nil),
		Reconnect:      true,
		ReconnectDelay: 10 * time.Millisecond,
	})
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	for i := 0; i < 2; i++ {
		select {
		case caps := <-registrations:
			assert.Equal(t, "chat,tts", caps)
		case <-time.After(3 * time.Second):
			t.Fatalf("registration %d not received", i+1)
		}
	}
	require.Eventually(t, func() bool { return client.Connected() && client.Registrations() == 2 }, 3*time.Second, 10*time.Millisecond)

	client.Close()
	select {
	case <-client.done:
	case <-time.After(3 * time.Second):
		t.Fatal("client did not end after Close")
	}
	assert.False(t, client.Connected())
}

func TestClientEndsOnDropWithoutReconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.ReadMessage()
		conn.Close()
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{ConnectURL: "ws" + strings.TrimPrefix(srv.URL, "http"), Logger: core.NewLogger(nil)})
	require.NoError(t, client.Connect(context.Background()))
	waited := make(chan struct{})
	go func() {
		client.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(3 * time.Second):
		t.Fatal("Wait did not return after the connection dropped")
	}
}

func TestConnectFailsWhenUnreachable(t *testing.T) {
	client := NewClient(ClientConfig{ConnectURL: "ws://127.0.0.1:1/ws", Logger: core.NewLogger(nil)})
	assert.Error(t, client.Connect(context.Background()))
}

func TestOutboxDropsOldest(t *testing.T) {
	o := newOutbox(2)
	assert.False(t, o.push([]byte("a")))
	assert.False(t, o.push([]byte("b")))
	assert.True(t, o.push([]byte("c")))
	assert.Equal(t, 2, o.pending())
	assert.Equal(t, int64(1), o.droppedTotal())
	assert.Equal(t, "b", string(<-o.ch))
	assert.Equal(t, "c", string(<-o.ch))
}

func TestCloseBeforeConnect(t *testing.T) {
	client := NewClient(ClientConfig{Logger: core.NewLogger(nil)})
	assert.NotPanics(t, client.Close)
}
