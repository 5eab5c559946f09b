package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breezeauth/riskgate/internal/logger"
)

func TestSubscription_Matches(t *testing.T) {
	e := &Event{Type: EventOTPAttempts, SessionID: "s1"}

	assert.True(t, Subscription{}.matches(e))
	assert.True(t, Subscription{EventTypes: []EventType{EventOTPAttempts}}.matches(e))
	assert.False(t, Subscription{EventTypes: []EventType{EventAnalytics}}.matches(e))
	assert.True(t, Subscription{SessionID: "s1"}.matches(e))
	assert.False(t, Subscription{SessionID: "s2"}.matches(e))
}

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(logger.Nop())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastsToClients(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), &Event{Type: EventRiskData, SessionID: "s1"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, EventRiskData, got.Type)
	assert.Equal(t, "s1", got.SessionID)
	assert.False(t, got.Timestamp.IsZero())
}

func TestHub_SessionFilterFromQuery(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url+"?sessionId=s2")

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, &Event{Type: EventOTPAttempts, SessionID: "s1"}))
	require.NoError(t, hub.Publish(ctx, &Event{Type: EventOTPAttempts, SessionID: "s2"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "s2", got.SessionID)
}

func TestHub_UnregistersClosedClients(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RegistrationAfterShutdownDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(logger.Nop())
	go hub.Run(ctx)
	cancel()
	<-hub.done

	returned := make(chan bool, 1)
	go func() {
		c := &client{hub: hub, send: make(chan []byte, 1)}
		ok := hub.add(c)
		hub.remove(c)
		returned <- ok
	}()

	select {
	case ok := <-returned:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("register or unregister blocked after the hub stopped")
	}
}

func TestHub_LiveClientsReleasedOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(logger.Nop())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	<-hub.done

	// the server side closes the socket once Run drops the client
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "connection was left open")
	}
}
