package bitmex

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedURL(t *testing.T) {
	symbol := xbtusd(t)

	u, err := FeedURL("wss://ws.bitmex.com/realtime", symbol, false)
	require.NoError(t, err)
	assert.Equal(t, "wss://ws.bitmex.com/realtime?subscribe=quote:XBTUSD,tradeBin1m:XBTUSD", u)

	u, err = FeedURL("https://testnet.bitmex.com", symbol, true)
	require.NoError(t, err)
	assert.Equal(t, "wss://testnet.bitmex.com/realtime?subscribe=quote:XBTUSD,tradeBin1m:XBTUSD,order:XBTUSD", u)
}

func TestStreamClient_DialAndRead(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotKey := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey <- r.Header.Get("api-key")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"info":"Welcome"}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	client := NewStreamClient(time.Second, log.New(io.Discard))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime"

	header := Credentials{Key: "key", Secret: "secret"}.Headers("GET", "/realtime", "", time.Now())
	conn, err := client.Dial(context.Background(), url, header)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "key", <-gotKey)

	msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"info":"Welcome"}`, string(msg))

	require.NoError(t, conn.Close())
	_, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestStreamClient_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewStreamClient(time.Second, log.New(io.Discard))
	_, err := client.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
