package client

import (
	"context"
	"evsim/internal/config"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) *config.Config {
	conf := &config.Config{}
	conf.ChargePoint.Id = "CP1"
	conf.CentralSystem.Url = url
	conf.CentralSystem.SubProtocol = "ocpp1.6"
	conf.CentralSystem.ConnectTimeout = time.Second
	return conf
}

func echoServer(t *testing.T, subProtocols []string, paths chan<- string) *httptest.Server {
	upgrader := websocket.Upgrader{Subprotocols: subProtocols}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if paths != nil {
			paths <- r.URL.Path
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err = conn.WriteMessage(messageType, data); err != nil {
				return
			}
		}
	}))
}

func wsUrl(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ocpp/"
}

func TestWebSocket_SendReceive(t *testing.T) {
	paths := make(chan string, 1)
	server := echoServer(t, []string{"ocpp1.6"}, paths)
	defer server.Close()

	ws := NewWebSocket(testConfig(wsUrl(server)))
	require.NoError(t, ws.Connect(context.Background()))
	assert.Equal(t, "/ocpp/CP1", <-paths)

	require.NoError(t, ws.Send([]byte(`[2,"1","Heartbeat",{}]`)))
	data, err := ws.Receive()
	require.NoError(t, err)
	assert.Equal(t, `[2,"1","Heartbeat",{}]`, string(data))

	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close())
	_, err = ws.Receive()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWebSocket_SubProtocolRefused(t *testing.T) {
	server := echoServer(t, nil, nil)
	defer server.Close()

	ws := NewWebSocket(testConfig(wsUrl(server)))
	assert.Error(t, ws.Connect(context.Background()))
}

func TestWebSocket_NotConnected(t *testing.T) {
	ws := NewWebSocket(testConfig("ws://127.0.0.1:1"))
	assert.ErrorIs(t, ws.Send([]byte("x")), ErrClosed)
	_, err := ws.Receive()
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, ws.Close())
}
