package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRunRejectsMissingConfig(t *testing.T) {
	err := NewClient(Option{}).Run(context.Background())
	require.ErrorIs(t, err, ErrNoURL)

	err = NewClient(Option{URL: "ws://localhost:1"}).Run(context.Background())
	require.ErrorIs(t, err, ErrNilHandler)
}

func TestClientReceivesMessages(t *testing.T) {
	upgrader := gws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for i := 0; i < 3; i++ {
			require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte(`{"Symbol":"AAPL","Price":101.5,"Size":10}`)))
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan []byte, 8)
	client := NewClient(Option{
		URL: wsURL(srv),
		OnMessage: func(payload []byte) {
			received <- payload
		},
	})
	go client.Run(ctx)

	for i := 0; i < 3; i++ {
		select {
		case payload := <-received:
			assert.Contains(t, string(payload), `"Symbol":"AAPL"`)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestOnConnectSendsSubscribe(t *testing.T) {
	upgrader := gws.Upgrader{}
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		_, payload, err := conn.ReadMessage()
		if err == nil {
			got <- string(payload)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(Option{
		URL:       wsURL(srv),
		OnMessage: func([]byte) {},
		OnConnect: func(_ context.Context, w Writer) error {
			return w.WriteText([]byte("subscribe-all"))
		},
	})
	go client.Run(ctx)

	select {
	case msg := <-got:
		require.Equal(t, "subscribe-all", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe frame never arrived")
	}
}

func TestBackoffGrowthAndCap(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2}
	require.Equal(t, 100*time.Millisecond, b.Next(1))
	require.Equal(t, 200*time.Millisecond, b.Next(2))
	require.Equal(t, 400*time.Millisecond, b.Next(3))
	require.Equal(t, time.Second, b.Next(10))
}
