package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"meetup-app/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discardSink struct{}

func (discardSink) Send([]byte) error { return nil }
func (discardSink) Close() {}

// serveClients upgrades every request into an active Client for userID and
// hands it to the test.
func serveClients(t *testing.T, gw *Gateway, userID string, sendBuffer int) (string, <-chan *Client) {
	t.Helper()

	clients := make(chan *Client, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(gw, conn, userID, sendBuffer)
		if err := client.Activate(context.Background()); err != nil {
			return
		}
		go client.WritePump()
		go client.ReadPump()
		clients <- client
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), clients
}

func TestClient_StatesFollowLifecycle(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	url, clients := serveClients(t, env.gw, "u1", 8)

	peer, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer peer.Close()

	client := <-clients
	assert.Equal(t, StateActive, client.State())
	assert.NotEmpty(t, client.ID())

	require.NoError(t, env.gw.Disconnect(context.Background(), client.ID()))
	assert.Equal(t, StateClosed, client.State())
	assert.ErrorIs(t, client.Send([]byte("late")), ErrClientClosed)

	// WritePump answers the close with a close frame.
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = peer.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestClient_StalledPeerDoesNotBlockGateway(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.MaxMessageLength = 0 }, nil)
	url, clients := serveClients(t, env.gw, "slow", 4)

	// The peer never reads, so the server's writes eventually block.
	peer, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer peer.Close()

	slow := <-clients
	env.join(t, slow.ID(), "r1")

	sender, err := env.gw.Activate(context.Background(), "fast", discardSink{})
	require.NoError(t, err)
	env.join(t, sender, "r1")

	payload := strings.Repeat("x", 256*1024)
	var worst time.Duration
	dropped := false
	for i := 0; i < 400 && !dropped; i++ {
		start := time.Now()
		require.NoError(t, env.dispatch(sender, models.InboundEvent{
			Type: models.EventMessage, RoomID: "r1", Content: payload, MessageType: models.MessageKindText,
		}))
		worst = max(worst, time.Since(start))

		_, ok, err := env.gw.Connection(context.Background(), slow.ID())
		require.NoError(t, err)
		dropped = !ok
		time.Sleep(5 * time.Millisecond)
	}

	require.True(t, dropped, "stalled connection was never dropped")
	assert.Equal(t, StateClosed, slow.State())
	assert.Less(t, worst, 2*time.Second)
	assert.Equal(t, []string{"fast"}, env.participants(t, "r1"))

	start := time.Now()
	_, err = env.gw.ConnectionCount(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
