package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"meetup-app/internal/models"
	"meetup-app/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	maxFrameSize = 64 * 1024
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClientClosed   = errors.New("client closed")
)

// State is the lifecycle stage of a client connection. StateConnecting is the
// HTTP handshake, handled by the websocket handler before a Client exists;
// Client values start in StateAuthenticated.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Client is the gateway's Sink for one websocket connection. Outbound frames
// are queued on a bounded buffer drained by WritePump; inbound frames are
// read by ReadPump and dispatched to the gateway.
type Client struct {
	gateway *Gateway
	conn    *websocket.Conn
	send    chan []byte
	userID  string
	connID  string

	state     atomic.Int32
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps a connection whose credential was already verified.
func NewClient(gateway *Gateway, conn *websocket.Conn, userID string, sendBuffer int) *Client {
	c := &Client{
		gateway: gateway,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		userID:  userID,
		done:    make(chan struct{}),
	}
	c.state.Store(int32(StateAuthenticated))
	return c
}

// Activate registers the client with the gateway. The pumps must be started
// only after it succeeds.
func (c *Client) Activate(ctx context.Context) error {
	connID, err := c.gateway.Activate(ctx, c.userID, c)
	if err != nil {
		// No WritePump yet to tear the socket down.
		c.Close()
		_ = c.conn.Close()
		return err
	}
	c.connID = connID
	c.state.CompareAndSwap(int32(StateAuthenticated), int32(StateActive))
	return nil
}

func (c *Client) ID() string {
	return c.connID
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close is idempotent and safe to call from any goroutine. It never touches
// the socket: WritePump sends the close frame and closes the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
	})
}

func (c *Client) ReadPump() {
	ctx := context.Background()
	defer func() {
		if err := c.gateway.Disconnect(ctx, c.connID); err != nil && !errors.Is(err, ErrGatewayClosed) {
			logger.Error("Error disconnecting %s: %v", c.connID, err)
		}
		c.Close()
	}()

	// Set read deadline and pong handler for connection health
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && c.State() != StateClosed {
				logger.Error("WebSocket error on %s: %v", c.connID, err)
			}
			return
		}

		if c.State() != StateActive {
			continue
		}

		ev, err := models.DecodeInbound(frame)
		if err != nil {
			err = c.gateway.Reject(ctx, c.connID, fmt.Errorf("%w: %v", ErrInvalidMessage, err))
		} else {
			err = c.gateway.Dispatch(ctx, c.connID, ev)
		}

		switch {
		case errors.Is(err, ErrGatewayClosed):
			return
		case err != nil:
			logger.Debug("Event from %s rejected: %v", c.connID, err)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error on %s: %v", c.connID, err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
