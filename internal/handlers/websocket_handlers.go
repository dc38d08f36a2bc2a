package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"meetup-app/internal/realtime"
	"meetup-app/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	gateway    *realtime.Gateway
	upgrader   websocket.Upgrader
	sendBuffer int
}

func NewWebSocketHandlers(gateway *realtime.Gateway, handshakeTimeout time.Duration, sendBuffer int) *WebSocketHandlers {
	return &WebSocketHandlers{
		gateway:    gateway,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: handshakeTimeout,
			CheckOrigin:      func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate before upgrading so failures get a plain 401
	userID, err := h.gateway.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		logger.Debug("Rejected websocket handshake from %s: %v", r.RemoteAddr, err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := realtime.NewClient(h.gateway, conn, userID, h.sendBuffer)
	if err := client.Activate(context.Background()); err != nil {
		if !errors.Is(err, realtime.ErrGatewayClosed) {
			logger.Error("Error activating connection for user %s: %v", userID, err)
		}
		return
	}

	logger.Debug("Websocket %s upgraded for user %s from %s", client.ID(), userID, r.RemoteAddr)

	go client.WritePump()
	go client.ReadPump()
}

// bearerToken reads the credential from the Authorization header, falling
// back to the token query parameter for browser clients.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
