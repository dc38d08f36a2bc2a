package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"meetup-app/internal/realtime"
	"meetup-app/internal/services"
	"meetup-app/pkg/logger"
)

type RoomHandlers struct {
	roomService *services.RoomService
	gateway     *realtime.Gateway
}

func NewRoomHandlers(roomService *services.RoomService, gateway *realtime.Gateway) *RoomHandlers {
	return &RoomHandlers{
		roomService: roomService,
		gateway:     gateway,
	}
}

// GetParticipants serves GET /rooms/{id}/participants.
func (h *RoomHandlers) GetParticipants(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	resp, err := h.roomService.GetParticipants(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		h.serviceError(w, "Get participants", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetHistory serves GET /rooms/{id}/history?limit=n.
func (h *RoomHandlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	resp, err := h.roomService.GetHistory(r.Context(), r.PathValue("id"), userID, limit)
	if err != nil {
		h.serviceError(w, "Get history", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetPresence serves GET /users/{id}/presence.
func (h *RoomHandlers) GetPresence(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	snap, err := h.roomService.GetPresence(r.Context(), r.PathValue("id"))
	if err != nil {
		h.serviceError(w, "Get presence", err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (h *RoomHandlers) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := h.gateway.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func (h *RoomHandlers) serviceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, services.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, services.ErrOffline):
		http.Error(w, "user offline", http.StatusNotFound)
	case errors.Is(err, realtime.ErrGatewayClosed):
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
	default:
		logger.Error("%s error: %v", op, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error writing response: %v", err)
	}
}
