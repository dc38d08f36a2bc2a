package handlers

import "net/http"

// NewRouter wires every HTTP route of the service.
func NewRouter(wsHandlers *WebSocketHandlers, roomHandlers *RoomHandlers, healthHandlers *HealthHandlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", wsHandlers.HandleWebSocket)

	mux.HandleFunc("GET /rooms/{id}/participants", roomHandlers.GetParticipants)
	mux.HandleFunc("GET /rooms/{id}/history", roomHandlers.GetHistory)
	mux.HandleFunc("GET /users/{id}/presence", roomHandlers.GetPresence)

	mux.HandleFunc("GET /healthz", healthHandlers.Health)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
