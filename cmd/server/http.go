package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"github.com/botaojia/chat/domain"
	"github.com/botaojia/chat/hub"
	"github.com/botaojia/chat/reactor"
	"github.com/botaojia/chat/session"
	"github.com/botaojia/chat/websocket"
)

func newMux(rooms map[string]*hub.Room, defaultPort string, strand *reactor.Strand, logger *slog.Logger, options ...session.Option) *http.ServeMux {
	lookup := func(r *http.Request) (domain.Room, bool) {
		port := r.URL.Query().Get("port")
		if port == "" {
			port = defaultPort
		}
		room, ok := rooms[port]
		return room, ok
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", websocket.Handler(lookup, strand, websocket.WithLogger(logger), websocket.WithSessionOptions(options...)))
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/stats", statsHandler(rooms, strand))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func statsHandler(rooms map[string]*hub.Room, strand *reactor.Strand) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := make([]domain.Stats, 0, len(rooms))
		err := strand.Call(r.Context(), func() {
			for _, room := range rooms {
				stats = append(stats, room.Stats())
			}
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		sort.Slice(stats, func(i, j int) bool { return stats[i].Port < stats[j].Port })
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}
