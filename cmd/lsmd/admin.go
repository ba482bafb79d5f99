package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nvmekv/ssdlsm/db"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// statsEvent is one message on the admin stream: a Stats snapshot, or a
// heartbeat keeping idle connections alive.
type statsEvent struct {
	Type  string    `json:"type"` // "stats" | "heartbeat"
	Stats *db.Stats `json:"stats,omitempty"`
}

// newAdminStreamHandler returns a handler that upgrades to a websocket and
// pushes a Stats snapshot every interval, plus a heartbeat when nothing
// has changed, until the client disconnects.
func newAdminStreamHandler(store *db.DB) http.HandlerFunc {
	const pushInterval = 2 * time.Second

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("lsmd: admin stream upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(pushInterval)
		defer ticker.Stop()

		// Read and discard control messages so the connection's read
		// deadline keeps advancing and a client close is detected.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case <-ticker.C:
				stats := store.Stats()
				if err := conn.WriteJSON(statsEvent{Type: "stats", Stats: &stats}); err != nil {
					return
				}
			}
		}
	}
}
