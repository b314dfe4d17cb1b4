package httpinterface

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// stream pushes the status updates of an execution over a websocket. The
// first message is the current status. The connection is closed by the
// server after the terminal status, or when the execution is acknowledged.
func (h *handler) stream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	statusCh, unsubscribe, err := h.executor.Subscribe(id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debugf("stream %s: websocket upgrade failed", id)
		return
	}
	defer conn.Close()

	// Incoming messages are discarded, reading is needed to process control
	// frames and to detect the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			log.Debugf("stream %s: client disconnected", id)
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case status, ok := <-statusCh:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				closeStream(conn, "execution acknowledged")
				return
			}
			if err := conn.WriteJSON(status); err != nil {
				log.WithError(err).Debugf("stream %s: failed to write status", id)
				return
			}
			if status.Terminal {
				closeStream(conn, status.Phase)
				return
			}
		}
	}
}

func closeStream(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
