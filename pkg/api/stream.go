package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linem-davton/graphdraw/pkg/editor"
	"github.com/linem-davton/graphdraw/pkg/logging"
	"github.com/linem-davton/graphdraw/pkg/model"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func frameFor(sess *editor.Session, c editor.Change) StreamFrame {
	f := StreamFrame{Type: string(c.Kind), Revision: c.Revision}
	if c.Kind == editor.ChangeSchedule {
		st := sess.Schedule()
		f.Schedule = st.Result
		f.Error = model.UserMessage(st.Err)
	}
	return f
}

// handleStream pushes a StreamFrame for every change of the session until
// the peer disconnects. Frames are dropped for peers that fall behind.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	logger := logging.FromContext(r.Context(), s.logger).With("sessionID", sess.ID())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	send := make(chan StreamFrame, sendBufferSize)
	send <- StreamFrame{Type: "connected", Revision: sess.Revision()}
	unsubscribe := sess.Subscribe(func(c editor.Change) {
		select {
		case send <- frameFor(sess, c):
		default:
			logger.Debug("Dropped stream frame", "revision", c.Revision)
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("WebSocket read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		unsubscribe()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case f := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(f); err != nil {
				logger.Debug("Failed to write stream frame", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
