package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"vllmd/internal/tasks"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The daemon binds to an operator-controlled interface; origins are not
	// restricted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsLogs streams a running instance's log history and live output until the
// client disconnects or the instance is stopped.
func (s *server) wsLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid model id")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	wsConnections.WithLabelValues("logs").Inc()
	defer wsConnections.WithLabelValues("logs").Dec()

	ch, cancel, err := s.deps.Supervisor.SubscribeLogs(id)
	if err != nil {
		closePolicy(conn, err.Error())
		return
	}
	defer cancel()
	streamLines(conn, ch)
}

// wsPull streams a model download task's progress until the task finishes.
func (s *server) wsPull(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid model id")
		return
	}
	s.wsTask(w, r, tasks.DownloadTaskID(id), "pull")
}

// wsUpgrade streams the self-upgrade task's progress.
func (s *server) wsUpgrade(w http.ResponseWriter, r *http.Request) {
	s.wsTask(w, r, tasks.UpgradeTaskID, "upgrade")
}

func (s *server) wsTask(w http.ResponseWriter, r *http.Request, taskID, kind string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	wsConnections.WithLabelValues(kind).Inc()
	defer wsConnections.WithLabelValues(kind).Dec()

	ch, err := s.deps.Tasks.Subscribe(taskID)
	if err != nil {
		closePolicy(conn, err.Error())
		return
	}
	streamLines(conn, ch)
}

// streamLines forwards channel lines as text frames until the channel
// closes, then sends a normal close. A concurrent read pump detects client
// disconnection so a stalled stream does not leak the connection.
func streamLines(conn *websocket.Conn, ch <-chan string) {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case line, ok := <-ch:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
}
