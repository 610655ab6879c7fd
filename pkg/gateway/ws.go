package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/basedagent/basedagent/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsReadLimit  = maxBodyBytes
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser origins are not restricted; the API key gates access.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket serves one chat turn per text frame. Frames on a connection
// are answered in order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusForbidden, detailForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF(component, "WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	reqID := requestID(r)
	logger.InfoCF(component, "WebSocket connected", map[string]interface{}{"request_id": reqID})

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WarnCF(component, "WebSocket read failed",
					map[string]interface{}{"request_id": reqID, "error": err.Error()})
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var out interface{}
		var req ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			out = errorResponse{Detail: "invalid request body: " + err.Error()}
		} else if detail := validate(req); detail != "" {
			out = errorResponse{Detail: detail}
		} else if reply, err := s.reply(r.Context(), reqID, req); err != nil {
			out = errorResponse{Detail: err.Error()}
		} else {
			out = ChatResponse{Response: reply}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(out); err != nil {
			logger.WarnCF(component, "WebSocket write failed",
				map[string]interface{}{"request_id": reqID, "error": err.Error()})
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	}
}
