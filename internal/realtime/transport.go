package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/apperror"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	TransportWebSocket = "websocket"
)

// Frame - входящее сообщение клиента
type Frame struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WebSocketServer поднимает соединения поверх gorilla/websocket
type WebSocketServer struct {
	manager  *Manager
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

func NewWebSocketServer(manager *Manager, logger *logrus.Logger) *WebSocketServer {
	return &WebSocketServer{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP выполняет рукопожатие. Токен берется из заголовка Authorization или параметра token.
func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	credential := r.Header.Get("Authorization")
	if credential == "" {
		credential = r.URL.Query().Get("token")
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).WithField("remote_addr", r.RemoteAddr).Warn("WebSocket upgrade failed")
		return
	}

	// Рукопожатие не должно зависеть от отмены HTTP-запроса после апгрейда
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 10*time.Second)
	conn, err := s.manager.Connect(ctx, ConnectRequest{
		Credential: credential,
		Transport:  TransportWebSocket,
		RemoteAddr: r.RemoteAddr,
	})
	cancel()
	if err != nil {
		s.logger.WithError(err).WithField("remote_addr", r.RemoteAddr).Error("Failed to register connection")
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "registration failed"),
			time.Now().Add(writeWait))
		_ = ws.Close()
		return
	}
	conn.OnClose(func() {
		// writePump сам закроет сокет после отправки CloseMessage; здесь страхуемся от зависшего чтения
		_ = ws.SetReadDeadline(time.Now().Add(writeWait))
	})

	go s.writePump(ws, conn)
	s.readPump(ws, conn)
}

func (s *WebSocketServer) readPump(ws *websocket.Conn, conn *Connection) {
	defer func() {
		s.manager.Disconnect(conn)
		_ = ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.WithError(err).WithField("connection_id", conn.ID()).Warn("Unexpected websocket close")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil || frame.Event == "" {
			_ = conn.Send(Message{Event: EventError, Data: Ack{
				Error: apperror.ToFailure(apperror.Validation("event", "malformed frame")),
			}})
			continue
		}

		// Действия одного соединения обрабатываются строго по порядку
		result := s.manager.Handle(context.Background(), conn, frame.Event, frame.Data)
		_ = conn.Send(Message{Event: EventAck, ID: frame.ID, Data: result})
	}
}

func (s *WebSocketServer) writePump(ws *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	out := conn.Outbound()
	for {
		select {
		case msg, ok := <-out:
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				code, text := websocket.CloseNormalClosure, ""
				if reason := conn.CloseReason(); reason != nil {
					code, text = websocket.ClosePolicyViolation, reason.Error()
				}
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
				return
			}
			if err := ws.WriteJSON(msg); err != nil {
				s.logger.WithError(err).WithField("connection_id", conn.ID()).Debug("Failed to write message")
				return
			}
		case <-ticker.C:
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
