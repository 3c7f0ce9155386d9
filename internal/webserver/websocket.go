package webserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

// WSMessage はWebSocketメッセージの構造を定義
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WSClient はWebSocket接続クライアントを表す
type WSClient struct {
	conn        *websocket.Conn
	send        chan []byte
	clientID    string
	connectedAt time.Time
}

// WSHub はすべてのWebSocket接続を管理
type WSHub struct {
	clients    map[*WSClient]bool
	register   chan *WSClient
	unregister chan *WSClient
	broadcast  chan WSMessage
	mu         sync.RWMutex
	startOnce  sync.Once
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// オーバーレイは別オリジンのブラウザソースから接続される
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

var wsHub = newWSHub()

func newWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		broadcast:  make(chan WSMessage, 256),
	}
}

// 高頻度メッセージはログに出さない
var quietMessageTypes = map[string]bool{
	"wheel_progress": true,
	"wheel_tick":     true,
}

// StartWSHub WebSocketハブを起動
func StartWSHub() {
	wsHub.startOnce.Do(func() {
		go wsHub.run()
	})
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WSHub) run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()

			logger.Info("WebSocket client connected",
				zap.String("clientId", client.clientID),
				zap.Int("total_clients", total))

			// 接続確認メッセージと現在のホイール状態を送信
			h.sendTo(client, "connected", map[string]string{"clientId": client.clientID})
			if snapshot, ok := currentWheelState(); ok {
				h.sendTo(client, "wheel_state", snapshot)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				remaining := len(h.clients)
				h.mu.Unlock()

				logger.Info("WebSocket client disconnected",
					zap.String("clientId", client.clientID),
					zap.Int("remaining_clients", remaining))
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				logger.Error("Failed to marshal WebSocket message", zap.Error(err))
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// クライアントのバッファがフルの場合は切断
					go func(c *WSClient) {
						h.unregister <- c
						c.conn.Close()
					}(client)
				}
			}
			h.mu.RUnlock()

		case <-ticker.C:
			// ハートビートはwritePumpが送信するのでここでは接続数のみ記録
			logger.Debug("WebSocket heartbeat", zap.Int("clients", h.ClientCount()))
		}
	}
}

func (h *WSHub) sendTo(client *WSClient, msgType string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		logger.Error("Failed to marshal WebSocket data", zap.Error(err))
		return
	}
	msg, err := json.Marshal(WSMessage{Type: msgType, Data: payload})
	if err != nil {
		return
	}
	select {
	case client.send <- msg:
	default:
		// バッファがフルの場合はスキップ
	}
}

// BroadcastWSMessage すべてのクライアントにメッセージを送信
func BroadcastWSMessage(msgType string, data interface{}) {
	quiet := quietMessageTypes[msgType]
	if !quiet {
		logger.Debug("BroadcastWSMessage called",
			zap.String("message_type", msgType),
			zap.Any("data", data))
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Error("Failed to marshal WebSocket broadcast data", zap.Error(err))
		return
	}

	msg := WSMessage{
		Type: msgType,
		Data: jsonData,
	}

	select {
	case wsHub.broadcast <- msg:
	default:
		if !quiet {
			logger.Warn("WebSocket broadcast channel full, message dropped",
				zap.String("message_type", msgType))
		}
	}
}

// handleWS WebSocket接続を処理
func handleWS(w http.ResponseWriter, r *http.Request) {
	// クライアントIDを取得または生成
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = generateClientID()
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	client := &WSClient{
		conn:        conn,
		send:        make(chan []byte, 256),
		clientID:    clientID,
		connectedAt: time.Now(),
	}

	wsHub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) readPump() {
	defer func() {
		wsHub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			break
		}

		c.handleMessage(message)
	}
}

// handleMessage はクライアントからの要求を処理する。未知のtypeは無視する。
func (c *WSClient) handleMessage(raw []byte) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Debug("Ignoring malformed WebSocket message",
			zap.String("clientId", c.clientID),
			zap.Error(err))
		return
	}

	switch msg.Type {
	case "get_state":
		if snapshot, ok := currentWheelState(); ok {
			wsHub.sendTo(c, "wheel_state", snapshot)
		}
	case "ping":
		wsHub.sendTo(c, "pong", map[string]int64{"time": time.Now().UnixMilli()})
	default:
		logger.Debug("Unhandled WebSocket message",
			zap.String("clientId", c.clientID),
			zap.String("type", msg.Type))
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// generateClientID クライアントIDを生成
func generateClientID() string {
	id, err := gonanoid.New()
	if err != nil {
		return "ws-" + time.Now().Format("20060102150405.000000000")
	}
	return "ws-" + id
}

// RegisterWebSocketRoute WebSocketルートを登録
func RegisterWebSocketRoute(mux *http.ServeMux) {
	mux.HandleFunc("/ws", handleWS)

	StartWSHub()
}
