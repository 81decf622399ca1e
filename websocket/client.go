package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	// 將訊息寫入到遠端對等點的最長時間
	writeWait = 10 * time.Second

	// 允許從遠端對等點讀取下一個 pong 訊息的最長時間。
	pongWait = 60 * time.Second

	// 發送 ping 訊息給遠端對等點的週期。
	pingPeriod = (pongWait * 9) / 10

	// 單一訊框的上限
	maxMessageSize = 8 * 1024

	// 每個訊框的處理時間上限 (含資料庫寫入)
	frameTimeout = 10 * time.Second

	sendBufferSize = 256
)

var (
	ErrClientClosed = errors.New("connection closed")
	ErrSlowConsumer = errors.New("send buffer full")
)

// Client 代表一個 WebSocket 連線
type Client struct {
	id     string
	userID primitive.ObjectID
	conn   *websocket.Conn
	send   chan []byte   // 寫出佇列，由 writePump 消化
	done   chan struct{} // 關閉後 writePump 送出 CloseMessage 並結束
	once   sync.Once
}

func newClient(conn *websocket.Conn, userID primitive.ObjectID) *Client {
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Send 非阻塞放入寫出佇列；佇列已滿代表用戶端跟不上，直接關閉連線
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		zap.L().Warn("client send buffer full, closing connection",
			zap.String("client", c.id),
			zap.String("user", c.userID.Hex()))
		c.Close()
		return ErrSlowConsumer
	}
}

// Close 可重複呼叫
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// 讀取用戶傳來的訊框，依序交給 Session 處理
func (c *Client) readPump(ctx context.Context, session *Session) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, p, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				zap.L().Debug("client disconnected", zap.String("client", c.id))
			} else {
				zap.L().Debug("read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		frameCtx, cancel := context.WithTimeout(ctx, frameTimeout)
		session.Handle(frameCtx, p)
		cancel()
	}
}

// 將寫出佇列的內容送給前端，並定期 ping 保持連線
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				zap.L().Debug("write error", zap.String("client", c.id), zap.Error(err))
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
