package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-messenger/internal/types"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 256
)

// Client is one websocket connection of an authenticated user.
type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	send       chan *ServerMessage
	limiter    *rate.Limiter
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		id:         uuid.NewString(),
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		send:       make(chan *ServerMessage, sendBufferSize),
		limiter:    rate.NewLimiter(rate.Limit(cs.cfg.RateLimit.RPS), cs.cfg.RateLimit.Burst),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Id() string {
	return c.id
}

func (c *Client) User() types.User {
	return c.user
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("write exiting for connection %s", c.id)
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.writeFrame(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.writeClose()
			return
		case <-ticker.C:
			if !c.writeFrame(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Printf("read exiting for connection %s", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}
		msg.client = c

		c.dispatch(&msg)
	}
}

// dispatch handles one inbound event on the read goroutine.
func (c *Client) dispatch(msg *ClientMessage) {
	if c.limiter != nil && !c.limiter.Allow() {
		c.queueMessage(ErrTooManyRequests(msg.Id))
		return
	}

	switch msg.Event {
	case EventJoin:
		c.join(msg)
	case EventSendMessage:
		c.publish(msg)
	case EventTyping:
		c.typing(msg)
	case EventGetOnlineUsers:
		c.queueMessage(OnlineUsers(msg.Id, c.chatServer.registry.Snapshot()))
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) join(msg *ClientMessage) {
	var join Join
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &join); err != nil {
			c.queueMessage(ErrInvalidMessage(msg.Id))
			return
		}
	}

	// the session identity is authoritative
	if join.UserId != 0 && join.UserId != c.user.Id {
		c.queueMessage(ErrForbidden(msg.Id))
		return
	}

	online := c.chatServer.registry.Join(c)
	c.queueMessage(OnlineUsers(msg.Id, online))
}

func (c *Client) publish(msg *ClientMessage) {
	var sm SendMessage
	if err := json.Unmarshal(msg.Data, &sm); err != nil {
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.chatServer.cfg.PersistTimeout)
	defer cancel()

	req, err := c.chatServer.newRouteRequest(ctx, c.user, SendRequest{
		ReceiverId:  sm.ReceiverId,
		Content:     sm.Message,
		MessageType: sm.MessageType,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownReceiver):
			c.queueMessage(ErrUserNotFound(msg.Id))
		case errors.Is(err, ErrEmptyMessage):
			c.queueMessage(ErrInvalidMessage(msg.Id))
		default:
			c.log.Printf("validate message from %d: %v", c.user.Id, err)
			c.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	req.reqId = msg.Id
	req.origin = c

	select {
	case <-c.chatServer.stopped:
		c.queueMessage(ErrServiceUnavailable(msg.Id))
		return
	default:
	}

	select {
	case c.chatServer.sendChan <- req:
	default:
		c.log.Printf("sendChan full")
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) typing(msg *ClientMessage) {
	var t Typing
	if err := json.Unmarshal(msg.Data, &t); err != nil {
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	c.chatServer.SetTyping(c.user.Id, t.ReceiverId, t.IsTyping)
}

// queueMessage hands msg to the write pump without blocking. It reports
// false if the client is stopped or its buffer is full.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case <-c.stop:
		return false
	default:
	}

	select {
	case c.send <- msg:
	default:
		c.log.Printf("failed to send message to connection %s, channel is full", c.id)
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) writeFrame(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) writeClose() {
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(writeWait),
	)
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.UnregisterClient(c)
	c.stopClient()
}
