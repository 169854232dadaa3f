package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/nodechat/internal/chat"
	"github.com/npezzotti/nodechat/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	intentTimeout  = 10 * time.Second
)

// ChatService applies client intents.
type ChatService interface {
	Join(ctx context.Context, name string) ([]string, error)
	Post(ctx context.Context, name, comment, clientID string) (int64, error)
	Leave(ctx context.Context, name string) ([]string, error)
}

type Client struct {
	id         uuid.UUID
	conn       *websocket.Conn
	chatServer *ChatServer
	chat       ChatService
	log        *log.Logger
	send       chan *ServerMessage
	names      map[string]struct{}
	namesLock  sync.Mutex
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(conn *websocket.Conn, cs *ChatServer, svc ChatService, l *log.Logger) *Client {
	return &Client{
		id:         uuid.New(),
		conn:       conn,
		chatServer: cs,
		chat:       svc,
		log:        l,
		send:       make(chan *ServerMessage, 256),
		names:      make(map[string]struct{}),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.sendMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
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

		ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
		c.queueMessage(c.handle(ctx, &msg))
		cancel()
	}
}

// handle applies one intent and returns the acknowledgement for it.
func (c *Client) handle(ctx context.Context, msg *ClientMessage) *ServerMessage {
	switch msg.Event {
	case EventJoin:
		users, err := c.chat.Join(ctx, msg.arg(0))
		if err != nil {
			return c.errorResponse(msg, err)
		}
		c.addName(msg.arg(0))
		return NoErrAccepted(msg.Id, map[string]any{"users": users})
	case EventMessage:
		seq, err := c.chat.Post(ctx, msg.arg(0), msg.arg(1), msg.arg(2))
		if err != nil {
			return c.errorResponse(msg, err)
		}
		return NoErrAccepted(msg.Id, map[string]any{"seq": seq})
	case EventLeave:
		users, err := c.chat.Leave(ctx, msg.arg(0))
		if err != nil {
			return c.errorResponse(msg, err)
		}
		c.removeName(msg.arg(0))
		return NoErrAccepted(msg.Id, map[string]any{"users": users})
	default:
		return ErrInvalidMessage(msg.Id)
	}
}

func (c *Client) errorResponse(msg *ClientMessage, err error) *ServerMessage {
	var verr *chat.ValidationError
	switch {
	case errors.As(err, &verr):
		return ErrBadRequest(msg.Id, verr.Error())
	case store.IsConflict(err), store.IsUnavailable(err):
		c.log.Printf("%s: %v", msg.Event, err)
		return ErrServiceUnavailable(msg.Id)
	default:
		c.log.Printf("%s: %v", msg.Event, err)
		return ErrInternalError(msg.Id)
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
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

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.chatServer.deregisterClient(c)
	c.leaveAll()
	c.stopClient()
}

// leaveAll leaves every name the connection joined as.
func (c *Client) leaveAll() {
	ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
	defer cancel()

	for _, name := range c.joinedNames() {
		if _, err := c.chat.Leave(ctx, name); err != nil {
			c.log.Printf("leave %q on disconnect: %v", name, err)
		}
	}
}

func (c *Client) addName(name string) {
	c.namesLock.Lock()
	defer c.namesLock.Unlock()
	c.names[strings.TrimSpace(name)] = struct{}{}
}

func (c *Client) removeName(name string) {
	c.namesLock.Lock()
	defer c.namesLock.Unlock()
	delete(c.names, strings.TrimSpace(name))
}

func (c *Client) joinedNames() []string {
	c.namesLock.Lock()
	defer c.namesLock.Unlock()

	names := make([]string, 0, len(c.names))
	for name := range c.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
