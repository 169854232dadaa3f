package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/npezzotti/nodechat/internal/server"
	"github.com/npezzotti/nodechat/internal/types"
)

const writeTimeout = 5 * time.Second

type chatClient struct {
	ws   *websocket.Conn
	name string
	out  io.Writer

	mu     sync.Mutex
	nextID int
	// last printed event id; updates at or below it are not printed again
	seen int64
}

func dial(ctx context.Context, addr, name string, out io.Writer) (*chatClient, error) {
	ws, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return &chatClient{ws: ws, name: name, out: out}, nil
}

func (c *chatClient) send(ctx context.Context, event string, args ...string) error {
	c.mu.Lock()
	c.nextID++
	msg := server.ClientMessage{Id: c.nextID, Event: event, Args: args}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.ws, msg)
}

func (c *chatClient) join(ctx context.Context) error {
	return c.send(ctx, server.EventJoin, c.name)
}

func (c *chatClient) say(ctx context.Context, comment string) error {
	return c.send(ctx, server.EventMessage, c.name, comment)
}

func (c *chatClient) leave(ctx context.Context) error {
	return c.send(ctx, server.EventLeave, c.name)
}

// readLoop prints server messages until the connection closes or ctx ends.
func (c *chatClient) readLoop(ctx context.Context) error {
	for {
		var msg server.ServerMessage
		if err := wsjson.Read(ctx, c.ws, &msg); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			return err
		}

		for _, line := range c.render(&msg) {
			fmt.Fprintln(c.out, line)
		}
	}
}

func (c *chatClient) render(msg *server.ServerMessage) []string {
	var lines []string
	switch {
	case msg.Response != nil:
		if msg.Response.Error != "" {
			lines = append(lines, fmt.Sprintf("! %d %s", msg.Response.ResponseCode, msg.Response.Error))
		}
	case msg.Updates != nil:
		for _, ev := range msg.Updates.Chats {
			if ev.ID <= c.seen {
				continue
			}
			c.seen = ev.ID
			lines = append(lines, formatEvent(ev))
		}
		if len(lines) > 0 {
			lines = append(lines, "* here: "+strings.Join(msg.Updates.Users, ", "))
		}
	case msg.Light != nil:
		lines = append(lines, "*")
	}
	return lines
}

func formatEvent(ev types.Event) string {
	at := time.UnixMilli(ev.Time).Format(time.TimeOnly)
	if ev.Kind == types.EventPresence {
		return fmt.Sprintf("[%s] %s %s", at, ev.User, ev.State)
	}
	return fmt.Sprintf("[%s] <%s> %s", at, ev.User, ev.Comment)
}

func (c *chatClient) close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "client close")
}
