package server

import (
	"context"
	"log"

	"github.com/npezzotti/nodechat/internal/stats"
	"github.com/npezzotti/nodechat/internal/types"
)

// ChatServer is the hub that owns the set of connected clients and fans
// updates and activity pulses out to them.
type ChatServer struct {
	log            *log.Logger
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	registerChan   chan *Client
	deRegisterChan chan *Client
	broadcastChan  chan *ServerMessage
	updatesChan    chan *ServerMessage
	stop           chan stopReq
	done           chan struct{}
}

type stopReq struct {
	done chan struct{}
}

func NewChatServer(logger *log.Logger, su stats.StatsProvider) *ChatServer {
	return &ChatServer{
		log:            logger,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		broadcastChan:  make(chan *ServerMessage, 64),
		updatesChan:    make(chan *ServerMessage),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}
}

func (cs *ChatServer) Run() {
	defer close(cs.done)

	for {
		select {
		case client := <-cs.registerChan:
			cs.log.Printf("adding connection %s", client.id)
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection %s", client.id)
			cs.removeClient(client)
		case msg := <-cs.updatesChan:
			for c := range cs.clients {
				c.queueMessage(msg)
			}
		case msg := <-cs.broadcastChan:
			for c := range cs.clients {
				c.queueMessage(msg)
			}
		case req := <-cs.stop:
			cs.log.Println("stopping clients")
			for c := range cs.clients {
				c.stopClient()
				cs.removeClient(c)
			}

			close(req.done)
			return
		}
	}
}

// RegisterClient adds c to the broadcast set. It returns false when the hub
// has stopped.
func (cs *ChatServer) RegisterClient(c *Client) bool {
	select {
	case cs.registerChan <- c:
		return true
	case <-cs.done:
		return false
	}
}

func (cs *ChatServer) deregisterClient(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

// Broadcast hands snap to the hub for every connected client. Unlike a
// pulse it is never dropped: it blocks until the hub takes it or has stopped.
func (cs *ChatServer) Broadcast(snap types.Snapshot) {
	select {
	case cs.updatesChan <- UpdatesMessage(snap):
	case <-cs.done:
	}
}

// Pulse queues the empty activity notification. It is dropped when the hub
// is backed up.
func (cs *ChatServer) Pulse() {
	if cs.enqueue(LightMessage()) {
		cs.stats.Incr(stats.PulsesSent)
	}
}

func (cs *ChatServer) enqueue(msg *ServerMessage) bool {
	select {
	case cs.broadcastChan <- msg:
		return true
	default:
		cs.log.Println("broadcast channel full, dropping pulse")
		return false
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.NumActiveClients)
}

func (cs *ChatServer) removeClient(c *Client) {
	if _, ok := cs.clients[c]; !ok {
		return
	}
	delete(cs.clients, c)
	cs.stats.Decr(stats.NumActiveClients)
}

// Shutdown stops every client and then the hub.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
