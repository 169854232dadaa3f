package server

import (
	"net/http"
	"time"

	"github.com/npezzotti/nodechat/internal/types"
)

const (
	EventJoin    = "join"
	EventMessage = "message"
	EventLeave   = "leave"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is an intent sent by a client. Args are positional:
// join and leave take [name], message takes [name, comment, clientId?].
type ClientMessage struct {
	Id    int      `json:"id,omitempty"`
	Event string   `json:"event"`
	Args  []string `json:"args"`
}

func (m *ClientMessage) arg(i int) string {
	if i < len(m.Args) {
		return m.Args[i]
	}
	return ""
}

type ServerMessage struct {
	BaseMessage
	Response *Response       `json:"response,omitempty"`
	Updates  *types.Snapshot `json:"updates,omitempty"`
	Light    *Light          `json:"light,omitempty"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// Light is the empty activity pulse.
type Light struct{}

func UpdatesMessage(snap types.Snapshot) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Updates: &snap,
	}
}

func LightMessage() *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Light: &Light{},
	}
}

func NoErrAccepted(id int, data map[string]any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
			Data:         data,
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	return ErrBadRequest(id, "invalid message format")
}

func ErrBadRequest(id int, reason string) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        reason,
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
