package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/nodechat/internal/chat"
	"github.com/npezzotti/nodechat/internal/stats"
	"github.com/npezzotti/nodechat/internal/store"
	"github.com/npezzotti/nodechat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockChatService struct {
	mock.Mock
}

func (m *mockChatService) Join(ctx context.Context, name string) ([]string, error) {
	args := m.Called(ctx, name)
	users, _ := args.Get(0).([]string)
	return users, args.Error(1)
}

func (m *mockChatService) Post(ctx context.Context, name, comment, clientID string) (int64, error) {
	args := m.Called(ctx, name, comment, clientID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockChatService) Leave(ctx context.Context, name string) ([]string, error) {
	args := m.Called(ctx, name)
	users, _ := args.Get(0).([]string)
	return users, args.Error(1)
}

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg, "expected a message to be sent to the client")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{} // Pre-fill the send channel to simulate a full channel
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()
	c.stopClient() // second call must not panic

	select {
	case <-c.stop:
		// Channel is closed as expected
	default:
		t.Error("expected stop channel to be closed")
	}
}

func Test_handle(t *testing.T) {
	validationErr := &chat.ValidationError{Field: "name", Reason: "must not be empty"}

	tcases := []struct {
		name      string
		msg       ClientMessage
		setup     func(*mockChatService)
		code      int
		errMsg    string
		data      map[string]any
		wantNames []string
	}{
		{
			name: "join",
			msg:  ClientMessage{Id: 1, Event: EventJoin, Args: []string{"carol"}},
			setup: func(m *mockChatService) {
				m.On("Join", mock.Anything, "carol").Return([]string{"carol"}, nil)
			},
			code:      http.StatusAccepted,
			data:      map[string]any{"users": []string{"carol"}},
			wantNames: []string{"carol"},
		},
		{
			name: "message",
			msg:  ClientMessage{Id: 2, Event: EventMessage, Args: []string{"bob", "hi", "c1"}},
			setup: func(m *mockChatService) {
				m.On("Post", mock.Anything, "bob", "hi", "c1").Return(int64(9), nil)
			},
			code:      http.StatusAccepted,
			data:      map[string]any{"seq": int64(9)},
			wantNames: []string{},
		},
		{
			name: "message without client id",
			msg:  ClientMessage{Id: 3, Event: EventMessage, Args: []string{"bob", "hi"}},
			setup: func(m *mockChatService) {
				m.On("Post", mock.Anything, "bob", "hi", "").Return(int64(10), nil)
			},
			code:      http.StatusAccepted,
			data:      map[string]any{"seq": int64(10)},
			wantNames: []string{},
		},
		{
			name: "validation error",
			msg:  ClientMessage{Id: 4, Event: EventJoin},
			setup: func(m *mockChatService) {
				m.On("Join", mock.Anything, "").Return(nil, validationErr)
			},
			code:      http.StatusBadRequest,
			errMsg:    "invalid name: must not be empty",
			wantNames: []string{},
		},
		{
			name: "store conflict",
			msg:  ClientMessage{Id: 5, Event: EventMessage, Args: []string{"bob", "hi"}},
			setup: func(m *mockChatService) {
				m.On("Post", mock.Anything, "bob", "hi", "").Return(int64(0), store.NewConflictError("commit", nil))
			},
			code:      http.StatusServiceUnavailable,
			errMsg:    "service unavailable",
			wantNames: []string{},
		},
		{
			name: "store unavailable",
			msg:  ClientMessage{Id: 6, Event: EventLeave, Args: []string{"bob"}},
			setup: func(m *mockChatService) {
				m.On("Leave", mock.Anything, "bob").Return(nil, store.NewUnavailableError("begin", nil))
			},
			code:      http.StatusServiceUnavailable,
			errMsg:    "service unavailable",
			wantNames: []string{},
		},
		{
			name: "unexpected error",
			msg:  ClientMessage{Id: 7, Event: EventJoin, Args: []string{"bob"}},
			setup: func(m *mockChatService) {
				m.On("Join", mock.Anything, "bob").Return(nil, errors.New("boom"))
			},
			code:      http.StatusInternalServerError,
			errMsg:    "internal server error",
			wantNames: []string{},
		},
		{
			name:      "unknown event",
			msg:       ClientMessage{Id: 8, Event: "edit"},
			setup:     func(m *mockChatService) {},
			code:      http.StatusBadRequest,
			errMsg:    "invalid message format",
			wantNames: []string{},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockChatService{}
			tc.setup(svc)
			defer svc.AssertExpectations(t)

			c := newTestClient(t, nil, 1)
			c.chat = svc

			res := c.handle(context.Background(), &tc.msg)
			require.NotNil(t, res.Response, "expected a response")
			assert.Equal(t, tc.msg.Id, res.Id, "expected response id to match request id")
			assert.Equal(t, tc.code, res.Response.ResponseCode)
			assert.Equal(t, tc.errMsg, res.Response.Error)
			assert.Equal(t, tc.data, res.Response.Data)
			assert.Equal(t, tc.wantNames, c.joinedNames())
		})
	}
}

func Test_leaveRemembersJoinedNames(t *testing.T) {
	svc := &mockChatService{}
	svc.On("Join", mock.Anything, mock.Anything).Return([]string{}, nil)
	svc.On("Leave", mock.Anything, "amy").Return([]string{}, nil).Once()

	c := newTestClient(t, nil, 4)
	c.chat = svc

	c.handle(context.Background(), &ClientMessage{Event: EventJoin, Args: []string{" amy "}})
	c.handle(context.Background(), &ClientMessage{Event: EventJoin, Args: []string{"zoe"}})
	assert.Equal(t, []string{"amy", "zoe"}, c.joinedNames())

	c.handle(context.Background(), &ClientMessage{Event: EventLeave, Args: []string{"amy"}})
	assert.Equal(t, []string{"zoe"}, c.joinedNames())
	svc.AssertExpectations(t)
}

func TestClient_Integration(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything)
	su.On("Decr", mock.Anything)

	cs := newTestChatServer(t, su)
	go cs.Run()
	defer cs.Shutdown(context.Background())

	left := make(chan string, 1)
	svc := &mockChatService{}
	svc.On("Join", mock.Anything, "dave").Return([]string{"dave"}, nil)
	svc.On("Leave", mock.Anything, "dave").Return([]string{}, nil).Run(func(args mock.Arguments) {
		left <- args.String(1)
	})

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		client := NewClient(conn, cs, svc, testutil.TestLogger(t))
		cs.RegisterClient(client)
		go client.Write()
		go client.Read()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"event":"join","args":["dave"]}`)))

	var ack ServerMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&ack))
	require.NotNil(t, ack.Response)
	assert.Equal(t, 1, ack.Id)
	assert.Equal(t, http.StatusAccepted, ack.Response.ResponseCode)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	var invalid ServerMessage
	require.NoError(t, conn.ReadJSON(&invalid))
	require.NotNil(t, invalid.Response)
	assert.Equal(t, http.StatusBadRequest, invalid.Response.ResponseCode)

	cs.Pulse()
	var light ServerMessage
	require.NoError(t, conn.ReadJSON(&light))
	assert.NotNil(t, light.Light, "expected the pulse to reach the client")

	conn.Close()

	select {
	case name := <-left:
		assert.Equal(t, "dave", name, "expected the joined name to be left on disconnect")
	case <-time.After(2 * time.Second):
		t.Error("expected leave on disconnect")
	}
}
