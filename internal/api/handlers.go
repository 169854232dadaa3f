package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/nodechat/internal/chat"
	"github.com/npezzotti/nodechat/internal/server"
	"github.com/npezzotti/nodechat/internal/store"
)

const maxMessageBody = 8 << 10

type PostMessageRequest struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Id      string `json:"id"`
}

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ChatApp) writeError(w http.ResponseWriter, err error) {
	var (
		verr    *chat.ValidationError
		errResp *ApiError
	)
	switch {
	case errors.As(err, &verr):
		errResp = NewValidationError(verr)
	case store.IsConflict(err), store.IsUnavailable(err):
		s.log.Println("store:", err)
		errResp = NewServiceUnavailableError(err)
	default:
		s.log.Println("internal error:", err)
		errResp = NewInternalServerError(err)
	}

	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *ChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Println("health check:", err)
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// getLog returns the events after ?since together with the present users.
// Without since the most recent history is returned.
func (s *ChatApp) getLog(w http.ResponseWriter, r *http.Request) {
	var since *int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		since = &n
	}

	snap, err := s.chat.Log(r.Context(), since)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	s.writeJson(w, http.StatusOK, snap)
}

// postMessage accepts a JSON body or a form and appends it as a chat event.
func (s *ChatApp) postMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBody)

	var req PostMessageRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		req.Name = r.PostForm.Get("name")
		req.Message = r.PostForm.Get("message")
		req.Id = r.PostForm.Get("id")
	}

	if _, err := s.chat.Post(r.Context(), req.Name, req.Message, req.Id); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// non-browser clients send no origin
				return true
			}
			if origin == "http://"+r.Host || origin == "https://"+r.Host {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(conn, s.cs, s.chat, s.log)
	if !s.cs.RegisterClient(client) {
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}

func (s *ChatApp) notFound(w http.ResponseWriter, r *http.Request) {
	errResp := NewNotFoundError()
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *ChatApp) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	errResp := NewMethodNotAllowedError()
	s.writeJson(w, errResp.StatusCode, errResp)
}
