package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/npezzotti/nodechat/internal/config"
	"github.com/npezzotti/nodechat/internal/server"
	"github.com/npezzotti/nodechat/internal/types"
)

// ChatService is what the HTTP and websocket handlers drive.
type ChatService interface {
	server.ChatService
	Log(ctx context.Context, since *int64) (types.Snapshot, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type ChatApp struct {
	log            *log.Logger
	mux            *http.Server
	cs             *server.ChatServer
	chat           ChatService
	store          Pinger
	allowedOrigins []string
}

func NewChatApp(logger *log.Logger, cs *server.ChatServer, svc ChatService, st Pinger, statsHandler http.Handler, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:            logger,
		cs:             cs,
		chat:           svc,
		store:          st,
		allowedOrigins: cfg.AllowedOrigins(),
	}

	r := mux.NewRouter()
	r.Use(s.accessLog)
	r.Methods(http.MethodGet).Path("/log").HandlerFunc(s.getLog)
	r.Methods(http.MethodPost).Path("/message").HandlerFunc(s.postMessage)
	r.Methods(http.MethodGet).Path("/ws").HandlerFunc(s.serveWs)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(s.healthCheck)
	if statsHandler != nil {
		r.Methods(http.MethodGet).Path("/debug/vars").Handler(statsHandler)
	}
	s.mountStatic(r, cfg.StaticDir)

	r.NotFoundHandler = http.HandlerFunc(s.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowed)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(s.allowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(r)

	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.Addr(),
		Handler: h,
	}

	return s
}

// mountStatic serves the browser pages from dir when it exists.
func (s *ChatApp) mountStatic(r *mux.Router, dir string) {
	if dir == "" {
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		s.log.Printf("static dir %q not found, not serving pages", dir)
		return
	}

	r.Methods(http.MethodGet).Path("/lights").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(dir, "lights.html"))
	})
	r.Methods(http.MethodGet, http.MethodHead).PathPrefix("/").Handler(http.FileServer(http.Dir(dir)))
}

func (s *ChatApp) Handler() http.Handler {
	return s.mux.Handler
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
