// Package session drives WebSocket connections through their lifecycle:
// Handshaking, Active, Draining, Closed. Each endpoint is a Handler mounted
// from a route table at startup.
package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/weiawesome/wes-chat-realtime/internal/audit"
	"github.com/weiawesome/wes-chat-realtime/internal/config"
	"github.com/weiawesome/wes-chat-realtime/internal/metrics"
	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

// RoomVar is the path variable holding the room id.
const RoomVar = "roomId"

// Handler runs an Active session until its inbound loop ends, performs the
// endpoint's Draining effects and closes the connection.
type Handler interface {
	Endpoint() string
	Handle(c *Conn) error
}

// Route binds a path pattern to a handler.
type Route struct {
	Pattern string
	Handler Handler
}

// Server performs the shared handshake for every route.
type Server struct {
	ws       config.WebSocketConfig
	sess     config.SessionConfig
	auth     *Authenticator
	detach   *Detacher
	upgrader websocket.Upgrader
}

func NewServer(ws config.WebSocketConfig, sess config.SessionConfig, allowedOrigins []string, auth *Authenticator, detach *Detacher) *Server {
	if ws.PingInterval <= 0 {
		ws.PingInterval = 54 * time.Second
	}
	if ws.PongWait <= ws.PingInterval {
		ws.PongWait = ws.PingInterval * 10 / 9
	}
	if ws.WriteWait <= 0 {
		ws.WriteWait = 10 * time.Second
	}
	if ws.MaxMessageSize <= 0 {
		ws.MaxMessageSize = 64 * 1024
	}
	return &Server{
		ws:     ws,
		sess:   sess,
		auth:   auth,
		detach: detach,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// Mount registers every route on r.
func (s *Server) Mount(r *mux.Router, routes []Route) {
	for _, rt := range routes {
		r.HandleFunc(rt.Pattern, s.serve(rt.Handler))
	}
}

func (s *Server) serve(h Handler) http.HandlerFunc {
	endpoint := h.Endpoint()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		roomID := strings.TrimSpace(mux.Vars(r)[RoomVar])

		userID, err := s.auth.Identify(r)
		if err != nil || roomID == "" {
			metrics.SessionRejects.WithLabelValues(endpoint).Inc()
			reason := "missing room"
			if err != nil {
				reason = err.Error()
			}
			audit.LogRoom(ctx, audit.ActionSessionRejected, roomID, userID, reason, "handshake rejected")
			status := http.StatusUnauthorized
			if err == nil {
				status = http.StatusBadRequest
			}
			http.Error(w, http.StatusText(status), status)
			return
		}

		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str("endpoint", endpoint).Msg("websocket upgrade failed")
			return
		}

		c := s.newConn(ctx, endpoint, roomID, userID, ws)
		metrics.Sessions.WithLabelValues(endpoint).Inc()
		audit.LogRoom(c.ctx, audit.ActionSessionOpen, roomID, userID, endpoint, "session opened")

		if err := h.Handle(c); err != nil {
			l := log.Ctx(c.ctx)
			l.Warn().Err(err).Msg("session ended with error")
		}
		c.Close()

		metrics.Sessions.WithLabelValues(endpoint).Dec()
		audit.LogRoom(c.ctx, audit.ActionSessionClose, roomID, userID, endpoint, "session closed")
	}
}

func (s *Server) newConn(parent context.Context, endpoint, roomID, userID string, ws *websocket.Conn) *Conn {
	id := uuid.New().String()
	ctx, l := log.WithRoom(context.WithoutCancel(parent), roomID, userID)
	l = l.With().Str(log.FieldSessionID, id).Str("endpoint", endpoint).Logger()
	ctx = log.WithLogger(ctx, l)
	ctx, cancel := context.WithCancel(ctx)

	limit := rate.Inf
	if s.sess.FrameRate > 0 {
		limit = rate.Limit(s.sess.FrameRate)
	}
	burst := s.sess.FrameBurst
	if burst <= 0 {
		burst = 1
	}

	return &Conn{
		id:       id,
		endpoint: endpoint,
		roomID:   roomID,
		userID:   userID,
		ws:       ws,
		cfg:      s.ws,
		limiter:  rate.NewLimiter(limit, burst),
		lane:     s.detach.Lane(ctx),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
