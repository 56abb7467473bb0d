package session

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/weiawesome/wes-chat-realtime/internal/config"
	"github.com/weiawesome/wes-chat-realtime/internal/hub"
	"github.com/weiawesome/wes-chat-realtime/internal/metrics"
	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

var ErrNotHandshaking = errors.New("session already opened")

// ReplayFunc produces the frames written to a new connection before any live
// traffic.
type ReplayFunc func(ctx context.Context) ([][]byte, error)

// FrameFunc handles one inbound frame.
type FrameFunc func(ctx context.Context, data []byte)

// Conn is one upgraded connection of an authenticated user in a room.
type Conn struct {
	id       string
	endpoint string
	roomID   string
	userID   string

	ws      *websocket.Conn
	cfg     config.WebSocketConfig
	limiter *rate.Limiter
	lane    *Lane

	ctx    context.Context
	cancel context.CancelFunc
	state  stateMachine

	hub        *hub.Hub
	sink       *hub.Sink
	writerDone chan struct{}
}

func (c *Conn) ID() string               { return c.id }
func (c *Conn) Endpoint() string         { return c.endpoint }
func (c *Conn) RoomID() string           { return c.roomID }
func (c *Conn) UserID() string           { return c.userID }
func (c *Conn) Context() context.Context { return c.ctx }
func (c *Conn) State() State             { return c.state.Load() }

// Effects is the connection's ordered side-effect lane.
func (c *Conn) Effects() *Lane { return c.lane }

// Open registers a sink on h and starts the outbound loop, which writes the
// replay batch first. It moves the session to Active.
func (c *Conn) Open(h *hub.Hub, replay ReplayFunc) (*hub.Sink, error) {
	if !c.state.advance(StateActive, StateHandshaking) {
		return nil, ErrNotHandshaking
	}
	c.hub = h
	c.sink = h.Register(c.roomID, c.userID)
	c.writerDone = make(chan struct{})
	go c.writePump(replay)

	l := log.Ctx(c.ctx)
	l.Debug().Uint64(log.FieldSinkID, c.sink.ID()).Str(log.FieldHub, h.Name()).Msg("session active")
	return c.sink, nil
}

// ReadLoop hands inbound frames to fn until the peer goes away, then moves
// the session to Draining. Frames over the rate limit are dropped.
func (c *Conn) ReadLoop(fn FrameFunc) {
	defer c.state.advance(StateDraining, StateActive)

	l := log.Ctx(c.ctx)

	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				l.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		if !c.limiter.Allow() {
			metrics.SessionFrames.WithLabelValues("any", metrics.ResultDropped).Inc()
			l.Warn().Msg("frame rate exceeded, frame dropped")
			continue
		}

		fn(c.ctx, data)
	}
}

// Close unregisters the sink, waits for the outbound loop and closes the
// transport. It is safe to call more than once.
func (c *Conn) Close() {
	if !c.state.advance(StateClosed, StateDraining, StateActive, StateHandshaking) {
		return
	}

	if c.sink != nil {
		c.hub.Unregister(c.sink)
		select {
		case <-c.writerDone:
		case <-time.After(c.cfg.WriteWait + time.Second):
		}
	}
	c.lane.Close()
	c.cancel()
	c.ws.Close()
}

func (c *Conn) writePump(replay ReplayFunc) {
	defer close(c.writerDone)

	l := log.Ctx(c.ctx)
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	if replay != nil {
		batch, err := replay(c.ctx)
		if err != nil {
			l.Warn().Err(err).Msg("replay failed, continuing with live traffic")
		}
		for _, payload := range batch {
			if err := c.write(websocket.TextMessage, payload); err != nil {
				l.Warn().Err(err).Msg("websocket write failed, outbound loop stopped")
				return
			}
		}
	}

	for {
		select {
		case <-c.sink.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.write(websocket.CloseMessage, msg)
			// Bound the wait for the peer's close reply.
			c.ws.SetReadDeadline(time.Now().Add(c.cfg.WriteWait))
			return

		case payload := <-c.sink.C():
			if err := c.write(websocket.TextMessage, payload); err != nil {
				l.Warn().Err(err).Msg("websocket write failed, outbound loop stopped")
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				l.Warn().Err(err).Msg("websocket ping failed, outbound loop stopped")
				return
			}
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return c.ws.WriteMessage(messageType, data)
}
