// Package stream exposes the orchestrator's watch operations over
// websockets. Every endpoint follows the same shape: subscribe, push the
// current state, then push every change until the client goes away.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openagora/agora/internal/app"
	"github.com/openagora/agora/internal/core"
	"github.com/openagora/agora/internal/domain"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Orch       *app.Orchestrator
	ReadLimit  int64
	PingPeriod time.Duration
}

type wsConn struct {
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan core.Frame
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrBackpressure
	}
	select {
	case c.send <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.conn.Close()
}

// Board streams the shared room projection.
func (ctl *Controller) Board(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	serve(ctl, c, func(ctx context.Context, fn func(domain.BoardState)) (func(), error) {
		return ctl.Orch.WatchBoard(ctx, roomID, fn)
	})
}

// Voter streams one voter's private projection, authorized by voting key.
func (ctl *Controller) Voter(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	key := votingKey(c)
	serve(ctl, c, func(ctx context.Context, fn func(domain.VoterState)) (func(), error) {
		return ctl.Orch.WatchVoter(ctx, roomID, key, fn)
	})
}

// WaitingList streams the admin's waiting-list view. The admin key is
// verified once, when the stream opens.
func (ctl *Controller) WaitingList(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	key := adminKey(c)
	serve(ctl, c, func(ctx context.Context, fn func([]domain.WaitingListEntry)) (func(), error) {
		return ctl.Orch.WatchWaitingList(ctx, roomID, key, fn)
	})
}

// Admission streams a waiting participant's status until a decision lands.
func (ctl *Controller) Admission(c *gin.Context) {
	id := domain.ParticipantID(c.Param("id"))
	serve(ctl, c, func(ctx context.Context, fn func(domain.AdmissionState)) (func(), error) {
		return ctl.Orch.WatchAdmission(ctx, id, fn)
	})
}

// serve upgrades the request and bridges one watch subscription onto the
// socket. It blocks until the client disconnects so the request context
// stays alive for the subscription's lifetime.
func serve[T any](ctl *Controller, c *gin.Context, watch func(context.Context, func(T)) (func(), error)) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.stream").Msg("ws upgrade failed")
		return
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	stop, err := watch(ctx, func(v T) {
		b, err := json.Marshal(v)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.stream").Msg("marshal frame")
			return
		}
		if err := conn.TrySend(b); err != nil {
			// A client that cannot keep up gets disconnected rather than
			// making the publisher wait.
			log.Warn().Str("module", "adapters.stream").Msg("slow stream client dropped")
			conn.Close()
		}
	})
	if err != nil {
		_ = ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(writeWait),
		)
		_ = ws.Close()
		return
	}
	defer stop()

	go ctl.writePump(ctx, conn)
	ctl.readPump(ctx, conn)
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ping := time.NewTicker(ctl.pingPeriod())
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "adapters.stream").Msg("writePump write error")
				return
			}
		case <-ping.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump exists to notice the disconnect; stream clients never send
// application data.
func (ctl *Controller) readPump(ctx context.Context, c *wsConn) {
	defer c.Close()

	if ctl.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.ReadLimit)
	}
	wait := ctl.pingPeriod() * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if _, _, err := c.conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func (ctl *Controller) pingPeriod() time.Duration {
	if ctl.PingPeriod > 0 {
		return ctl.PingPeriod
	}
	return 54 * time.Second
}

func votingKey(c *gin.Context) domain.VotingKey {
	if k := c.GetHeader("X-Voting-Key"); k != "" {
		return domain.VotingKey(k)
	}
	return domain.VotingKey(c.Query("key"))
}

func adminKey(c *gin.Context) domain.AdminKey {
	if k := c.GetHeader("X-Admin-Key"); k != "" {
		return domain.AdminKey(k)
	}
	return domain.AdminKey(c.Query("key"))
}
