package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"vhrealtime/middleware"
	"vhrealtime/middleware/security"
	"vhrealtime/service/room"
	"vhrealtime/tools/errs"
	"vhrealtime/tools/ids"
	"vhrealtime/tools/safe"
)

// RoomService is what a socket endpoint drives: chat and signaling both fit.
type RoomService interface {
	Join(ctx context.Context, appointmentID int64, m room.Member) error
	Receive(ctx context.Context, appointmentID int64, m room.Member, raw []byte) error
	Leave(ctx context.Context, appointmentID int64, m room.Member)
}

type Options struct {
	SendQueueSize   int
	WriteWait       time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
	Origins         []string // empty allows all
}

func (o *Options) norm() {
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 256
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 * 1024
	}
}

type Server struct {
	verifier security.TokenVerifier
	opts     Options
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu      sync.Mutex
	clients map[string]*Client
	wg      sync.WaitGroup
	closed  bool
}

func NewServer(verifier security.TokenVerifier, opts Options, log *zap.Logger) *Server {
	opts.norm()
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		verifier: verifier,
		opts:     opts,
		log:      log.Named("gateway"),
		clients:  make(map[string]*Client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.OriginAllowed(opts.Origins, r.Header.Get("Origin"))
		},
	}
	return s
}

// Handle returns the gin handler for one socket endpoint backed by svc.
func (s *Server) Handle(name string, svc RoomService) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.serve(c, name, svc)
	}
}

func (s *Server) track(cl *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[cl.ID()] = cl
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(cl *Client) {
	s.mu.Lock()
	delete(s.clients, cl.ID())
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) serve(c *gin.Context, name string, svc RoomService) {
	appointmentID, err := strconv.ParseInt(c.Param("appointment_id"), 10, 64)
	if err != nil || appointmentID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "appointment_id must be a positive integer"})
		return
	}
	token := c.Query("token")

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败，upgrader 已经回了错误响应
		s.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	log := s.log.With(zap.String("endpoint", name), zap.Int64("appointment", appointmentID))

	who, err := s.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		log.Info("rejected credential", zap.Error(err))
		e := errs.ErrAuthenticationRejected
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(e.Code, e.Msg), time.Now().Add(s.opts.WriteWait))
		_ = ws.Close()
		return
	}

	cl := newClient(ids.GenerateString(), who, ws, s.opts)
	log = log.With(zap.String("conn", cl.ID()), zap.Int64("user_id", who.UserID))
	go cl.writePump()
	defer cl.wait()
	// runs before wait on every path, panics included; a no-op if already closed
	defer cl.Close(websocket.CloseInternalServerErr, "internal error")
	if !s.track(cl) {
		cl.Close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.untrack(cl)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if err := safe.Run(func() error { return svc.Join(ctx, appointmentID, cl) }); err != nil {
		log.Warn("join failed", zap.Error(err))
		cl.Close(websocket.CloseTryAgainLater, "try again later")
		return
	}
	log.Info("joined")
	defer func() {
		if err := safe.Run(func() error { svc.Leave(ctx, appointmentID, cl); return nil }); err != nil {
			log.Error("leave failed", zap.Error(err))
			return
		}
		log.Info("left")
	}()

	s.readLoop(ctx, cl, appointmentID, svc, log)
}

func (s *Server) readLoop(ctx context.Context, cl *Client, appointmentID int64, svc RoomService, log *zap.Logger) {
	ws := cl.ws
	ws.SetReadLimit(s.opts.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	// ---- 读循环：只读，不写；出错即退出（写协程收尾） ----
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			var ne net.Error
			switch {
			case websocket.IsCloseError(rerr, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				log.Debug("peer closed", zap.Error(rerr))
			case errors.As(rerr, &ne) && ne.Timeout():
				log.Info("read timeout", zap.Error(rerr))
			default:
				log.Debug("read error", zap.Error(rerr))
			}
			cl.Close(websocket.CloseNormalClosure, "")
			return
		}

		var err error
		if mt != websocket.TextMessage {
			err = errs.ErrMalformedFrame.WrapMsg("text frames only")
		} else {
			err = safe.Run(func() error { return svc.Receive(ctx, appointmentID, cl, data) })
		}
		if err != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			log.Info("closing on bad frame", zap.Error(err), zap.ByteString("sample", sample))
			if errors.Is(err, errs.ErrMalformedFrame) {
				cl.Close(errs.MalformedFrameCode, "malformed frame")
			} else {
				cl.Close(websocket.CloseInternalServerErr, "internal error")
			}
			return
		}
	}
}

// Connections is the number of live sockets.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Shutdown closes every socket with "going away" and waits for the handlers to run
// their Leave, or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, cl := range s.clients {
		cl.Close(websocket.CloseGoingAway, "server shutting down")
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
