package gateway

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vhrealtime/middleware"
	"vhrealtime/middleware/security"
	"vhrealtime/module/history"
)

type RouterDeps struct {
	WS          *Server
	Chat        RoomService
	Signal      RoomService
	ChatRooms   RoomCounter
	SignalRooms RoomCounter
	History     *history.Handler
	Verifier    security.TokenVerifier
	Origins     []string
	Log         *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	mids := middleware.NewManager(middleware.ZapRecovery(log), middleware.ZapLogger(log))
	r.Use(mids.Use())

	// sockets do their own origin check at upgrade
	r.GET("/ws/chat/:appointment_id", d.WS.Handle("chat", d.Chat))
	r.GET("/ws/signal/:appointment_id", d.WS.Handle("signal", d.Signal))

	r.GET("/health", middleware.Origin(d.Origins), HealthHandler(d.ChatRooms, d.SignalRooms))

	if d.History != nil {
		api := r.Group("/api", middleware.Origin(d.Origins))
		rt := middleware.NewRoutes(api, security.Middleware(security.DefaultOptions(d.Verifier)))
		rt.GET("/chat/:appointment_id/", d.History.List, middleware.RouteOpt{IsAuth: true})
		rt.POST("/chat/:appointment_id/", d.History.Create, middleware.RouteOpt{IsAuth: true})
		// preflight must not hit auth
		api.OPTIONS("/chat/:appointment_id/", func(c *gin.Context) {})
	}
	return r
}
