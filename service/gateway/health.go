package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"vhrealtime/global"
)

type RoomCounter interface {
	Rooms() int
}

type healthBody struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	ChatRooms   int    `json:"chat_rooms"`
	SignalRooms int    `json:"signal_rooms"`
}

// HealthHandler GET /health
func HealthHandler(chatRooms, signalRooms RoomCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, healthBody{
			Status:      "ok",
			Service:     global.ServiceName,
			ChatRooms:   chatRooms.Rooms(),
			SignalRooms: signalRooms.Rooms(),
		})
	}
}

// HealthService is the gRPC health endpoint. The overall status and the named
// service flip together.
type HealthService struct {
	name string
	gs   *grpc.Server
	hs   *health.Server
	log  *zap.Logger
}

const grpcServiceName = "vh.realtime.Gateway"

func NewHealthService(log *zap.Logger) *HealthService {
	if log == nil {
		log = zap.NewNop()
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	h := &HealthService{name: grpcServiceName, gs: gs, hs: hs, log: log.Named("grpc")}
	h.set(healthpb.HealthCheckResponse_SERVING)
	return h
}

func (h *HealthService) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(h.name, st)
}

// Serve blocks until Stop.
func (h *HealthService) Serve(lis net.Listener) error {
	h.log.Info("gRPC health listening", zap.String("addr", lis.Addr().String()))
	if err := h.gs.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Draining reports NOT_SERVING while the process shuts down.
func (h *HealthService) Draining() {
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
}

func (h *HealthService) Stop(ctx context.Context) {
	h.hs.Shutdown()
	done := make(chan struct{})
	go func() {
		h.gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.gs.Stop()
	}
}

// Server exposes the grpc server so other services can be registered next to health.
func (h *HealthService) Server() *grpc.Server { return h.gs }
