package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"vhrealtime/data/database/mgo/mongoutil"
	"vhrealtime/data/database/pg"
	"vhrealtime/global"
	"vhrealtime/logger"
	"vhrealtime/module/history"
	"vhrealtime/service/chat"
	"vhrealtime/service/gateway"
	"vhrealtime/service/identity"
	"vhrealtime/service/natsx"
	"vhrealtime/service/room"
	"vhrealtime/service/signal"
	"vhrealtime/service/storage"
	redisx "vhrealtime/service/storage/redis"
	"vhrealtime/tools/security"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		logger.Error("realtime terminated", zap.Error(err))
	}
	logger.Sync()
	os.Exit(code)
}

func run() (int, error) {
	// 1) config + logger
	cfg, err := global.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	if err := global.ConfigAll(cfg); err != nil {
		return exitConfig, err
	}
	log := logger.Log

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2) storage
	pool, err := pg.Open(ctx, cfg.DatabaseUrl)
	if err != nil {
		return exitRuntime, err
	}
	defer pool.Close()

	var rdb *redisx.RedisManager
	if cfg.RedisAddr != "" {
		rdb, err = redisx.Open(ctx, redisx.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		})
		if err != nil {
			return exitRuntime, err
		}
		defer rdb.Close()
	}

	var users storage.UserStore = storage.NewPgUserStore(pool)
	if rdb != nil && cfg.IdentityCacheTTL > 0 {
		users = storage.NewCachedUserStore(users, rdb.Client(), cfg.IdentityCacheTTL, log)
	}

	store, closeStore, err := openMessageStore(ctx, cfg, pool, rdb)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()

	// 3) event bus
	var pub chat.Publisher
	if cfg.NatsUrl != "" {
		events, closeEvents, err := openPublisher(cfg, log)
		if err != nil {
			return exitRuntime, err
		}
		defer closeEvents()
		pub = events
	}

	// 4) rooms and services
	verifier := identity.NewVerifier(security.Options{
		Secret: []byte(cfg.JwtSecret),
		Alg:    cfg.JwtAlg,
		TTL:    cfg.JwtTTL,
	}, users, log)

	chatRooms := room.NewRegistry("chat", log)
	signalRooms := room.NewRegistry("signal", log)
	defer chatRooms.Close()
	defer signalRooms.Close()

	chatSvc := chat.NewService(chatRooms, store, pub, chat.Options{
		PersistTimeout:  cfg.PersistTimeout,
		TimestampLayout: cfg.TimestampLayout,
	}, log)
	relay := signal.NewRelay(signalRooms, log)

	ws := gateway.NewServer(verifier, gateway.Options{
		SendQueueSize:   cfg.SendQueueSize,
		WriteWait:       cfg.WriteWait,
		PongWait:        cfg.PongWait,
		PingInterval:    cfg.PingInterval,
		MaxMessageBytes: cfg.MaxMessageBytes,
		Origins:         cfg.Origins(),
	}, log)

	engine := gateway.NewRouter(gateway.RouterDeps{
		WS:          ws,
		Chat:        chatSvc,
		Signal:      relay,
		ChatRooms:   chatRooms,
		SignalRooms: signalRooms,
		History:     history.NewHandler(chatSvc, log),
		Verifier:    verifier,
		Origins:     cfg.Origins(),
		Log:         log,
	})

	// 5) listeners
	errCh := make(chan error, 2)

	healthSvc := gateway.NewHealthService(log)
	if cfg.GrpcPort > 0 {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.GrpcPort)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return exitRuntime, fmt.Errorf("grpc listen %s: %w", addr, err)
		}
		go func() {
			if err := healthSvc.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.Addr()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()

	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case runErr = <-errCh:
		code = exitRuntime
	}

	// 6) shutdown: stop taking sockets, close live ones so every Leave runs
	healthSvc.Draining()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := ws.Shutdown(shutdownCtx); err != nil {
		log.Warn("websocket shutdown", zap.Error(err))
	}
	healthSvc.Stop(shutdownCtx)
	log.Info("bye")
	return code, runErr
}

func openMessageStore(ctx context.Context, cfg global.AppConfig, pool *pgxpool.Pool, rdb *redisx.RedisManager) (storage.MessageStore, func(), error) {
	switch cfg.MessageStore {
	case global.StoreMongo:
		cli, err := mongoutil.NewMongoDB(ctx, &mongoutil.Config{Uri: cfg.MongoUri, Database: cfg.MongoDB})
		if err != nil {
			return nil, nil, err
		}
		s := storage.NewMongoMessageStore(cli.GetDB())
		if err := s.EnsureIndexes(ctx); err != nil {
			logger.Warn("mongo index", zap.Error(err))
		}
		return s, func() {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = cli.Close(cctx)
		}, nil
	case global.StoreRedis:
		if rdb == nil {
			return nil, nil, errors.New("redis message store needs REDIS_ADDR")
		}
		return storage.NewRedisMessageStore(rdb.Client(), cfg.RedisStreamMaxLen), func() {}, nil
	default:
		return storage.NewPgMessageStore(pool), func() {}, nil
	}
}

func openPublisher(cfg global.AppConfig, log *zap.Logger) (*natsx.ChatEventPublisher, func(), error) {
	client, err := natsx.NewNatsxClient(natsx.NatsxConfig{
		Servers: natsx.ParseServers(cfg.NatsUrl),
		Name:    "vh-realtime",
	})
	if err != nil {
		return nil, nil, err
	}
	mode := natsx.Core
	if cfg.NatsJetStream {
		mode = natsx.JetStream
	}
	if err := client.RegisterRoute(natsx.NatsxRoute{
		Biz:     natsx.BizChatMessageCreated,
		Subject: cfg.NatsSubject,
		Mode:    mode,
	}); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	events := natsx.NewChatEventPublisher(natsx.NewNatsxProducer(client), cfg.NatsQueueSize, log)
	return events, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = events.Close(ctx)
		_ = client.Close()
	}, nil
}
