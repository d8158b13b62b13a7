package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"sudooom.im.realtime/internal/config"
	"sudooom.im.realtime/internal/gateway"
	"sudooom.im.realtime/internal/handler"
	"sudooom.im.realtime/internal/health"
	"sudooom.im.realtime/internal/jwt"
	imNats "sudooom.im.realtime/internal/nats"
	"sudooom.im.realtime/internal/publisher"
	"sudooom.im.realtime/internal/registry"
	"sudooom.im.realtime/internal/repository"
	"sudooom.im.realtime/internal/server"
	"sudooom.im.realtime/internal/snowflake"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.App.LogLevel),
	}))
	slog.SetDefault(logger)

	// 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := connectDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL", "host", cfg.Database.Host)

	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, db); err != nil {
			logger.Error("Failed to migrate database schema", "error", err)
			os.Exit(1)
		}
	}

	// 连接 Redis
	redisClient := connectRedis(cfg.Redis)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr())

	// 连接 NATS
	natsClient, err := imNats.NewClient(cfg.NATS, cfg.App.Name+"-"+cfg.App.NodeID)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	logger.Info("Connected to NATS", "url", cfg.NATS.URL)

	// 存储层
	idNode, err := snowflake.NewNode(cfg.App.WorkerID)
	if err != nil {
		logger.Error("Failed to create id generator", "error", err)
		os.Exit(1)
	}
	chatRepo := repository.NewChatMessageRepository(db, idNode)
	notificationRepo := repository.NewNotificationRepository(db)
	connRegistry := registry.NewRegistry(redisClient)

	// 投递网关：本节点连接走 Hub，其余节点走 NATS
	hub := gateway.NewHub()
	pusher := gateway.NewRouter(cfg.App.NodeID, hub, imNats.NewRemotePusher(natsClient.Conn()))
	gw := gateway.NewGateway(pusher, connRegistry, cfg.Realtime.PushTimeout)

	responder := imNats.NewPushResponder(natsClient.Conn(), cfg.App.NodeID, hub, cfg.Realtime.PushTimeout)
	if err := responder.Start(); err != nil {
		logger.Error("Failed to start push responder", "error", err)
		os.Exit(1)
	}

	// 领域事件
	eventPublisher := publisher.NewPublisher(connRegistry, notificationRepo, gw)
	subscriber := imNats.NewEventSubscriber(natsClient.Conn(), eventPublisher, imNats.SubscriberConfig{
		WorkerCount: cfg.Realtime.SubscriberWorkers,
		BufferSize:  cfg.Realtime.SubscriberBuffer,
	})
	if err := subscriber.Start(ctx); err != nil {
		logger.Error("Failed to start event subscriber", "error", err)
		os.Exit(1)
	}

	// 清理过期连接
	go registry.NewSweeper(connRegistry, cfg.Realtime.SweepInterval).Start(ctx)

	// 路由处理与服务器
	routeHandler := handler.NewHandler(chatRepo, connRegistry, gw, handler.Options{
		ConnectionTTL:    cfg.Realtime.ConnectionTTL,
		MaxMessageLength: cfg.Realtime.MaxMessageLength,
	})
	checker := health.NewChecker(cfg.App.NodeID, db, redisClient, natsClient.Conn(), hub)
	srv := server.New(cfg.Server, cfg.App.NodeID, routeHandler, hub, jwt.NewService(cfg.Auth.JWTSecret), chatRepo, checker)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("Realtime service started",
		"name", cfg.App.Name,
		"nodeId", cfg.App.NodeID,
		"stage", cfg.App.Stage)

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// 先关闭入口，断开连接时还需要注册表
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
	if err := subscriber.Stop(); err != nil {
		logger.Error("Failed to stop event subscriber", "error", err)
	}
	responder.Stop()
	cancel()

	logger.Info("Realtime service stopped")
}

// parseLevel 解析日志级别，未知值按 info 处理
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// connectRedis 连接 Redis
func connectRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// connectDatabase 连接 PostgreSQL
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
