package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"studygroup-chat/internal/auth"
	"studygroup-chat/internal/config"
	"studygroup-chat/internal/db"
	"studygroup-chat/internal/handlers"
	"studygroup-chat/internal/middleware"
	"studygroup-chat/internal/models"
	"studygroup-chat/internal/observability"
	"studygroup-chat/internal/rabbitmq"
	"studygroup-chat/internal/repositories"
	"studygroup-chat/internal/services"
	"studygroup-chat/internal/storage"
	"studygroup-chat/internal/telemetry"
	"studygroup-chat/internal/ws"
)

const serviceName = "studygroup-chat"

type fanout interface {
	Publish(ctx context.Context, msg models.ChatMessage) error
	Close() error
}

func main() {
	fs := pflag.NewFlagSet(serviceName, pflag.ExitOnError)
	config.ServerFlags(fs)
	cfg, err := config.LoadServer(fs, os.Args[1:])
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	shutdownTracer, err := telemetry.InitTracer(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	store, err := storage.NewDiskStore(cfg.StorageDir)
	if err != nil {
		log.Fatalf("failed to open file storage: %v", err)
	}

	publisher := rabbitmq.NewPublisher(rabbitmq.Config{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange})
	log.Printf("rabbitmq publisher mode=%s reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", serviceName, cfg.Environment)

	tokens := auth.NewAuthority(cfg.JWTSecret, 0)

	groupRepo := repositories.NewGroupRepo(database)
	userRepo := repositories.NewUserRepo(database)
	messageRepo := repositories.NewChatMessageRepo(database)
	fileRepo := repositories.NewFileRepo(database)
	chatService := services.NewChatService(groupRepo, userRepo, messageRepo)

	hub := ws.NewHub()
	out, err := newFanout(ctx, cfg.RedisURL, hub)
	if err != nil {
		log.Fatalf("failed to set up fan-out: %v", err)
	}

	sessionCfg := ws.DefaultSessionConfig()
	sessionCfg.Heartbeat = cfg.Heartbeat
	broker := ws.NewBrokerHandler(hub, chatService, out, tokens, sessionCfg)
	chatHandler := handlers.NewChatHandler(chatService, fileRepo, store, out, audit)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// middlewares
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(tokens)

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", broker.Handle)

	api := router.Group("/api", authMiddleware)
	api.GET("/chat/:group_id/messages", chatHandler.GetGroupMessages)
	api.POST("/chat/:group_id/upload", chatHandler.UploadFile)
	api.POST("/chat/:group_id/upload-file", chatHandler.PublishFile)
	api.POST("/chat/:group_id/share-link", chatHandler.ShareLink)
	api.GET("/files/:file_id", chatHandler.DownloadFile)

	handlers.RegisterDebugRoutes(router, hub, audit, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("chat server listening port=%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			hub.Shutdown()
			return srv.Shutdown(ctx)
		},
		"fanout": func(context.Context) error {
			return out.Close()
		},
		"rabbitmq": func(context.Context) error {
			return publisher.Close()
		},
		"tracer": shutdownTracer,
	})
	exitCode := <-wait
	if err := database.Close(); err != nil {
		log.Printf("close db: %v", err)
	}
	log.Printf("chat server exited code=%d", exitCode)
	os.Exit(exitCode)
}

func newFanout(ctx context.Context, redisURL string, hub *ws.Hub) (fanout, error) {
	if redisURL == "" {
		log.Printf("fan-out mode=local")
		return ws.NewLocalFanout(hub), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	f, err := ws.NewRedisFanout(ctx, redis.NewClient(opts), hub)
	if err != nil {
		return nil, err
	}
	log.Printf("fan-out mode=redis addr=%s", opts.Addr)
	return f, nil
}
