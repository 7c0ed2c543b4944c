package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"voicechat_server/server/chat/api"
	"voicechat_server/server/chat/repository"
	"voicechat_server/server/chat/service"
	"voicechat_server/server/common/auth"
	"voicechat_server/server/common/infra/cache"
	"voicechat_server/server/common/infra/db"
	"voicechat_server/server/common/infra/mq"
	"voicechat_server/server/common/infra/object"
	commonlog "voicechat_server/server/common/log"
)

type Server struct {
	HTTPServer *http.Server
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	MQConn     *amqp.Connection
	Publisher  *service.EventPublisher
	Search     *service.SearchStore
	Runner     *service.JobRunner
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres: %w", err)
	}
	if err := repository.EnsureSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	redisClient, err := cache.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("initialize redis: %w", err)
	}

	minioClient, err := object.NewClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		return nil, fmt.Errorf("initialize minio: %w", err)
	}
	if err := object.EnsureBucket(ctx, minioClient, cfg.MinioBucket); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	var (
		mqConn    *amqp.Connection
		publisher *service.EventPublisher
	)
	if cfg.UseMQ {
		mqConn, err = mq.NewConnection(cfg.LavinMQURL)
		if err != nil {
			return nil, fmt.Errorf("initialize lavinmq: %w", err)
		}
		publisher, err = service.NewEventPublisher(mqConn)
		if err != nil {
			return nil, fmt.Errorf("initialize event publisher: %w", err)
		}
	}

	var embedder service.Embedder
	if cfg.EmbeddingEndpoint != "" {
		httpEmbedder := service.NewHTTPEmbedder(cfg.EmbeddingEndpoint, cfg.EmbeddingDim)
		httpEmbedder.WarmUp()
		embedder = httpEmbedder
	} else {
		commonlog.Warnf("event=startup action=embedder status=fallback detail=hash_embedder")
		embedder = service.NewHashEmbedder(cfg.EmbeddingDim)
	}

	searchStore, err := service.NewSearchStore(cfg.IndexDir, embedder)
	if err != nil {
		return nil, fmt.Errorf("initialize search store: %w", err)
	}

	tokens := auth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes)
	presence := service.NewRedisPresence(redisClient)
	hub := service.NewHub(presence)
	runner := service.NewJobRunner(cfg.EnrichWorkers, cfg.EnrichQueueLen)
	fileStore := service.NewFileStore(minioClient, cfg.MinioBucket)

	messageRepo := repository.NewMessageRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	roomRepo := repository.NewRoomRepository(pool)

	transcriber := service.NewWhisperClient(cfg.WhisperEndpoint)
	extractor := service.NewTikaClient(cfg.TikaEndpoint)

	enrichSvc := service.NewEnrichmentService(messageRepo, fileStore, searchStore, hub, transcriber, extractor, publisher, runner)
	chatSvc := service.NewChatService(messageRepo, roomRepo, fileStore, searchStore, hub, enrichSvc, publisher, runner)
	searchSvc := service.NewSearchService(messageRepo, roomRepo, searchStore)
	userSvc := service.NewUserService(userRepo, tokens, presence)
	roomSvc := service.NewRoomService(roomRepo, roomRepo)

	h := api.NewHandler(userSvc, roomSvc, chatSvc, searchSvc, hub, fileStore, roomRepo, tokens)
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	h.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		HTTPServer: httpServer,
		Pool:       pool,
		Redis:      redisClient,
		MQConn:     mqConn,
		Publisher:  publisher,
		Search:     searchStore,
		Runner:     runner,
	}, nil
}

// Shutdown stops accepting requests first, then drains the enrichment
// queue while the stores it writes to are still open.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTPServer.Shutdown(ctx)
	s.Runner.Stop()
	s.Publisher.Close()
	if s.MQConn != nil {
		_ = s.MQConn.Close()
	}
	if s.Search != nil {
		_ = s.Search.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
	return err
}
