package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/diagramsync/handlers"
	"github.com/gogotex/diagramsync/internal/collab"
	"github.com/gogotex/diagramsync/internal/config"
	"github.com/gogotex/diagramsync/internal/database"
	"github.com/gogotex/diagramsync/internal/document"
	"github.com/gogotex/diagramsync/internal/document/repository"
	"github.com/gogotex/diagramsync/internal/document/service"
	"github.com/gogotex/diagramsync/internal/identity"
	"github.com/gogotex/diagramsync/internal/oidc"
	"github.com/gogotex/diagramsync/internal/relay"
	"github.com/gogotex/diagramsync/internal/revocation"
	"github.com/gogotex/diagramsync/internal/storage"
	"github.com/gogotex/diagramsync/internal/transport/ws"
	"github.com/gogotex/diagramsync/internal/users"
	"github.com/gogotex/diagramsync/pkg/logger"
	"github.com/gogotex/diagramsync/pkg/metrics"
	"github.com/gogotex/diagramsync/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: keycloak=%v mongo=%v redis=%v minio=%v", cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "")
	if cfg.Server.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.ReadinessCheck{}

	// Redis: token revocation, shared rate limiting, cross-instance relay
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
		} else {
			logger.Infof("connected to Redis %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		defer func() { _ = rdb.Close() }()
	}
	revocations := revocation.NewRedisStore(rdb)

	// Document Store and user profiles
	var docs document.Repository = repository.NewMemoryRepo()
	var userRepo users.UserRepository = users.NewMemoryUserRepository()
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5, time.Second)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		db := client.Database(cfg.MongoDB.Database)
		mongoDocs, err := repository.NewMongoRepo(ctx, db.Collection("diagrams"))
		if err != nil {
			logger.Fatalf("document repository: %v", err)
		}
		docs = mongoDocs
		userRepo = users.NewMongoUserRepository(db.Collection("users"))
		checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		logger.Infof("using MongoDB database %s", cfg.MongoDB.Database)
	}

	verifier := buildVerifier(ctx, cfg, revocations)

	docSvc := service.New(docs)
	rooms := collab.NewRegistry(docSvc.Policy())
	router := collab.NewRouter(docSvc.Policy(), docs, rooms)
	hub := collab.NewHub(rooms, router)

	if cfg.Collab.RelayEnabled && rdb != nil {
		rl := relay.NewRedisRelay(rdb, cfg.Collab.RelayChannel)
		router.WithPublisher(rl)
		go func() {
			if err := rl.Run(ctx, func(ev collab.Event) { router.ApplyRemote(ev) }, nil); err != nil {
				logger.Errorf("relay stopped: %v", err)
			}
		}()
	}

	var archive handlers.Archiver
	if cfg.MinIO.Endpoint != "" {
		st, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			logger.Warnf("archive storage disabled: %v", err)
		} else {
			archive = st
		}
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), cors(cfg.Server.CORSOrigin))

	handlers.RegisterHealth(r, checks)
	handlers.RegisterSwagger(r)
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	wsOpts := ws.OptionsFromConfig(cfg.Collab, cfg.Server.CORSOrigin)
	r.GET("/ws", ws.NewHandler(hub, verifier, wsOpts).Serve)
	r.GET("/socket", ws.NewHandler(hub, verifier, wsOpts).Serve)

	authed := r.Group("/", middleware.AuthMiddleware(verifier))
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			authed.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			authed.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	handlers.NewDocumentHandler(docSvc, router, archive).Register(authed)

	var revoker handlers.Revoker
	if rdb != nil {
		revoker = revocations
	}
	auth := handlers.NewAuthHandler(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL, users.NewService(userRepo), revoker, rooms)
	auth.Register(authed)
	if cfg.Server.Environment == "development" && cfg.Server.DevTokens {
		logger.Warn("dev token issuer enabled at POST /auth/dev-token")
		auth.RegisterDevTokens(&r.RouterGroup)
	}

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}
	go func() {
		logger.Infof("starting diagram collaboration service on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("graceful shutdown: %v", err)
	}
	for _, s := range rooms.AllSessions() {
		s.Close()
	}
}

// buildVerifier chains the HS256 verifier with the Keycloak OIDC verifier when configured.
func buildVerifier(ctx context.Context, cfg *config.Config, revocations identity.RevocationChecker) identity.Verifier {
	var chain identity.Chain
	if cfg.JWT.Secret != "" {
		chain = append(chain, identity.NewJWTVerifier(cfg.JWT.Secret, revocations))
	}
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" {
		v, err := oidc.NewVerifier(ctx, oidc.Issuer(cfg.Keycloak.URL, cfg.Keycloak.Realm), cfg.Keycloak.ClientID, revocations)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			chain = append(chain, v)
		}
	}
	if len(chain) == 0 {
		logger.Warn("no token verifier configured; every request will be rejected")
	}
	return chain
}

// cors sets the allowed origin for browser clients and answers preflight requests.
func cors(origin string) gin.HandlerFunc {
	if strings.TrimSpace(origin) == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
