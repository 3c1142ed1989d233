package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AniketPatel148/CivicLens/cache"
	"github.com/AniketPatel148/CivicLens/config"
	"github.com/AniketPatel148/CivicLens/database"
	"github.com/AniketPatel148/CivicLens/enrichment"
	"github.com/AniketPatel148/CivicLens/gemini"
	"github.com/AniketPatel148/CivicLens/handlers"
	"github.com/AniketPatel148/CivicLens/imaging"
	"github.com/AniketPatel148/CivicLens/llm"
	"github.com/AniketPatel148/CivicLens/metrics"
	"github.com/AniketPatel148/CivicLens/middleware"
	"github.com/AniketPatel148/CivicLens/openai"
	"github.com/AniketPatel148/CivicLens/rabbitmq"
	"github.com/AniketPatel148/CivicLens/service"
	"github.com/AniketPatel148/CivicLens/stubllm"
	ws "github.com/AniketPatel148/CivicLens/websocket"
)

func main() {
	cfg := config.Load()

	log.SetLevelFromString(cfg.LogLevel)
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	classifier, enricher := providers(cfg)
	orchestrator := enrichment.New(classifier, enricher, enrichment.Options{
		Mode:    cfg.OrchestrationMode,
		Timeout: cfg.ProviderTimeout,
	})
	log.WithFields(log.Fields{
		"mode":       orchestrator.Mode(),
		"classifier": sourceName(classifier),
		"enricher":   sourceName(enricher),
	}).Info("Enrichment pipeline ready")

	statsCache := openCache(ctx, cfg)
	defer statsCache.Close()

	hub := ws.NewHub()
	go hub.Run(ctx)

	opts := []service.Option{service.WithFeed(hub)}
	var eventBus handlers.ConnectionChecker
	if cfg.RabbitMQ.Enabled() {
		publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQ.GetAMQPURL(), cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		if err != nil {
			log.Fatalf("Failed to create RabbitMQ publisher: %v", err)
		}
		defer publisher.Close()
		opts = append(opts, service.WithPublisher(publisher))
		eventBus = publisher
		log.Infof("Publishing report events to exchange %s", cfg.RabbitMQ.Exchange)
	}

	svc := service.New(store, imaging.NewProcessor(cfg.ImageCompress), orchestrator,
		cache.NewStatsCache(statsCache, cfg.StatsCacheTTL), opts...)

	h := handlers.NewHandlers(svc, hub, cfg.CORSAllowedOrigins)
	if eventBus != nil {
		h.WithEventBus(eventBus)
	}
	router, err := setupRouter(cfg, h)
	if err != nil {
		log.Fatalf("Failed to configure router: %v", err)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	// Detached classifier calls are bounded by the provider timeout.
	orchestrator.Wait()
	log.Info("Server exited")
}

func setupRouter(cfg *config.Config, h *handlers.Handlers) (*gin.Engine, error) {
	router := gin.New()
	// ClientIP keys the rate limiter, so forwarded headers count only from known proxies.
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	router.Use(gin.Recovery())
	router.Use(middleware.Metrics())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/reports/listen"})))

	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	}
	router.Use(cors.New(corsConfig))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Register(router, middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	return router, nil
}

func openStore(ctx context.Context, cfg *config.Config) (service.Store, func()) {
	if cfg.StorageBackend == config.StorageMemory {
		log.Warn("Using in-memory report store; data is lost on restart")
		return database.NewMemoryStore(), func() {}
	}

	db, err := database.NewDatabase(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := db.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	return db, func() { db.Close() }
}

func providers(cfg *config.Config) (llm.Classifier, llm.Enricher) {
	if cfg.LLMProvider == config.ProviderStub {
		stub := stubllm.NewClient()
		return stub, stub
	}

	if !cfg.Enricher.Configured() {
		log.Warn("Gemini is not configured; reports will be stored with fallback enrichment")
	}
	enricher := gemini.NewClient(cfg.Enricher.APIKey, cfg.Enricher.BaseURL, cfg.Enricher.Model)

	// A nil classifier disables classification in the orchestrator.
	if !cfg.Classifier.Configured() {
		log.Warn("Featherless is not configured; classification is disabled")
		return nil, enricher
	}
	return openai.NewClient(cfg.Classifier.APIKey, cfg.Classifier.BaseURL, cfg.Classifier.Model), enricher
}

func sourceName(p interface{ SourceName() string }) string {
	if p == nil {
		return "disabled"
	}
	return p.SourceName()
}

func openCache(ctx context.Context, cfg *config.Config) cache.Cache {
	if cfg.RedisURL == "" {
		return cache.Noop{}
	}
	redisCache, err := cache.NewRedisCache(ctx, cfg.RedisURL)
	if err != nil {
		log.Warnf("Redis unavailable, stats responses are not cached: %v", err)
		return cache.Noop{}
	}
	return redisCache
}
