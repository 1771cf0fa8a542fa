package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"camera-analyze-service/analyzer"
	"camera-analyze-service/config"
	"camera-analyze-service/database"
	"camera-analyze-service/gemini"
	"camera-analyze-service/handlers"
	"camera-analyze-service/llm"
	"camera-analyze-service/metadata"
	"camera-analyze-service/metrics"
	"camera-analyze-service/openai"
	"camera-analyze-service/rabbitmq"
	"camera-analyze-service/report"
	"camera-analyze-service/storage"
	"camera-analyze-service/stubllm"
)

func main() {
	cfg := config.Load()

	client, err := buildLLMClient(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to configure LLM client")
	}
	log.WithField("provider", client.SourceName()).Info("LLM client ready")

	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := db.CreateSessionTables(); err != nil {
		log.WithError(err).Fatal("failed to create session tables")
	}

	store, err := buildStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to configure image store")
	}

	cameras, err := metadata.Load(cfg.MetadataFile)
	if err != nil {
		log.WithError(err).Warn("camera metadata unavailable, results will use Unknown placeholders")
		cameras = metadata.NewTable()
	}

	var publisher *rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		publisher, err = rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, cfg.RabbitMQRoutingKey)
		if err != nil {
			log.WithError(err).Warn("RabbitMQ unavailable, completion events disabled")
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	metrics.Register()

	composer := report.NewComposer(client)
	a := analyzer.New(client, store, cameras, composer, cfg.MaxWorkers)
	h := handlers.NewHandler(a, composer, db, publisher, cfg.ContextTurns)

	router := gin.Default()
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	api := router.Group("/api/v3")
	{
		api.GET("/health", h.HealthCheck)
		api.POST("/analyze", h.Analyze)
		api.GET("/analyze/stream", h.AnalyzeStream)
		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions", h.ListSessions)
		api.GET("/sessions/:id", h.GetSession)
		api.DELETE("/sessions/:id", h.DeleteSession)
		api.GET("/stats", h.GetStats)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("starting camera analyze service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
	log.Info("server stopped")
}

func buildLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, errMissingKey("GEMINI_API_KEY")
		}
		return gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel), nil
	case "stub":
		return stubllm.NewClient(), nil
	default:
		if cfg.OpenAIAPIKey == "" {
			return nil, errMissingKey("OPENAI_API_KEY")
		}
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	}
}

func buildStore(cfg *config.Config) (storage.Store, error) {
	if cfg.UseGCS {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return storage.NewGCSStore(ctx, cfg.GCSBucket, cfg.ImagesDir, cfg.SignedURLTTL)
	}
	return storage.NewLocalStore(cfg.ImagesDir), nil
}

func corsMiddleware(allowedOrigins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type errMissingKey string

func (e errMissingKey) Error() string {
	return "missing required environment variable " + string(e)
}
