package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"

	"github.com/inkpress/emagazine/internal/config"
	"github.com/inkpress/emagazine/internal/es"
	"github.com/inkpress/emagazine/internal/events"
	"github.com/inkpress/emagazine/internal/handlers"
	"github.com/inkpress/emagazine/internal/kv"
	"github.com/inkpress/emagazine/internal/logging"
	mwauth "github.com/inkpress/emagazine/internal/middleware/auth"
	"github.com/inkpress/emagazine/internal/middleware/csrf"
	"github.com/inkpress/emagazine/internal/ratelimit"
	"github.com/inkpress/emagazine/internal/service/search"
	"github.com/inkpress/emagazine/internal/service/token"
	"github.com/inkpress/emagazine/internal/storage/s3"
	"github.com/inkpress/emagazine/internal/store"
	httpserver "github.com/inkpress/emagazine/internal/transport/http"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LOG_LEVEL)

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kvStore, err := kv.Connect(ctx, kv.Config{Addr: cfg.REDIS_ADDR, Password: cfg.REDIS_PASSWORD})
	if err != nil {
		log.Fatalf("kv store: %v", err)
	}
	defer kvStore.Close()

	producer := events.NewProducer(brokers(cfg.KAFKA_ADDRESS))
	defer producer.Close()

	var searchHandler *handlers.SearchHandler
	var esClient *elasticsearch.Client
	if cfg.ES_URL != "" {
		esClient, err = es.NewClient(es.Config{URL: cfg.ES_URL, Username: cfg.ES_USER, Password: cfg.ES_PASSWORD})
		if err != nil {
			logger.Warn("elasticsearch unavailable, search disabled", "error", err)
			esClient = nil
		}
	}
	if esClient != nil {
		searchHandler = handlers.NewSearchHandler(esClient, search.DefaultIndex)
	}

	var objects *s3.Store
	if cfg.S3_BUCKET != "" {
		objects, err = s3.NewStore(s3.Config{
			Region:          cfg.S3_REGION,
			Bucket:          cfg.S3_BUCKET,
			Endpoint:        cfg.S3_ENDPOINT,
			AccessKeyID:     cfg.S3_ACCESS_KEY,
			SecretAccessKey: cfg.S3_SECRET_KEY,
		})
		if err != nil {
			log.Fatalf("object store: %v", err)
		}
	}

	documents := store.New(db)
	tokens := token.NewService([]byte(cfg.JWT_SECRET), kvStore)
	limiter := ratelimit.New(kvStore, logger)
	authMW := mwauth.NewMiddleware(tokens, documents, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(csrf.Middleware(csrf.Config{
		SkipPaths: []string{"/health/live", "/health/ready"},
	}))

	httpserver.Register(e, &httpserver.Deps{
		Auth:    authMW,
		Limiter: limiter,
		AuthH: &handlers.AuthHandler{
			Store:    documents,
			Tokens:   tokens,
			Producer: producer,
			TokenTTL: cfg.TOKEN_TTL,
			Log:      logger,
		},
		PostH: &handlers.PostHandler{
			Store:    documents,
			Producer: producer,
			ES:       esClient,
			ESIndex:  search.DefaultIndex,
			Log:      logger,
		},
		EditionH: &handlers.EditionHandler{
			Store:    documents,
			Objects:  objects,
			Producer: producer,
			Log:      logger,
		},
		SearchH: searchHandler,
	})

	go func() {
		if err := e.Start(":" + cfg.PORT); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

func brokers(address string) []string {
	if address == "" {
		return nil
	}
	return []string{address}
}
