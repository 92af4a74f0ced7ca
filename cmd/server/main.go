package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/arifwid/docuchat/internal/answerer"
	"github.com/arifwid/docuchat/internal/api/handlers"
	"github.com/arifwid/docuchat/internal/api/middleware"
	"github.com/arifwid/docuchat/internal/api/routes"
	"github.com/arifwid/docuchat/internal/cache"
	"github.com/arifwid/docuchat/internal/config"
	"github.com/arifwid/docuchat/internal/logger"
	"github.com/arifwid/docuchat/internal/models"
	"github.com/arifwid/docuchat/internal/platform/mongo"
	"github.com/arifwid/docuchat/internal/platform/postgres"
	redisplatform "github.com/arifwid/docuchat/internal/platform/redis"
	mongorepo "github.com/arifwid/docuchat/internal/repositories/mongo"
	pgrepo "github.com/arifwid/docuchat/internal/repositories/postgres"
	"github.com/arifwid/docuchat/internal/services"
	"github.com/arifwid/docuchat/internal/storage"
	"github.com/arifwid/docuchat/internal/workers"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config load failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.PostgresURI)
	if err != nil {
		log.WithError(err).Fatal("postgres init failed")
	}
	if err := db.AutoMigrate(&models.Session{}, &models.ChatLog{}, &models.Document{}); err != nil {
		log.WithError(err).Fatal("auto migrate failed")
	}

	rdb, err := redisplatform.New(ctx, cfg.RedisAddr)
	if err != nil {
		log.WithError(err).Fatal("redis init failed")
	}

	var mongoClient *mongodriver.Client
	var statusRepo mongorepo.StatusRepository
	if cfg.MongoURI != "" {
		mongoClient, err = mongo.New(ctx, cfg.MongoURI)
		if err != nil {
			log.WithError(err).Fatal("mongo init failed")
		}
		mongoDB := mongoClient.Database(cfg.MongoDB)
		if err := mongo.EnsureIndexes(ctx, mongoDB); err != nil {
			log.WithError(err).Fatal("mongo index setup failed")
		}
		statusRepo = mongorepo.NewStatusRepo(mongoDB)
	} else {
		log.Warn("MONGO_URI not set; ingest status records disabled")
	}

	store, err := storage.NewGCSStore(ctx, cfg.GCSBucket)
	if err != nil {
		log.WithError(err).Fatal("object storage init failed")
	}
	defer store.Close()

	sessionRepo := pgrepo.NewSessionRepo(db)
	chatLogRepo := pgrepo.NewChatLogRepo(db)
	documentRepo := pgrepo.NewDocumentRepo(db)

	redisCache := cache.NewRedisCache(rdb)
	ingestQueue := workers.NewIngestQueue(rdb, cfg.IngestStream)

	sessionSvc := services.NewSessionService(sessionRepo, chatLogRepo)
	chatLogSvc := services.NewChatLogService(chatLogRepo)
	documentSvc := services.NewDocumentService(services.DocumentServiceDeps{
		Docs:      documentRepo,
		Sessions:  sessionRepo,
		Statuses:  statusRepo,
		Store:     store,
		Cache:     redisCache,
		Queue:     ingestQueue,
		UploadDir: cfg.UploadDir,
		URLTTL:    cfg.SignedURLTTL,
		Logger:    log,
	})

	var provider answerer.Provider
	if cfg.AnswererURL != "" {
		provider = answerer.NewHTTPProvider(cfg.AnswererURL, cfg.AnswererAPIKey)
	} else {
		log.Warn("ANSWERER_URL not set; using mock answerer")
		provider = &answerer.MockProvider{}
	}
	querySvc := services.NewQueryService(sessionSvc, chatLogSvc, documentRepo, provider, log)

	pool := &workers.IngestWorkerPool{
		Redis:      rdb,
		Docs:       documentRepo,
		Sessions:   sessionRepo,
		Statuses:   statusRepo,
		Store:      store,
		NumWorkers: cfg.IngestWorkers,
		Logger:     log,
		Stream:     cfg.IngestStream,
		Group:      cfg.IngestGroup,
	}
	if err := pool.Start(ctx); err != nil {
		log.WithError(err).Fatal("ingest worker start failed")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Session:     handlers.NewSessionHandler(sessionSvc, chatLogSvc, documentSvc),
		Document:    handlers.NewDocumentHandler(documentSvc, sessionSvc),
		Query:       handlers.NewQueryHandler(querySvc),
		Health:      handlers.NewHealthHandler(db, rdb, mongoClient),
		WS:          handlers.NewWSHandler(sessionSvc, rdb),
		JWTSecret:   cfg.JWTSecret,
		JWTIssuer:   cfg.JWTIssuer,
		JWTAudience: cfg.JWTAudience,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown failed")
	}
	if mongoClient != nil {
		_ = mongoClient.Disconnect(shutdownCtx)
	}
	_ = rdb.Close()
}
