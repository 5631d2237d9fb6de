package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/elibrary/internal/apperr"
	"github.com/Skotchmaster/elibrary/internal/auth"
	"github.com/Skotchmaster/elibrary/internal/blocklist"
	"github.com/Skotchmaster/elibrary/internal/config"
	"github.com/Skotchmaster/elibrary/internal/es"
	"github.com/Skotchmaster/elibrary/internal/handlers"
	"github.com/Skotchmaster/elibrary/internal/logging"
	"github.com/Skotchmaster/elibrary/internal/mail"
	loggingmw "github.com/Skotchmaster/elibrary/internal/middleware/logging"
	"github.com/Skotchmaster/elibrary/internal/mykafka"
	"github.com/Skotchmaster/elibrary/internal/service"
	"github.com/Skotchmaster/elibrary/internal/storage"
	"github.com/Skotchmaster/elibrary/internal/tokens"
	httpserver "github.com/Skotchmaster/elibrary/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}

	registry, err := blocklist.New(configuration.REDIS_URL)
	if err != nil {
		log.Fatalf("redis init error: %v", err)
	}

	backend, err := storage.FromConfig(configuration)
	if err != nil {
		log.Fatalf("storage init error: %v", err)
	}
	if obj, ok := backend.(*storage.Object); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := obj.EnsureBucket(ctx); err != nil {
			cancel()
			log.Fatalf("storage bucket error: %v", err)
		}
		cancel()
	}

	prod := mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})

	var esClient *elasticsearch.Client
	if configuration.ES_URL != "" {
		esClient, err = es.NewClient(configuration)
		if err != nil {
			logger.Warn("elasticsearch unavailable, full-text search disabled", "error", err)
		}
	}

	codec := tokens.NewCodec([]byte(configuration.JWT_SECRET))
	mailer := &mail.Mailer{Producer: prod, From: configuration.MAIL_FROM}

	users := &service.UserService{
		DB:               db,
		Codec:            codec,
		Blocklist:        registry,
		Mailer:           mailer,
		Producer:         prod,
		SuperadminEmails: configuration.SuperadminEmails(),
		Domain:           configuration.DOMAIN,
	}
	books := &service.BookService{
		DB:       db,
		Storage:  backend,
		ES:       esClient,
		Producer: prod,
		Mailer:   mailer,
	}

	authmw := &auth.Middleware{Codec: codec, Blocklist: registry, Users: users}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = apperr.ErrorHandler
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), loggingmw.RequestLogger(logger))

	deps := httpserver.Deps{
		DB:        db,
		Blocklist: registry,
		Auth:      authmw,

		AuthHandler:   &handlers.AuthHandler{Users: users, Codec: codec},
		BookHandler:   &handlers.BookHandler{Books: books, Users: users, Codec: codec, Storage: backend},
		AdminHandler:  &handlers.AdminHandler{Users: users, Books: books, Blocklist: registry},
		SearchHandler: &handlers.SearchHandler{ES: esClient, Index: es.BookIndex},
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}

	if err := registry.Close(); err != nil {
		log.Printf("redis close error: %v", err)
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
