package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paperlens/paperlens/internal/application"
	apphistory "github.com/paperlens/paperlens/internal/application/history"
	"github.com/paperlens/paperlens/internal/application/papers"
	"github.com/paperlens/paperlens/internal/config"
	"github.com/paperlens/paperlens/internal/domain/analysis"
	"github.com/paperlens/paperlens/internal/infra/ai/gemini"
	openaip "github.com/paperlens/paperlens/internal/infra/ai/openai"
	mysqlp "github.com/paperlens/paperlens/internal/infra/db/mysql"
	postgresp "github.com/paperlens/paperlens/internal/infra/db/postgres"
	"github.com/paperlens/paperlens/internal/infra/httpserver"
	"github.com/paperlens/paperlens/internal/infra/render"
	minioStore "github.com/paperlens/paperlens/internal/infra/storage"
	"github.com/paperlens/paperlens/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// pick the AI provider; the credential is read once here and handed to
	// the client constructor, never per call
	var analyzer analysis.Analyzer
	switch cfg.AI.Provider {
	case "openai":
		analyzer = openaip.NewClient(cfg.AI.OpenAI.APIKey, cfg.AI.OpenAI.Model)
	default:
		analyzer = gemini.NewClient(cfg.AI.Gemini.APIKey, cfg.AI.Gemini.Model)
	}

	// init paper service
	svc := papers.NewService(render.NewEngine(), analyzer, application.SystemClock{}, cfg.AI.TargetLanguage)
	svc.SessionTTL = cfg.SessionTTL()
	svc.OnAnalyzeFailed = middleware.IncrementAnalysesFailed

	// optional analysis history database
	var historySvc *apphistory.Service
	checkers := map[string]middleware.HealthChecker{}
	var db *sql.DB
	switch cfg.Database.Driver {
	case "mysql":
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		svc.History = mysqlp.NewHistoryRepository(db)
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		svc.History = postgresp.NewHistoryRepository(db)
	case "":
		// history disabled
	default:
		log.Fatalf("unknown database driver: %s", cfg.Database.Driver)
	}
	if db != nil {
		defer db.Close()
		historySvc = apphistory.NewService(svc.History)
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	}

	// optional paper archive
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		svc.Archive = store
	}

	// init router
	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(svc, historySvc, cfg.Server.APIKey, checkers))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
