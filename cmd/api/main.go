package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"smartfactory/api/internal/app"
	"smartfactory/api/internal/config"
	"smartfactory/api/internal/email"
	"smartfactory/api/internal/enrich"
	"smartfactory/api/internal/escalate"
	"smartfactory/api/internal/notify"
	"smartfactory/api/internal/push"
	"smartfactory/api/internal/realtime"
	"smartfactory/api/internal/search"
	"smartfactory/api/internal/store"
	"smartfactory/api/internal/suggest"
	"smartfactory/api/internal/task"
	"smartfactory/api/internal/tokens"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	// Realtime channel rides on Redis pub/sub; socket gateways subscribe
	// to the per-user channels.
	var publisher *realtime.Publisher
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("WARNING: redis unavailable, realtime channel disabled: %v", err)
			_ = redisClient.Close()
			redisClient = nil
		} else {
			publisher = realtime.NewPublisher(redisClient)
			defer redisClient.Close()
		}
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
		go searchService.ReindexAllFromPG(ctx)
	}

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if emailService.IsConfigured() {
		log.Printf("email channel enabled via %s", cfg.SMTPHost)
	}

	pushClient := push.NewClient(cfg.PushGatewayURL, cfg.PushGatewayKey)
	if pushClient.Configured() {
		log.Printf("push channel enabled via %s", cfg.PushGatewayURL)
	}

	tokenDirectory := tokens.NewDirectory(dataStore)

	var dispatcher *notify.Dispatcher
	if publisher != nil {
		dispatcher = notify.NewDispatcher(dataStore, tokenDirectory, pushClient, publisher, emailService)
	} else {
		dispatcher = notify.NewDispatcher(dataStore, tokenDirectory, pushClient, nil, emailService)
	}

	runner := task.NewRunner()
	engine := escalate.NewEngine(dataStore, dispatcher, runner)

	suggestClient := suggest.NewClient(cfg.SuggestURL, cfg.SuggestTimeout)
	pipeline := enrich.NewPipeline(dataStore, suggestClient, searchService, dispatcher, runner, cfg.AutoAssignThreshold)

	backgroundCtx, stopBackground := context.WithCancel(ctx)
	sweeper := escalate.NewSweeper(dataStore, engine)
	runner.Go(backgroundCtx, "sla-sweep", func(ctx context.Context) {
		sweeper.Run(ctx, cfg.SLASweepInterval)
	})

	service := app.New(cfg, dataStore, engine, tokenDirectory, pipeline, searchService)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("SmartFactory Connect API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	stopBackground()
	runner.Wait()
}
