package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"waitlist/queue-service/internal/clock"
	"waitlist/queue-service/internal/config"
	"waitlist/queue-service/internal/httpapi"
	"waitlist/queue-service/internal/line"
	"waitlist/queue-service/internal/queue"
	"waitlist/queue-service/internal/store"
	"waitlist/queue-service/internal/store/memory"
	"waitlist/queue-service/internal/store/postgres"
	"waitlist/queue-service/internal/telemetry"
	"waitlist/queue-service/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("queue-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("load timezone %q: %v", cfg.Timezone, err)
	}

	var ticketStore store.TicketStore
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()

		if err := migrations.Apply(context.Background(), pool); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		ticketStore = postgres.NewStore(pool)
	} else {
		log.Printf("DB_DSN not set, using in-memory store")
		ticketStore = memory.NewStore()
	}

	lineClient := line.NewClient(cfg.ChannelAccessToken, cfg.LineAPIBase)
	engine := queue.NewEngine(ticketStore, lineClient, clock.NewSystem(), loc)
	handler := httpapi.NewHandler(engine, lineClient, httpapi.Options{
		DefaultVenue:  cfg.DefaultVenue,
		StaffToken:    cfg.StaffToken,
		ChannelSecret: cfg.ChannelSecret,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:    cfg.RateLimitPerMinute,
		IPBurst:        cfg.RateLimitBurst,
		VenuePerMinute: cfg.VenueRateLimitPerMinute,
		VenueBurst:     cfg.VenueRateLimitBurst,
	})

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(handler.Routes())), "queue-service")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("queue-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
