// scraper-service
//
// Runs job-board scrapes as asynchronous jobs.
// Exposes a REST API and a gRPC service used by the Gateway to:
//   - submit(collection, limit, details)  → job id, returned immediately
//   - getJobStatus(jobId)                  → progress, message, jobs collected
//   - listCollections                      → collections that can be scraped
//   - cancelJob(jobId)                     → cooperative cancellation
//
// Each scraped posting is upserted into the owner's career_board with an
// optional qualification match analysis. Every job snapshot is published to
// Redis (EVENT_SCRAPE_PROGRESS) for Gateway SSE forward.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/elektrikmusik/linkedin-scraper/internal/api"
	"github.com/elektrikmusik/linkedin-scraper/internal/careerboard"
	"github.com/elektrikmusik/linkedin-scraper/internal/collection"
	"github.com/elektrikmusik/linkedin-scraper/internal/config"
	"github.com/elektrikmusik/linkedin-scraper/internal/db"
	"github.com/elektrikmusik/linkedin-scraper/internal/events"
	"github.com/elektrikmusik/linkedin-scraper/internal/grpcserver"
	"github.com/elektrikmusik/linkedin-scraper/internal/jobs"
	"github.com/elektrikmusik/linkedin-scraper/internal/logger"
	"github.com/elektrikmusik/linkedin-scraper/internal/profile"
	"github.com/elektrikmusik/linkedin-scraper/internal/scheduler"
	"github.com/elektrikmusik/linkedin-scraper/internal/scraper"
)

const version = "1.0.0"

func main() {
	logger.Init("scraper-service")
	lg := logger.Get()

	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		lg.Fatal().Err(err).Msg("[scraper-service] Config error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Printf("[scraper-service] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, "scraper-service", int32(cfg.MaxConcurrentJobs+4))
	if err != nil {
		lg.Fatal().Err(err).Msg("[scraper-service] PostgreSQL")
	}
	defer pool.Close()
	log.Printf("[scraper-service] PostgreSQL connected ✓")

	board := careerboard.NewRepo(pool)
	if err := board.EnsureSchema(ctx); err != nil {
		lg.Fatal().Err(err).Msg("[scraper-service] Schema")
	}

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Printf("[scraper-service] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, "scraper-service")
	if err != nil {
		lg.Fatal().Err(err).Msg("[scraper-service] Redis")
	}
	defer rdb.Close()
	log.Printf("[scraper-service] Redis connected ✓")

	// ── Candidate profile ────────────────────────────────────────────────────
	candidate, err := profile.Load(cfg.CandidateProfilePath)
	if err != nil {
		lg.Fatal().Err(err).Msg("[scraper-service] Candidate profile")
	}
	log.Printf("[scraper-service] Candidate profile loaded: %d qualification(s)", len(candidate.Qualifications()))

	// ── Jobs ─────────────────────────────────────────────────────────────────
	registry := collection.Default()
	publisher := events.NewRedisPublisher(rdb, cfg.EventTTL)
	store := jobs.NewStore(publisher)

	source := scraper.NewHTTPSource(scraper.SourceOptions{
		BaseURL:           cfg.SourceBaseURL,
		Cookie:            cfg.SourceCookie,
		Timeout:           cfg.FetchTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	worker := scraper.NewWorker(store, registry, source, board, candidate, scraper.RetryPolicy{
		MaxAttempts: cfg.FetchMaxAttempts,
		BaseDelay:   cfg.FetchBackoff,
	})
	orch := jobs.NewOrchestrator(store, registry, worker, jobs.Options{
		MaxLimit:      cfg.MaxScrapeLimit,
		MaxConcurrent: cfg.MaxConcurrentJobs,
	})

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	api.NewHandler(orch, publisher).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[scraper-service] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatal().Err(err).Msg("[scraper-service] HTTP server error")
		}
	}()

	// ── gRPC server ──────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		lg.Fatal().Err(err).Msg("[scraper-service] gRPC listen")
	}
	grpcSrv := grpc.NewServer()
	grpcserver.Register(grpcSrv, grpcserver.NewServer(orch))

	go func() {
		log.Printf("[scraper-service] gRPC listening on :%s", cfg.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			lg.Fatal().Err(err).Msg("[scraper-service] gRPC server error")
		}
	}()

	// ── Scheduler ────────────────────────────────────────────────────────────
	sched := scheduler.New(orch, cfg.ScrapeSchedule, cfg.ScheduledScrapes)
	if err := sched.Start(ctx); err != nil {
		lg.Fatal().Err(err).Msg("[scraper-service] Scheduler")
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("[scraper-service] Shutting down…")
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[scraper-service] HTTP shutdown error: %v", err)
	}
	grpcSrv.GracefulStop()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		log.Printf("[scraper-service] Worker shutdown error: %v", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		log.Printf("[scraper-service] Event flush error: %v", err)
	}
	log.Printf("[scraper-service] Stopped.")
}
