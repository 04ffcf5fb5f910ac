// calendar-streamer is the read side: it aggregates gatherings, member
// milestones, and care reminders into a calendar served as JSON, iCalendar,
// and a live SSE stream, and runs the daily reminder-expiry sweep.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/parishcare/project/internal/app/care"
	"github.com/parishcare/project/internal/app/gatherings"
	"github.com/parishcare/project/internal/app/identity"
	"github.com/parishcare/project/internal/app/members"
	"github.com/parishcare/project/internal/app/streamer"
	"github.com/parishcare/project/internal/calendar"
	"github.com/parishcare/project/internal/livefeed"
	"github.com/parishcare/project/internal/notify"
	"github.com/parishcare/project/internal/platform/config"
	"github.com/parishcare/project/internal/platform/dbpool"
	"github.com/parishcare/project/internal/platform/natsutil"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("calendar-streamer: load config: %v", err)
	}
	loc := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := dbpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("calendar-streamer: create db pool: %v", err)
	}
	defer pool.Close()

	memberRepo := members.NewPostgresRepository(pool)
	careRepo := care.NewPostgresRepository(pool)
	gatheringRepo := gatherings.NewPostgresRepository(pool)

	if err := dbpool.WaitReady(ctx, pool, 30*time.Second,
		memberRepo, careRepo, gatheringRepo); err != nil {
		log.Fatalf("calendar-streamer: database not ready: %v", err)
	}

	nc, err := natsutil.ConnectJetStreamWithRetry(cfg.NATSURL, 30*time.Second)
	if err != nil {
		log.Fatalf("calendar-streamer: connect nats: %v", err)
	}
	defer nc.Close()

	center := notify.NewCenter()
	careSvc := care.NewService(careRepo, natsutil.JetStreamPublisher{JS: nc.JS}, center, loc)

	builder := &calendar.Builder{
		Members:    memberRepo,
		Gatherings: gatheringRepo,
		Reminders:  careSvc,
		Location:   loc,
	}

	server := &streamer.Server{
		Tokens:   identity.NewTokenManager(cfg.JWTSecret),
		Builder:  builder,
		Registry: livefeed.NewRegistry(nc.Conn),
		Streams:  livefeed.NewUserStreams(),
		Notices:  center,
		Location: loc,
		Ready: func() bool {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Ping(pingCtx) == nil && nc.Conn.IsConnected()
		},
	}

	scheduler := cron.New(cron.WithLocation(loc))
	if _, err := scheduler.AddFunc(cfg.MilestoneCron, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		swept, err := careSvc.SweepExpired(sweepCtx)
		if err != nil {
			log.Printf("calendar-streamer: expiry sweep: %v", err)
			return
		}
		if swept > 0 {
			log.Printf("calendar-streamer: marked %d reminders expired", swept)
		}
	}); err != nil {
		log.Fatalf("calendar-streamer: schedule expiry sweep: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:              cfg.StreamerAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("calendar-streamer: listening on %s", cfg.StreamerAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("calendar-streamer: serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("calendar-streamer: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("calendar-streamer: shutdown: %v", err)
	}
}
