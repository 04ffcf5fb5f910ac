// care-api is the mutating HTTP API: authentication, members, care notes
// and reminders, and community gatherings. Every successful write publishes
// a change event for calendar-streamer to pick up.
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

	"github.com/parishcare/project/internal/app/care"
	"github.com/parishcare/project/internal/app/careapi"
	"github.com/parishcare/project/internal/app/gatherings"
	"github.com/parishcare/project/internal/app/identity"
	"github.com/parishcare/project/internal/app/members"
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
		log.Fatalf("care-api: load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := dbpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("care-api: create db pool: %v", err)
	}
	defer pool.Close()

	identityRepo := identity.NewPostgresRepository(pool)
	memberRepo := members.NewPostgresRepository(pool)
	careRepo := care.NewPostgresRepository(pool)
	gatheringRepo := gatherings.NewPostgresRepository(pool)

	if err := dbpool.WaitReady(ctx, pool, 30*time.Second,
		identityRepo, memberRepo, careRepo, gatheringRepo); err != nil {
		log.Fatalf("care-api: database not ready: %v", err)
	}

	nc, err := natsutil.ConnectJetStreamWithRetry(cfg.NATSURL, 30*time.Second)
	if err != nil {
		log.Fatalf("care-api: connect nats: %v", err)
	}
	defer nc.Close()
	publisher := natsutil.JetStreamPublisher{JS: nc.JS}

	center := notify.NewCenter()
	tokens := identity.NewTokenManager(cfg.JWTSecret)

	server := &careapi.Server{
		Identity:   identity.NewService(identityRepo, tokens),
		Tokens:     tokens,
		Members:    members.NewService(memberRepo, publisher, center),
		Care:       care.NewService(careRepo, publisher, center, cfg.Location()),
		Gatherings: gatherings.NewService(gatheringRepo, publisher, center),
		Notices:    center,
		Ready: func() bool {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Ping(pingCtx) == nil && nc.Conn.IsConnected()
		},
	}

	httpServer := &http.Server{
		Addr:              cfg.CareAPIAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("care-api: listening on %s", cfg.CareAPIAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("care-api: serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("care-api: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("care-api: shutdown: %v", err)
	}
}
