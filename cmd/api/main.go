package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keygate.io/internal/auth"
	"keygate.io/internal/httpapi"
	"keygate.io/internal/obs"
	"keygate.io/internal/store/memory"
	"keygate.io/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	signingKey := os.Getenv("KEYGATE_SIGNING_SECRET")
	if signingKey == "" {
		log.Fatal("KEYGATE_SIGNING_SECRET is required")
	}

	// Store selection: Postgres when a DSN is configured, in-memory otherwise.
	var (
		store auth.Store
		db    *sql.DB
	)
	if dsn := os.Getenv("KEYGATE_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		db = pgStore.DB()
		defer pgStore.Close()
	} else {
		log.Print("KEYGATE_PG_DSN not set, using in-memory store")
		store = memory.New()
	}

	opts := []auth.Option{}
	if issuer := os.Getenv("KEYGATE_ISSUER"); issuer != "" {
		opts = append(opts, auth.WithIssuer(issuer))
	}
	if ttl := durationEnv("KEYGATE_ACCESS_TTL"); ttl > 0 {
		opts = append(opts, auth.WithAccessTTL(ttl))
	}
	if ttl := durationEnv("KEYGATE_REFRESH_TTL"); ttl > 0 {
		opts = append(opts, auth.WithRefreshTTL(ttl))
	}

	svc, err := auth.New(store, []byte(signingKey), opts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, svc)

	addr := os.Getenv("KEYGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting keygate-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

func durationEnv(name string) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("%s: %v", name, err)
	}
	return d
}
