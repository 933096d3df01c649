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

	_ "github.com/jackc/pgx/v5/stdlib"

	"wayfarer.app/internal/auth"
	"wayfarer.app/internal/httpapi"
	"wayfarer.app/internal/mail"
	"wayfarer.app/internal/obs"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("WAYFARER_COMMIT"))

	accessSecret := os.Getenv("WAYFARER_ACCESS_TOKEN_SECRET")
	refreshSecret := os.Getenv("WAYFARER_REFRESH_TOKEN_SECRET")
	codec, err := auth.NewCodec(accessSecret, refreshSecret)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	// Without a DSN the API runs entirely in memory for local development.
	var db *sql.DB
	var store auth.Store = auth.NewInMemoryStore()
	if dsn := os.Getenv("WAYFARER_PG_DSN"); dsn != "" {
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = auth.NewPGStore(db)
	}

	var sender auth.CodeSender = mail.LogSender{}
	if url := os.Getenv("WAYFARER_MAIL_API_URL"); url != "" {
		sender = mail.NewAPISender(mail.Config{
			APIURL:    url,
			APIKey:    os.Getenv("WAYFARER_MAIL_API_KEY"),
			FromEmail: os.Getenv("WAYFARER_MAIL_FROM_EMAIL"),
			FromName:  os.Getenv("WAYFARER_MAIL_FROM_NAME"),
		})
	}

	sessions := auth.NewService(store, codec)
	recovery := auth.NewRecovery(store, sender)
	api := httpapi.New(sessions, recovery, httpapi.ReadyProbe{DB: db}, version)

	addr := os.Getenv("WAYFARER_ADDR")
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

	log.Printf("Starting wayfarer-api %s on %s", version, srv.Addr)

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
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
