package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/klokku/treasury/internal/app"
	log "github.com/sirupsen/logrus"
)

func configureLogging() {
	log.SetLevel(log.InfoLevel)
	if value, ok := os.LookupEnv("LOG_LEVEL"); ok && value != "" {
		level, err := log.ParseLevel(value)
		if err != nil {
			log.Fatalf("invalid LOG_LEVEL %q: %v", value, err)
		}
		log.SetLevel(level)
	}
	if os.Getenv("LOG_FORMAT") == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

func main() {
	configureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApplication(ctx)
	if err != nil {
		log.Fatalf("failed to initialize treasury: %v", err)
	}
	if err := application.Run(ctx); err != nil {
		log.Fatal(err)
	}
	log.Info("treasury stopped")
}
