package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pagepulse/pagepulse-go/internal/collector"
	"github.com/pagepulse/pagepulse-go/internal/ratelimit"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	addr := envOr("PAGEPULSE_ADDR", "127.0.0.1:8477")
	dataDir := envOr("PAGEPULSE_DATA_DIR", "./data")
	perMinute := envIntOr("PAGEPULSE_RATE_PER_MINUTE", 600)
	burst := envIntOr("PAGEPULSE_RATE_BURST", 60)

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	storage, err := collector.NewStorage(filepath.Join(dataDir, "collector.db"))
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer storage.Close()
	log.Println("✓ Storage initialized")

	feed := collector.NewFeed()
	limiter := ratelimit.NewLimiter(perMinute, burst)
	log.Printf("✓ Rate limiter initialized (%d req/min per project, burst %d)", perMinute, burst)

	handler := collector.NewHandler(storage, feed, filepath.Join(dataDir, "screenshots"))
	router := handler.SetupRoutes(limiter)
	log.Println("✓ HTTP routes configured")

	// Drop idle per-project limiter state once an hour
	evictDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-evictDone:
				return
			case <-ticker.C:
				limiter.Evict(time.Now().Add(-time.Hour))
			}
		}
	}()

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 PagePulse collector listening on http://%s", addr)
		log.Printf("📍 Ingestion endpoints under http://%s/v1", addr)
		log.Printf("🔍 Live debug feed at ws://%s/v1/live", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	close(evictDone)

	log.Println("⏳ Shutting down collector gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("✅ Collector stopped cleanly")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
