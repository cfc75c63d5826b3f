// The receiver is the stateless edge of the webhook service. It
// captures incoming HTTP requests at /w/{slug} endpoints, buffers them
// for batched delivery to the store, and returns cached mock responses.
package main

import (
	"context"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"webhooks.cc/backend/internal/receiver"
)

func main() {
	storeSiteURL := os.Getenv("STORE_SITE_URL")
	if storeSiteURL == "" {
		log.Fatal("STORE_SITE_URL environment variable is required")
	}
	if _, err := url.Parse(storeSiteURL); err != nil {
		log.Fatalf("STORE_SITE_URL is not a valid URL: %v", err)
	}

	// If unset, the receiver still works but the store will reject its
	// calls (the store fails closed without a secret).
	captureSharedSecret := os.Getenv("CAPTURE_SHARED_SECRET")

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
			log.Printf("Sentry init failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := receiver.NewClient(storeSiteURL, captureSharedSecret)
	rcv := receiver.New(ctx, client)
	app := receiver.NewApp(rcv)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownCh
		log.Println("Shutdown signal received, flushing pending requests...")

		batcher := rcv.Batcher()
		batcher.FlushAll()

		done := make(chan struct{})
		go func() {
			batcher.Wait()
			close(done)
		}()

		select {
		case <-done:
			log.Println("All pending requests flushed successfully")
		case <-time.After(receiver.ShutdownTimeout):
			log.Println("Shutdown timeout exceeded, some requests may be lost")
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	log.Printf("Webhook receiver starting on :%s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
