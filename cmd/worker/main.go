package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"classroll/internal/config"
	"classroll/internal/notify"
	"classroll/internal/queue"
	"classroll/internal/store"
)

// Worker consumes the notifications the API publishes and writes them to
// the audit log.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatal("QUEUE_BACKEND=memory: notifications are audited inside the api process, nothing to do")
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Client.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable, will keep retrying", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)

	log.Println("worker started, waiting for notifications...")
	if err := notify.Forward(ctx, q, notify.LogNotifier{}); err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}
	log.Println("worker stopped")
}
