// The worker hosts the long-running streaming machinery: the session
// supervisor, which keeps one session loop alive per active account, and the
// fold scheduler, which turns buffered ticks into minute candles.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"breeze_backend/internal/app/di"
	infradb "breeze_backend/internal/platform/db"
	infraredis "breeze_backend/internal/platform/redis"
	"breeze_backend/internal/shared/markethours"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := infradb.OpenDB()

	rdb, err := infraredis.NewRedisClient()
	if err != nil {
		log.Fatal("redis unavailable: ", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Println("[ERROR] Failed to close Redis client:", err)
		}
	}()

	window := markethours.FromEnv()
	components := di.NewStreamComponents(ctx, db, rdb, window)

	go components.Scheduler.Run(ctx)
	components.Supervisor.Run(ctx)

	log.Println("worker shut down")
}
