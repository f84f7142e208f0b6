package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"breeze_backend/internal/app/di"
	"breeze_backend/internal/app/router"
	accountadapters "breeze_backend/internal/feature/accounts/adapters"
	accounthandler "breeze_backend/internal/feature/accounts/transport/handler"
	accountusecase "breeze_backend/internal/feature/accounts/usecase"
	authadapters "breeze_backend/internal/feature/auth/adapters"
	authhandler "breeze_backend/internal/feature/auth/transport/handler"
	authusecase "breeze_backend/internal/feature/auth/usecase"
	candlehandler "breeze_backend/internal/feature/candles/transport/handler"
	candlesusecase "breeze_backend/internal/feature/candles/usecase"
	instrumentadapters "breeze_backend/internal/feature/instruments/adapters"
	instrumenthandler "breeze_backend/internal/feature/instruments/transport/handler"
	instrumentsusecase "breeze_backend/internal/feature/instruments/usecase"
	streamhandler "breeze_backend/internal/feature/stream/transport/handler"
	infradb "breeze_backend/internal/platform/db"
	jwtmw "breeze_backend/internal/platform/jwt"
	infraredis "breeze_backend/internal/platform/redis"
	"breeze_backend/internal/shared/markethours"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := infradb.OpenDB()

	// The queue, session lock and heartbeat all live in Redis; the API
	// cannot control sessions without it.
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

	// Repository
	userRepo := authadapters.NewUserRepository(db)
	accountRepo := accountadapters.NewAccountRepository(db)
	catalogRepo := instrumentadapters.NewInstrumentRepository(db)
	subRepo := instrumentadapters.NewSubscriptionRepository(db)

	// Usecase
	jwtGen := jwtmw.NewGenerator(os.Getenv(jwtmw.EnvKeyJWTSecret), 24*time.Hour)
	authUC := authusecase.NewAuthUsecase(userRepo, jwtGen)
	accountsUC := accountusecase.NewAccountsUsecase(accountRepo, components.Stream)
	instrumentsUC := instrumentsusecase.NewInstrumentsUsecase(catalogRepo, subRepo, components.Loader, components.Queue)
	candlesUC := candlesusecase.NewCandlesUsecase(components.Candles)

	// Handler
	authH := authhandler.NewAuthHandler(authUC)
	accountsH := accounthandler.NewAccountsHandler(accountsUC)
	instrumentsH := instrumenthandler.NewInstrumentsHandler(instrumentsUC)
	candlesH := candlehandler.NewCandlesHandler(candlesUC)
	streamH := streamhandler.NewStreamHandler(components.Stream)

	r := router.NewRouter(authH, candlesH, instrumentsH, streamH, accountsH)

	if os.Getenv(jwtmw.EnvKeyJWTSecret) == "" {
		log.Println("[WARN] JWT_SECRET is not set. Set a strong secret in production.")
	}

	if err := r.Run(":8080"); err != nil {
		log.Fatal(err)
	}
}
