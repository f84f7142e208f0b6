// Package db opens the application database and runs migrations.
package db

import (
	"fmt"
	"log"
	"os"
	"time"

	gpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	accountentity "breeze_backend/internal/feature/accounts/domain/entity"
	authentity "breeze_backend/internal/feature/auth/domain/entity"
	candleadapters "breeze_backend/internal/feature/candles/adapters"
	instrentity "breeze_backend/internal/feature/instruments/domain/entity"
)

// OpenDB connects to Postgres using environment configuration, retrying for
// up to 60 seconds so the process survives a database that is still booting.
// With RUN_MIGRATIONS=true the schema is auto-migrated on startup.
func OpenDB() *gorm.DB {
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	user := os.Getenv("DB_USER")
	pass := os.Getenv("DB_PASSWORD")
	name := os.Getenv("DB_NAME")

	sslmode := os.Getenv("DB_SSLMODE")
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, pass, name, sslmode)

	var (
		db  *gorm.DB
		err error
	)

	deadline := time.Now().Add(60 * time.Second)
	for {
		db, err = gorm.Open(gpostgres.Open(dsn), &gorm.Config{TranslateError: true})
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			log.Fatalf("DB connect failed after 60s: %v", err)
		}
		log.Printf("DB connect failed, retrying...: %v", err)
		time.Sleep(3 * time.Second)
	}

	if os.Getenv("RUN_MIGRATIONS") == "true" {
		if err := db.AutoMigrate(
			&authentity.User{},
			&accountentity.BreezeAccount{},
			&instrentity.Exchange{},
			&instrentity.Instrument{},
			&instrentity.SubscribedInstrument{},
			&instrentity.LoadingState{},
			&candleadapters.CandleModel{},
			&candleadapters.TickModel{},
		); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
	}

	return db
}
