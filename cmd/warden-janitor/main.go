package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/mkurtis/warden/pkg/audit"
	"github.com/mkurtis/warden/pkg/authn"
)

var (
	dbURL          = flag.String("db-url", getEnv("WARDEN_POSTGRES_URL", "postgres://localhost/warden?sslmode=disable"), "PostgreSQL connection URL")
	tokenSchedule  = flag.String("token-schedule", "0 * * * *", "Cron schedule for the expired refresh token sweep (default: hourly)")
	auditSchedule  = flag.String("audit-schedule", "30 2 * * *", "Cron schedule for audit log retention (default: 02:30 UTC)")
	auditRetention = flag.Int("audit-retention-days", 90, "Days of audit history to keep")
	runOnce        = flag.Bool("run-once", false, "Run all sweeps once and exit")
)

func main() {
	flag.Parse()

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	authStore := authn.NewStore(db)
	auditStore, err := audit.NewDBLogger(db)
	if err != nil {
		log.Fatalf("Failed to open audit store: %v", err)
	}

	if *runOnce {
		if err := sweepTokens(authStore); err != nil {
			log.Fatalf("Token sweep failed: %v", err)
		}
		if err := pruneAudit(auditStore, *auditRetention); err != nil {
			log.Fatalf("Audit prune failed: %v", err)
		}
		log.Println("Sweeps completed successfully")
		return
	}

	c := cron.New()

	_, err = c.AddFunc(*tokenSchedule, func() {
		if err := sweepTokens(authStore); err != nil {
			log.Printf("Token sweep failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule token sweep: %v", err)
	}

	_, err = c.AddFunc(*auditSchedule, func() {
		if err := pruneAudit(auditStore, *auditRetention); err != nil {
			log.Printf("Audit prune failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule audit prune: %v", err)
	}

	c.Start()
	log.Println("Warden janitor started")
	log.Printf("Token sweep schedule: %s", *tokenSchedule)
	log.Printf("Audit prune schedule: %s (keeping %d days)", *auditSchedule, *auditRetention)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()

	log.Println("Janitor stopped")
}

func sweepTokens(store *authn.Store) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := store.DeleteExpiredRefreshTokens(ctx)
	if err != nil {
		return err
	}
	log.Printf("Deleted %d expired refresh tokens", deleted)

	active, err := store.CountActiveRefreshTokens(ctx)
	if err != nil {
		return err
	}
	log.Printf("%d refresh tokens remain active", active)
	return nil
}

func pruneAudit(store *audit.DBLogger, retentionDays int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	pruned, err := store.PruneBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	log.Printf("Pruned %d audit events older than %s", pruned, cutoff.Format("2006-01-02"))
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
