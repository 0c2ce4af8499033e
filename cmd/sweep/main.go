// Command sweep runs one scheduler pass (escalation + auto-close) against the
// configured database and exits. Useful for cron-driven deployments and for
// inspecting scheduler behavior without the full server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"

	"jansunwai/config"
	"jansunwai/models"
	"jansunwai/schema"
	"jansunwai/service"
	"jansunwai/utils"

	"jansunwai/repository"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "list escalation candidates without mutating anything")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}
	cfg := config.LoadConfig()
	clock := utils.RealClock{}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		cfg.Database.User, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("Failed to open database connection: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	schema.ValidateRequiredColumns(db, nil)

	complaintRepo := repository.NewComplaintRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if *dryRun {
		candidates, err := complaintRepo.EscalationCandidates(ctx, clock.Now())
		if err != nil {
			log.Fatalf("Failed to load candidates: %v", err)
		}
		log.Printf("%d escalation candidates:", len(candidates))
		for _, c := range candidates {
			overdue := clock.Now().Sub(c.SLADeadline.Time).Hours() / 24
			log.Printf("  %s state=%s level=%s priority=%s overdue=%.1fd",
				c.ComplaintNumber, c.CurrentState, c.EscalationLevel, c.Priority, overdue)
		}
		return
	}

	escalationService := service.NewEscalationService(
		complaintRepo, service.NopEmitter{}, clock,
		models.EscalationLadder{
			L1Days: cfg.Scheduler.LadderL1Days,
			L2Days: cfg.Scheduler.LadderL2Days,
			L3Days: cfg.Scheduler.LadderL3Days,
		},
		cfg.Scheduler.AutoCloseDays,
		cfg.Scheduler.MaxConsecutiveFailures,
		cfg.Scheduler.PerComplaintTimeout,
	)

	results, err := escalationService.Tick(ctx)
	if err != nil {
		log.Fatalf("Escalation pass failed: %v", err)
	}
	log.Printf("Escalation pass complete: %d complaints escalated", len(results))
	for _, r := range results {
		log.Printf("  complaint %d: %s -> %s (%s)", r.ComplaintID, r.FromLevel, r.ToLevel, r.Reason)
	}

	closed, err := escalationService.AutoCloseTick(ctx)
	if err != nil {
		log.Fatalf("Auto-close pass failed: %v", err)
	}
	log.Printf("Auto-close pass complete: %d complaints closed", closed)
}
