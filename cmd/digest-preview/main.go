package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/palma21/linkedin-outreach-bot/internal/config"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/ratelimit"
	"github.com/palma21/linkedin-outreach-bot/internal/scheduler"
	"github.com/palma21/linkedin-outreach-bot/internal/storage"
)

const outputDir = "test_output"

// printReport outputs the digest to the terminal
func printReport(report *models.Report) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Println("📊 OUTREACH DIGEST")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("📅 Period: %s\n", report.Period)
	fmt.Printf("🕒 Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))

	for _, account := range report.Accounts {
		fmt.Printf("\n👤 %s\n", account.AccountName)

		actions := make([]string, 0, len(account.Usage))
		for action := range account.Usage {
			actions = append(actions, string(action))
		}
		sort.Strings(actions)
		for _, action := range actions {
			u := account.Usage[models.ActionType(action)]
			fmt.Printf("   • %-20s %d/%d\n", action+":", u.Used, u.Limit)
		}

		statuses := make([]string, 0, len(account.Leads))
		for status := range account.Leads {
			statuses = append(statuses, string(status))
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			fmt.Printf("   🤝 %-18s %d leads\n", status+":", account.Leads[models.ConnectionStatus(status)])
		}

		if account.Failures > 0 {
			fmt.Printf("   ⚠️  %d failures in the last 24h\n", account.Failures)
		}
	}
	fmt.Println("\n" + strings.Repeat("=", 70))
}

func saveReport(report *models.Report) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	filename := filepath.Join(outputDir, fmt.Sprintf("outreach_digest_%s.json", report.GeneratedAt.Format("2006-01-02_15-04-05")))
	return filename, os.WriteFile(filename, data, 0644)
}

func main() {
	fmt.Println("🤖 LinkedIn Outreach Bot - Digest Preview")
	fmt.Println("=========================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := storage.Open(cfg.Database())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	jobs := scheduler.NewJobs(scheduler.Deps{
		Store:   store,
		Limiter: ratelimit.NewLimiter(store),
	})

	report, err := jobs.BuildReport(ctx, jobs.Settings(ctx))
	if err != nil {
		fmt.Printf("❌ Error building digest: %v\n", err)
		os.Exit(1)
	}

	printReport(report)

	filename, err := saveReport(report)
	if err != nil {
		fmt.Printf("\n⚠️  Warning: Could not save to file: %v\n", err)
	} else {
		fmt.Printf("\n💾 Digest saved to: %s\n", filename)
	}

	fmt.Println("\n✅ Digest preview completed!")
}
