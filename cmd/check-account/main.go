package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/palma21/linkedin-outreach-bot/internal/config"
	"github.com/palma21/linkedin-outreach-bot/internal/linkedapi"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/storage"
)

// probeComments is how many comments the read-only probe asks for
const probeComments = 5

func main() {
	accountID := flag.String("account", "", "only check this account id")
	flag.Parse()

	fmt.Println("🔍 LinkedIn Outreach Bot - Account Connectivity Check")
	fmt.Println("=====================================================")

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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	accounts, err := store.ListActiveAccounts(ctx)
	if err != nil {
		log.Fatalf("Failed to list accounts: %v", err)
	}
	posts, err := store.ListActivePosts(ctx)
	if err != nil {
		log.Fatalf("Failed to list posts: %v", err)
	}
	probe := make(map[string]models.MonitoredPost)
	for _, post := range posts {
		if _, ok := probe[post.AccountID]; !ok {
			probe[post.AccountID] = post
		}
	}

	// No alerter: a rejected token is still invalidated, but nobody is paged from here
	clients := linkedapi.NewProvider(store, nil, linkedapi.Options{
		BaseURL:      cfg.LinkedAPIBaseURL,
		APIKey:       cfg.LinkedAPIKey,
		PollInterval: cfg.LinkedAPIPollInterval,
		MaxPolls:     cfg.LinkedAPIMaxPolls,
	})

	fmt.Println("\n📡 Checking accounts...")
	fmt.Println(strings.Repeat("-", 40))

	checked := 0
	for _, account := range accounts {
		if *accountID != "" && account.ID != *accountID {
			continue
		}
		checked++
		checkAccount(ctx, clients, account, probe)
	}

	if checked == 0 {
		fmt.Println("⚠️  No matching active accounts")
	}
	fmt.Println("\n✅ Account check completed!")
}

func checkAccount(ctx context.Context, clients linkedapi.ClientSource, account models.Account, probe map[string]models.MonitoredPost) {
	fmt.Printf("🔸 %s (%s)... ", account.Name, account.ID)

	client, err := clients.ClientFor(ctx, account.ID)
	switch {
	case errors.Is(err, models.ErrNoCredential):
		fmt.Printf("⚠️  NO CREDENTIAL\n")
		return
	case errors.Is(err, models.ErrAuth):
		fmt.Printf("❌ CREDENTIAL INVALID\n")
		return
	case err != nil:
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}

	post, ok := probe[account.ID]
	if !ok {
		fmt.Printf("⚠️  SKIPPED (no monitored post to probe)\n")
		return
	}

	comments, err := client.GetPostComments(ctx, post.PostURL, probeComments)
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}
	fmt.Printf("✅ SUCCESS (%d comments on %s)\n", len(comments), post.Topic(post.PostURL))
	if len(comments) > 0 {
		fmt.Printf("   📝 Sample: %q by %s\n", comments[0].Text, models.FirstName(comments[0].CommenterName))
	}
}
