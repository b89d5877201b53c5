// Command main fills the configured ledger store with generated traffic and
// checks the resulting counters.
package main

import (
	"context"
	"flag"
	"log"

	"talk/internal/auth"
	"talk/internal/config"
	"talk/internal/seed"
	"talk/internal/server"
	"talk/internal/service"
)

func main() {
	defaults := seed.DefaultOptions()
	numUsers := flag.Int("users", defaults.NumUsers, "Number of identities to create")
	numPosts := flag.Int("posts", defaults.NumPosts, "Number of extra posts and replies")
	numToggles := flag.Int("toggles", defaults.NumToggles, "Number of like toggles")
	replyRatio := flag.Float64("reply-ratio", defaults.ReplyRatio, "Share of posts written as replies")
	seedValue := flag.Int64("seed", 0, "Random seed (0 = time based)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, _, err := server.OpenStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	log.Printf("Seeding %d users, %d posts, %d toggles into %s store", *numUsers, *numPosts, *numToggles, cfg.StoreBackend)

	svc := service.NewLedgerService(store, auth.AllowAll)
	report, err := seed.NewSeeder(svc, seed.Options{
		NumUsers:   *numUsers,
		NumPosts:   *numPosts,
		NumToggles: *numToggles,
		ReplyRatio: *replyRatio,
		Seed:       *seedValue,
	}).Run(context.Background())
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Done: %d users, %d messages, %d likes, %d unlikes, %d counters verified",
		report.Users, report.Messages, report.Likes, report.Unlikes, report.Checked)
}
