// Command main prints a bearer token that lets its holder act as one identity.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"talk/internal/auth"
	"talk/internal/config"
)

func main() {
	identity := flag.String("identity", "", "Identity the token authenticates")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if strings.TrimSpace(*identity) == "" {
		fmt.Fprintln(os.Stderr, "usage: tokengen -identity <name> [-ttl 24h]")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	token, err := auth.IssueToken(cfg.JWTSecret, *identity, *ttl)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}
