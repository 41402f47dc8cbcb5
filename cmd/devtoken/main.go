// Command devtoken mints a bearer token for local testing.
// Accounts live in a separate service; this signs with the same JWT_SECRET the API verifies with.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"streamify/internal/auth"
	"streamify/internal/config"
)

func main() {
	var (
		userID   string
		username string
		ttl      time.Duration
	)

	flag.StringVar(&userID, "user", "", "User ID to put in the token (required)")
	flag.StringVar(&username, "username", "", "Optional display name")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if userID == "" {
		log.Fatal("-user flag is required")
	}

	cfg := config.Load()
	tok, err := auth.Issue(cfg.Auth.JWTSecret, userID, username, ttl)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}
	fmt.Println(tok)
}
