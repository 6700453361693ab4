package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/univora/sharebox-backend/internal/auth"
	"github.com/univora/sharebox-backend/internal/conf"
)

// issue-token prints a signed admin API token for one of the configured
// administrator identities. Used by operators to reach the /admin routes.
func main() {
	configFile := flag.String("config", "config.yaml", "config file path")
	userID := flag.Int64("user", 0, "administrator user id")
	flag.Parse()

	if *userID == 0 {
		fmt.Fprintln(os.Stderr, "usage: issue-token -user <admin user id> [-config config.yaml]")
		os.Exit(1)
	}

	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	isAdmin := false
	for _, id := range config.Bot.AdminIDs {
		if id == *userID {
			isAdmin = true
			break
		}
	}
	if !isAdmin {
		fmt.Fprintf(os.Stderr, "user %d is not a configured administrator\n", *userID)
		os.Exit(1)
	}

	manager := auth.NewJWTManager(config.Auth.JWTSecret, config.Auth.JWTIssuer)
	token, err := manager.GenerateToken(*userID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to sign token:", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
