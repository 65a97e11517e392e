package main

import (
	"flag"
	"fmt"
	"os"

	"carbon-scribe/verification-registry/internal/auth"
	"carbon-scribe/verification-registry/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the JSON config file")
	userID := flag.String("user", "", "subject of the token")
	role := flag.String("role", auth.RoleDeveloper, "role claim: admin, developer, ngo or drone")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "issue-token: -user is required")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue-token: %v\n", err)
		os.Exit(1)
	}
	tokens, err := auth.NewTokenService(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.TokenTTL.Std())
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue-token: %v\n", err)
		os.Exit(1)
	}
	token, err := tokens.Issue(*userID, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue-token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
