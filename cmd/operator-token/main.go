// Command operator-token mints a bearer token for a mill operator, for local
// runs and smoke tests against the API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/millflow-backend/pkg/auth"
	"github.com/angelmondragon/millflow-backend/pkg/config"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "operator-token"})
	_ = godotenv.Load()

	subject := flag.String("subject", "", "operator id placed in the sub claim")
	role := flag.String("role", "planner", "operator role")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "-subject is required")
		os.Exit(1)
	}

	jwtCfg, err := config.LoadJWT()
	if err != nil {
		logg.Error(ctx, "failed to load jwt config", err)
		os.Exit(1)
	}
	issuer, err := auth.NewIssuer(jwtCfg)
	if err != nil {
		logg.Error(ctx, "invalid jwt config", err)
		os.Exit(1)
	}

	now := time.Now().UTC()
	token, err := issuer.Mint(now, auth.Operator{Subject: *subject, Role: *role})
	if err != nil {
		logg.Error(ctx, "failed to mint token", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintln(os.Stderr, "expires:", now.Add(issuer.TTL()).Format(time.RFC3339))
}
