// Command confirmation-code prints an argon2id hash for
// MILLFLOW_CONFIRMATION_CODE_HASH. With -generate it also
// creates a random code.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/millflow-backend/pkg/config"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
	"github.com/angelmondragon/millflow-backend/pkg/security"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "confirmation-code"})
	_ = godotenv.Load()

	code := flag.String("code", "", "code to hash")
	generate := flag.Int("generate", 0, "generate a random code of this length instead of -code")
	flag.Parse()

	pwCfg, err := config.LoadPassword()
	if err != nil {
		logg.Error(ctx, "failed to load password config", err)
		os.Exit(1)
	}

	value := *code
	if *generate > 0 {
		value, err = security.GenerateCode(*generate)
		if err != nil {
			logg.Error(ctx, "failed to generate code", err)
			os.Exit(1)
		}
		fmt.Println("code:", value)
	}
	if value == "" {
		fmt.Fprintln(os.Stderr, "one of -code or -generate is required")
		os.Exit(1)
	}

	hash, err := security.HashCode(value, pwCfg)
	if err != nil {
		logg.Error(ctx, "failed to hash code", err)
		os.Exit(1)
	}
	fmt.Println("hash:", hash)
}
