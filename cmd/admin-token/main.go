package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/rifa-backend/pkg/auth"
	"github.com/angelmondragon/rifa-backend/pkg/config"
	"github.com/angelmondragon/rifa-backend/pkg/enums"
	"github.com/angelmondragon/rifa-backend/pkg/logger"
)

// admin-token mints a staff bearer token for the admin API.
func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "admin-token", Output: os.Stderr})

	_ = godotenv.Load()

	subject := flag.String("subject", "", "staff identifier placed in the sub claim (default: random uuid)")
	role := flag.String("role", string(enums.StaffRoleAdmin), "staff role: admin|support")
	flag.Parse()

	cfg, err := config.LoadJWT()
	if err != nil {
		logg.Error(ctx, "failed to load jwt config", err)
		os.Exit(1)
	}

	staffRole, err := enums.ParseStaffRole(*role)
	if err != nil {
		logg.Error(ctx, "invalid role", err)
		os.Exit(1)
	}

	sub := *subject
	if sub == "" {
		sub = uuid.NewString()
	}

	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{
		Subject: sub,
		Role:    staffRole,
	})
	if err != nil {
		logg.Error(ctx, "failed to mint token", err)
		os.Exit(1)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"staff_id":        sub,
		"role":            staffRole.String(),
		"expires_minutes": cfg.ExpirationMinutes,
	}), "staff token minted")
	fmt.Println(token)
}
