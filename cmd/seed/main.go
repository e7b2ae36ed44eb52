// Command seed fills every empty remote collection with the built-in catalogue.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/atee-topup/internal/config"
	"github.com/ariefcatur/atee-topup/internal/fallback"
	"github.com/ariefcatur/atee-topup/internal/platform"
	"github.com/ariefcatur/atee-topup/internal/seed"
)

func main() {
	configPath := flag.String("config", "config", "directory holding config.yaml")
	timeout := flag.Duration("timeout", time.Minute, "overall deadline")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	platform.SetupLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rem, closeRemote, err := platform.OpenRemote(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open remote store")
	}
	defer closeRemote()

	n, err := seed.Run(ctx, rem, fallback.New(time.Now()))
	if err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
	log.Info().Int("documents", n).Msg("seed complete")
}
