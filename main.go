package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/scramble/apps/go-server/internal/config"
	"github.com/robalobadob/scramble/apps/go-server/internal/httpserver"
	"github.com/robalobadob/scramble/apps/go-server/internal/phrases"
	"github.com/robalobadob/scramble/apps/go-server/internal/records"
	"github.com/robalobadob/scramble/apps/go-server/internal/store"
)

// sessionRetention is how long an untouched round stays in memory.
const sessionRetention = 24 * time.Hour

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	if cfg.InsecureSecret() {
		log.Warn().Msg("JWT_SECRET not set; using development secret")
	}

	table, err := phrases.Load(cfg.PhrasesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load phrase table")
	}
	log.Info().Strs("languages", table.LanguageNames()).Msg("phrase table loaded")

	rec, err := records.Open(cfg.RecordsDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open results database")
	}
	defer rec.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mem := store.NewMemoryStore(sessionRetention)
	srv := httpserver.New(cfg, mem, rec, table)
	log.Info().Str("port", cfg.Port).Msg("starting go-server")
	if err := srv.Run(ctx, ":"+cfg.Port); err != nil {
		log.Error().Err(err).Msg("server exited")
		return
	}
	log.Info().Msg("server stopped")
}
