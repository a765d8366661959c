package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/grouptalk/internal/config"
	"github.com/dkeye/grouptalk/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := pflag.NewFlagSet("grouptalk-server", pflag.ExitOnError)
	flags.Int("port", 80, "TCP port for client connections")
	flags.Int("http-port", 8080, "admin API port, 0 disables it")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	srv := server.New(cfg)
	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
	log.Info().Int("port", cfg.Port).Msg("Voice server started")

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
