package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"

	"github.com/arhyth/flatbank"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfp := flag.String("config", "config.yml", "path to configuration file")
	flag.Parse()
	cfg, err := flatbank.LoadConfig(*cfp)
	if err != nil {
		logger.Fatal().Err(err).Msg("error loading config file")
	}
	if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ustore, astore, closeStores, err := flatbank.NewStores(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("error opening storage")
	}
	defer closeStores()

	creds, err := flatbank.NewCredentials(ustore, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("error loading credentials")
	}
	ledger, err := flatbank.NewLedger(astore, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("error loading accounts")
	}

	svc := flatbank.Chain(
		flatbank.NewService(creds, ledger, &logger),
		flatbank.NewValidationMiddleware(),
		flatbank.NewLimitMiddleware(flatbank.NewServiceLimits(cfg)),
		flatbank.NewCircuitBreakMiddleware(flatbank.NewServiceBreaker(cfg, &logger)),
	)
	gate := flatbank.NewTokenGate(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, creds)
	node, err := snowflake.NewNode(cfg.Server.NodeID)
	if err != nil {
		logger.Fatal().Err(err).Msg("error creating request ID node")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           flatbank.NewHTTPHandler(svc, gate, node, &logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-stop
	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = srv.Shutdown(ctx); err != nil {
		logger.Err(err).Msg("error shutting down server")
	}
}
