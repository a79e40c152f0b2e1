package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog"

	"github.com/arhyth/flatbank"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfp := flag.String("config", "config.yml", "path to configuration file")
	sfp := flag.String("seed", "testdata/seed.yml", "path to seed file")
	flag.Parse()

	cfg, err := flatbank.LoadConfig(*cfp)
	if err != nil {
		logger.Fatal().Err(err).Msg("error loading config file")
	}
	seed, err := flatbank.LoadSeed(*sfp)
	if err != nil {
		logger.Fatal().Err(err).Msg("error loading seed file")
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
	)

	if err = seed.Apply(svc, &logger); err != nil {
		logger.Fatal().Err(err).Msg("error applying seed")
	}
}
