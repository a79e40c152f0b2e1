package flatbank

import (
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Seed lists users to register on a fresh installation. Users with an
// initial balance also get an account.
type Seed struct {
	Users []SeedUser `yaml:"users"`
}

type SeedUser struct {
	Username       string           `yaml:"username"`
	Password       string           `yaml:"password"`
	InitialBalance *decimal.Decimal `yaml:"initial_balance"`
}

func LoadSeed(path string) (*Seed, error) {
	bits, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sd Seed
	if err = yaml.Unmarshal(bits, &sd); err != nil {
		return nil, err
	}
	return &sd, nil
}

// Apply registers every user and opens the requested accounts. Users and
// active accounts that already exist are left alone, so Apply can be rerun.
func (sd *Seed) Apply(svc Service, log *zerolog.Logger) error {
	for _, u := range sd.Users {
		err := svc.Register(CredentialsReq{Username: u.Username, Password: u.Password})
		switch {
		case errors.As(err, &ErrConflict{}):
			log.Info().Str("username", u.Username).Msg("user exists, skipping")
		case err != nil:
			return err
		default:
			log.Info().Str("username", u.Username).Msg("user seeded")
		}

		if u.InitialBalance == nil {
			continue
		}
		acct, err := svc.CreateAccount(CreateAccountReq{Username: u.Username, InitialBalance: *u.InitialBalance})
		switch {
		case errors.As(err, &ErrConflict{}):
			log.Info().Str("username", u.Username).Msg("active account exists, skipping")
		case err != nil:
			return err
		default:
			log.Info().
				Str("username", u.Username).
				Str("account_number", acct.AcctNumber).
				Msg("account seeded")
		}
	}
	return nil
}
