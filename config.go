package flatbank

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

type Config struct {
	Server struct {
		Addr   string `yaml:"addr"`
		NodeID int64  `yaml:"node_id"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Storage struct {
		Driver       string `yaml:"driver"`
		UsersFile    string `yaml:"users_file"`
		AccountsFile string `yaml:"accounts_file"`
		ConnStr      string `yaml:"conn_str"`
	} `yaml:"storage"`
	Limits struct {
		Auth           int64         `yaml:"auth"`
		Query          int64         `yaml:"query"`
		Mutation       int64         `yaml:"mutation"`
		AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	} `yaml:"limits"`
	Breaker struct {
		MaxRequests         uint32        `yaml:"max_requests"`
		Interval            time.Duration `yaml:"interval"`
		Timeout             time.Duration `yaml:"timeout"`
		ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	} `yaml:"breaker"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// DefaultConfig returns the settings used for anything the config file
// leaves out.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":5000"
	cfg.Server.NodeID = 1
	cfg.Auth.TokenTTL = time.Hour
	cfg.Storage.Driver = StorageFile
	cfg.Storage.UsersFile = "users.json"
	cfg.Storage.AccountsFile = "accounts.json"
	cfg.Limits.Auth = 8
	cfg.Limits.Query = 64
	cfg.Limits.Mutation = 32
	cfg.Limits.AcquireTimeout = 2 * time.Second
	cfg.Breaker.MaxRequests = 1
	cfg.Breaker.Timeout = 30 * time.Second
	cfg.Breaker.ConsecutiveFailures = 5
	cfg.Log.Level = "info"
	return cfg
}

// LoadConfig decodes the YAML file at path over the defaults, then applies
// environment overrides. A .env file in the working directory is loaded
// first if present.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfgfl, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer cfgfl.Close()
	if err = yaml.NewDecoder(cfgfl).Decode(cfg); err != nil {
		return nil, err
	}

	// .env is optional
	_ = godotenv.Load()
	cfg.applyEnv()

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("FLATBANK_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := os.LookupEnv("FLATBANK_JWT_SECRET"); ok {
		c.Auth.JWTSecret = v
	}
	if v, ok := os.LookupEnv("FLATBANK_DB_CONN_STR"); ok {
		c.Storage.ConnStr = v
	}
	if v, ok := os.LookupEnv("FLATBANK_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret is required")
	}
	switch c.Storage.Driver {
	case StorageFile:
		if c.Storage.UsersFile == "" || c.Storage.AccountsFile == "" {
			return errors.New("config: storage.users_file and storage.accounts_file are required")
		}
	case StoragePostgres:
		if c.Storage.ConnStr == "" {
			return errors.New("config: storage.conn_str is required for the postgres driver")
		}
	default:
		return errors.New("config: unknown storage.driver " + c.Storage.Driver)
	}
	if c.Limits.Auth <= 0 || c.Limits.Query <= 0 || c.Limits.Mutation <= 0 {
		return errors.New("config: limits must be positive")
	}
	if c.Limits.AcquireTimeout <= 0 {
		return errors.New("config: limits.acquire_timeout must be positive")
	}
	if c.Breaker.ConsecutiveFailures == 0 {
		return errors.New("config: breaker.consecutive_failures must be positive")
	}
	return nil
}
