package flatbank_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arhyth/flatbank"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.Nil(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("fills in defaults for missing keys", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		path := writeConfig(tt, "auth:\n  jwt_secret: s3cret\nlimits:\n  mutation: 4\n")

		cfg, err := flatbank.LoadConfig(path)
		reqrd.Nil(err)
		as.Equal("s3cret", cfg.Auth.JWTSecret)
		as.Equal(":5000", cfg.Server.Addr)
		as.Equal(time.Hour, cfg.Auth.TokenTTL)
		as.Equal(flatbank.StorageFile, cfg.Storage.Driver)
		as.Equal("users.json", cfg.Storage.UsersFile)
		as.Equal("accounts.json", cfg.Storage.AccountsFile)
		as.EqualValues(4, cfg.Limits.Mutation)
		as.EqualValues(8, cfg.Limits.Auth)
	})

	t.Run("environment overrides the file", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		path := writeConfig(tt, "server:\n  addr: \":8080\"\nauth:\n  jwt_secret: from-file\n")
		tt.Setenv("FLATBANK_JWT_SECRET", "from-env")
		tt.Setenv("FLATBANK_ADDR", ":9090")

		cfg, err := flatbank.LoadConfig(path)
		reqrd.Nil(err)
		as.Equal("from-env", cfg.Auth.JWTSecret)
		as.Equal(":9090", cfg.Server.Addr)
	})

	t.Run("returns error without a signing secret", func(tt *testing.T) {
		as := assert.New(tt)
		path := writeConfig(tt, "server:\n  addr: \":8080\"\n")

		cfg, err := flatbank.LoadConfig(path)
		as.Nil(cfg)
		as.ErrorContains(err, "jwt_secret")
	})

	t.Run("returns error for postgres without a connection string", func(tt *testing.T) {
		as := assert.New(tt)
		path := writeConfig(tt, "auth:\n  jwt_secret: s\nstorage:\n  driver: postgres\n")

		_, err := flatbank.LoadConfig(path)
		as.ErrorContains(err, "conn_str")
	})

	t.Run("returns error for an unknown driver", func(tt *testing.T) {
		as := assert.New(tt)
		path := writeConfig(tt, "auth:\n  jwt_secret: s\nstorage:\n  driver: redis\n")

		_, err := flatbank.LoadConfig(path)
		as.ErrorContains(err, "redis")
	})

	t.Run("returns error for a non-positive acquire timeout", func(tt *testing.T) {
		as := assert.New(tt)
		path := writeConfig(tt, "auth:\n  jwt_secret: s\nlimits:\n  acquire_timeout: 0s\n")

		_, err := flatbank.LoadConfig(path)
		as.ErrorContains(err, "acquire_timeout")
	})

	t.Run("returns error for zero breaker failures", func(tt *testing.T) {
		as := assert.New(tt)
		path := writeConfig(tt, "auth:\n  jwt_secret: s\nbreaker:\n  consecutive_failures: 0\n")

		_, err := flatbank.LoadConfig(path)
		as.ErrorContains(err, "consecutive_failures")
	})

	t.Run("returns error for a missing file", func(tt *testing.T) {
		as := assert.New(tt)
		_, err := flatbank.LoadConfig(filepath.Join(tt.TempDir(), "nope.yml"))
		as.ErrorIs(err, os.ErrNotExist)
	})
}
