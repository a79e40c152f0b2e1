package flatbank_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arhyth/flatbank"
)

func TestFileStore(t *testing.T) {
	t.Run("Load writes an empty snapshot when the file is missing", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		path := filepath.Join(tt.TempDir(), "users.json")
		fst := flatbank.NewFileStore(path)

		users := map[string]string{}
		reqrd.Nil(fst.Load(&users))
		as.Empty(users)

		bits, err := os.ReadFile(path)
		reqrd.Nil(err)
		as.JSONEq(`{}`, string(bits))
	})

	t.Run("Save then Load round-trips the collection", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		path := filepath.Join(tt.TempDir(), "users.json")
		fst := flatbank.NewFileStore(path)

		reqrd.Nil(fst.Save(map[string]string{"alice": "hash-a", "bob": "hash-b"}))
		bits, err := os.ReadFile(path)
		reqrd.Nil(err)
		as.Contains(string(bits), "\n    \"alice\"", "snapshot should be indented for humans")

		loaded := map[string]string{}
		reqrd.Nil(flatbank.NewFileStore(path).Load(&loaded))
		as.Equal(map[string]string{"alice": "hash-a", "bob": "hash-b"}, loaded)

		entries, err := os.ReadDir(filepath.Dir(path))
		reqrd.Nil(err)
		as.Len(entries, 1, "no temp files should be left behind")
	})

	t.Run("Load returns an error on a malformed snapshot", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		path := filepath.Join(tt.TempDir(), "accounts.json")
		reqrd.Nil(os.WriteFile(path, []byte(`{"0000000001": {`), 0o644))

		log := zerolog.Nop()
		l, err := flatbank.NewLedger(flatbank.NewFileStore(path), &log)
		as.Nil(l)
		as.NotNil(err)
	})

	t.Run("balances are written as exact JSON numbers", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		path := filepath.Join(tt.TempDir(), "accounts.json")
		log := zerolog.Nop()
		l, err := flatbank.NewLedger(flatbank.NewFileStore(path), &log)
		reqrd.Nil(err)
		_, err = l.CreateAccount("alice", dec("100.10"))
		reqrd.Nil(err)

		bits, err := os.ReadFile(path)
		reqrd.Nil(err)
		as.Contains(string(bits), `"balance": 100.1`)
	})

	t.Run("Load accepts quoted balances", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		path := filepath.Join(tt.TempDir(), "accounts.json")
		snap := `{"0123456789": {"account_number": "0123456789", "username": "alice", "balance": "42.25", "is_active": true, "created_at": "2024-01-02T03:04:05Z"}}`
		reqrd.Nil(os.WriteFile(path, []byte(snap), 0o644))

		log := zerolog.Nop()
		l, err := flatbank.NewLedger(flatbank.NewFileStore(path), &log)
		reqrd.Nil(err)
		acct, err := l.ActiveAccount("alice")
		reqrd.Nil(err)
		as.True(acct.Balance.Equal(dec("42.25")))
	})

	t.Run("Load accepts numeric balances", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		path := filepath.Join(tt.TempDir(), "accounts.json")
		legacy := map[string]any{
			"0123456789": map[string]any{
				"account_number": "0123456789",
				"username":       "alice",
				"balance":        150.5,
				"is_active":      true,
				"created_at":     "2024-01-02T03:04:05.000Z",
			},
		}
		bits, err := json.Marshal(legacy)
		reqrd.Nil(err)
		reqrd.Nil(os.WriteFile(path, bits, 0o644))

		log := zerolog.Nop()
		l, err := flatbank.NewLedger(flatbank.NewFileStore(path), &log)
		reqrd.Nil(err)
		acct, err := l.ActiveAccount("alice")
		reqrd.Nil(err)
		as.Equal("0123456789", acct.AcctNumber)
		as.True(acct.Balance.Equal(dec("150.5")))
	})
}
