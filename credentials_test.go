package flatbank_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/arhyth/flatbank"
	"github.com/arhyth/flatbank/mocks"
)

func newTestCredentials(t *testing.T) (*flatbank.Credentials, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	log := zerolog.Nop()
	c, err := flatbank.NewCredentials(flatbank.NewFileStore(path), &log)
	require.Nil(t, err)
	return c, path
}

func TestCredentials(t *testing.T) {
	t.Run("Register rejects a duplicate username", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		c, _ := newTestCredentials(tt)

		reqrd.Nil(c.Register("alice", "pw1"))
		err := c.Register("alice", "pw2")
		as.ErrorAs(err, &flatbank.ErrConflict{})
		as.EqualError(err, "User already exists")

		// the first password still works
		id, err := c.Authenticate("alice", "pw1")
		as.Nil(err)
		as.Equal("alice", id)
	})

	t.Run("Register rejects passwords bcrypt cannot hash", func(tt *testing.T) {
		as := assert.New(tt)
		c, _ := newTestCredentials(tt)

		err := c.Register("alice", strings.Repeat("x", flatbank.MaxPasswordLen+1))
		errbr := flatbank.ErrBadRequest{}
		as.ErrorAs(err, &errbr)
		as.Contains(errbr.Fields, "password")
		as.False(c.Exists("alice"))
	})

	t.Run("Authenticate rejects wrong passwords and unknown users", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		c, _ := newTestCredentials(tt)
		reqrd.Nil(c.Register("alice", "pw1"))

		id, err := c.Authenticate("alice", "wrong")
		as.Empty(id)
		as.ErrorAs(err, &flatbank.ErrUnauthorized{})

		id, err = c.Authenticate("mallory", "pw1")
		as.Empty(id)
		as.ErrorAs(err, &flatbank.ErrUnauthorized{})
	})

	t.Run("persists only hashes and survives a reload", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		c, path := newTestCredentials(tt)
		reqrd.Nil(c.Register("alice", "s3cret-passw0rd"))

		bits, err := os.ReadFile(path)
		reqrd.Nil(err)
		as.NotContains(string(bits), "s3cret-passw0rd")
		as.Contains(string(bits), "$2a$10$")

		log := zerolog.Nop()
		reloaded, err := flatbank.NewCredentials(flatbank.NewFileStore(path), &log)
		reqrd.Nil(err)
		as.True(reloaded.Exists("alice"))
		as.False(reloaded.Exists("bob"))
		id, err := reloaded.Authenticate("alice", "s3cret-passw0rd")
		as.Nil(err)
		as.Equal("alice", id)
	})

	t.Run("Register leaves no trace when the snapshot write fails", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		store := mocks.NewMockStore(ctrl)
		log := zerolog.Nop()
		diskErr := errors.New("read-only file system")

		store.EXPECT().Load(gomock.Any()).Return(nil)
		store.EXPECT().Save(gomock.Any()).Return(diskErr)
		c, err := flatbank.NewCredentials(store, &log)
		reqrd.Nil(err)

		err = c.Register("alice", "pw1")
		as.ErrorIs(err, diskErr)
		as.False(c.Exists("alice"))
	})
}
