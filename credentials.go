package flatbank

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor for stored password hashes.
const BcryptCost = 10

// MaxPasswordLen is the longest password bcrypt accepts, in bytes.
const MaxPasswordLen = 72

const msgPasswordTooLong = "Password must be at most 72 bytes"

// Credentials maps usernames to salted password hashes. The username set
// only grows.
type Credentials struct {
	mu     sync.Mutex
	store  Store
	hashes map[string]string
	log    *zerolog.Logger
}

// NewCredentials loads the credential snapshot. A malformed snapshot is
// returned as an error; callers are expected to treat it as fatal.
func NewCredentials(store Store, log *zerolog.Logger) (*Credentials, error) {
	c := &Credentials{
		store:  store,
		hashes: make(map[string]string),
		log:    log,
	}
	if err := store.Load(&c.hashes); err != nil {
		return nil, err
	}
	if c.hashes == nil {
		c.hashes = make(map[string]string)
	}
	return c, nil
}

func (c *Credentials) Register(username, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.hashes[username]; exists {
		return ErrConflict{Reason: "User already exists"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return ErrBadRequest{Fields: map[string]string{"password": msgPasswordTooLong}}
	}
	if err != nil {
		c.log.Err(err).Str("method", "register").Msg("error hashing password")
		return ErrInternalServer
	}

	c.hashes[username] = string(hash)
	if err = c.store.Save(c.hashes); err != nil {
		delete(c.hashes, username)
		c.log.Err(err).Str("method", "register").Msg("error saving credentials")
		return err
	}
	c.log.Info().Str("username", username).Msg("user registered")
	return nil
}

// Authenticate returns the identity for a valid username/password pair.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (c *Credentials) Authenticate(username, password string) (string, error) {
	c.mu.Lock()
	hash, exists := c.hashes[username]
	c.mu.Unlock()

	if !exists {
		return "", ErrUnauthorized{}
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return "", ErrUnauthorized{}
	}
	if err != nil {
		c.log.Err(err).Str("method", "authenticate").Msg("error comparing password hash")
		return "", ErrUnauthorized{}
	}
	return username, nil
}

func (c *Credentials) Exists(username string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.hashes[username]
	return exists
}
