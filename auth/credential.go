// Package auth holds the admin credential and the registry of refresh
// tokens issued to it.
package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrNoPassword = errors.New("admin password or password hash required")

// Credential is the single admin account. The password is only ever held
// as a bcrypt hash.
type Credential struct {
	username string
	hash     []byte
}

// NewCredential builds the admin credential from either a bcrypt hash or,
// when no hash is configured, a plaintext password hashed on the spot.
func NewCredential(username, password, passwordHash string) (*Credential, error) {
	if username == "" {
		return nil, errors.New("admin username required")
	}

	if passwordHash != "" {
		if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
			return nil, err
		}
		return &Credential{username, []byte(passwordHash)}, nil
	}

	if password == "" {
		return nil, ErrNoPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Credential{username, hash}, nil
}

func (c *Credential) Username() string {
	return c.username
}

func (c *Credential) Validate(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(c.hash, []byte(password)) == nil
	return userOK && passOK
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}
