package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"flextraff-service/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLoginDisabled      = errors.New("login is not configured")
)

// AdminCredentials checks the single configured operator account.
type AdminCredentials struct {
	username     string
	passwordHash []byte
}

func NewAdminCredentials(username, passwordHash string) *AdminCredentials {
	return &AdminCredentials{username: username, passwordHash: []byte(passwordHash)}
}

func HashPassword(plain string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	return string(hash), err
}

// Verify returns the admin principal when username and password match.
func (a *AdminCredentials) Verify(username, password string) (model.Principal, error) {
	if a.username == "" || len(a.passwordHash) == 0 {
		return model.Principal{}, ErrLoginDisabled
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return model.Principal{}, ErrInvalidCredentials
	}
	return model.Principal{Subject: a.username, Role: model.UserRoleAdmin}, nil
}
