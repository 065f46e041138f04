package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// ErrInvalidCredentials is returned for any failed operator login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}

// OperatorAuthenticator checks ops API credentials against the single configured operator.
type OperatorAuthenticator struct {
	username     string
	passwordHash string
}

// NewOperatorAuthenticator constructs the authenticator. An empty hash disables login.
func NewOperatorAuthenticator(username, passwordHash string) *OperatorAuthenticator {
	return &OperatorAuthenticator{username: username, passwordHash: passwordHash}
}

// Authenticate returns the operator on a username and password match.
func (a *OperatorAuthenticator) Authenticate(username, password string) (domain.Operator, error) {
	if a.passwordHash == "" || !strings.EqualFold(strings.TrimSpace(username), a.username) {
		return domain.Operator{}, ErrInvalidCredentials
	}
	if err := ComparePassword(a.passwordHash, password); err != nil {
		return domain.Operator{}, ErrInvalidCredentials
	}
	return domain.Operator{Username: a.username}, nil
}
