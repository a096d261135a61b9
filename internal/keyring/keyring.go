package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/habitlog/internal/constants"
)

var (
	// ErrNotFound is returned when no entry is stored under the requested account
	ErrNotFound = errors.New("credentials not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

func get(account string) (string, error) {
	value, err := keyring.Get(constants.AppName, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return value, nil
}

func set(account, value, what string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", what)
	}
	if err := keyring.Set(constants.AppName, account, value); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", what, err)
	}
	return nil
}

func del(account, what string) error {
	if err := keyring.Delete(constants.AppName, account); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s from keyring: %w", what, err)
	}
	return nil
}

// GetConnectionString retrieves the database connection string from the OS keyring.
// Returns ErrNotFound if no credentials are stored.
func GetConnectionString() (string, error) {
	return get(constants.DefaultKeyringUser)
}

// SetConnectionString stores the database connection string in the OS keyring.
func SetConnectionString(connStr string) error {
	return set(constants.DefaultKeyringUser, connStr, "connection string")
}

// DeleteConnectionString removes the database connection string from the OS keyring.
func DeleteConnectionString() error {
	return del(constants.DefaultKeyringUser, "connection string")
}

// GetSessionToken returns the signed session token of the current user.
func GetSessionToken() (string, error) {
	return get(constants.SessionKeyringUser)
}

func SetSessionToken(token string) error {
	return set(constants.SessionKeyringUser, token, "session token")
}

func DeleteSessionToken() error {
	return del(constants.SessionKeyringUser, "session token")
}

// GetSigningSecret returns the secret used to sign session tokens.
func GetSigningSecret() (string, error) {
	return get(constants.SecretKeyringUser)
}

func SetSigningSecret(secret string) error {
	return set(constants.SecretKeyringUser, secret, "signing secret")
}

// IsAvailable checks if the OS keyring is available on the current system.
// This is a best-effort check and may not catch all failure scenarios.
func IsAvailable() bool {
	_, err := keyring.Get(constants.AppName, "test-availability")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
