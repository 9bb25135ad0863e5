package auth

import (
	"strings"

	appErrors "github.com/fatali-fataliyev/envelope_budget/customErrors"
)

const (
	MIN_API_KEY_LENGTH = 16
	MAX_API_KEY_LENGTH = 72
)

// Credential is the bcrypt hash of one API key and the owner it unlocks.
type Credential struct {
	OwnerID string
	Hash    string
}

// ValidateAPIKey checks a plain key before it is hashed or compared.
func ValidateAPIKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return appErrors.New(appErrors.ErrAuth, "API key cannot be empty!")
	}
	if len(key) < MIN_API_KEY_LENGTH {
		return appErrors.New(appErrors.ErrInvalidInput, "API key so short, minimum length is %d", MIN_API_KEY_LENGTH)
	}
	if len(key) > MAX_API_KEY_LENGTH {
		return appErrors.New(appErrors.ErrInvalidInput, "API key so long, maximum length is %d", MAX_API_KEY_LENGTH)
	}
	return nil
}
