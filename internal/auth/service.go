package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	appErrors "github.com/fatali-fataliyev/envelope_budget/customErrors"
	"github.com/fatali-fataliyev/envelope_budget/internal/contextutil"
	"github.com/fatali-fataliyev/envelope_budget/logging"
	"golang.org/x/crypto/bcrypt"
)

func HashAPIKey(key string) (string, error) {
	if err := ValidateAPIKey(key); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash plain API key: %w", err)
	}
	return string(hashed), nil
}

func CompareAPIKey(hashed string, plain string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	return err == nil
}

// MAX_REJECTED_KEYS bounds the cache of unknown key digests; it is reset when full.
const MAX_REJECTED_KEYS = 4096

// Authenticator resolves an API key to its budget owner. Keys are remembered
// by digest once verified or rejected so later requests skip bcrypt.
type Authenticator struct {
	credentials []Credential

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]string
	rejected map[[sha256.Size]byte]struct{}
}

func NewAuthenticator(credentials []Credential) *Authenticator {
	return &Authenticator{
		credentials: credentials,
		verified:    make(map[[sha256.Size]byte]string),
		rejected:    make(map[[sha256.Size]byte]struct{}),
	}
}

// Authenticate accepts either a bare key or "Bearer <key>".
func (a *Authenticator) Authenticate(ctx context.Context, header string) (string, error) {
	key := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "Bearer "))
	if key == "" {
		return "", appErrors.New(appErrors.ErrAuth, "Missing API key, add it to the Authorization header.")
	}
	if len(key) < MIN_API_KEY_LENGTH || len(key) > MAX_API_KEY_LENGTH {
		return "", appErrors.New(appErrors.ErrAuth, "Invalid API key.")
	}

	digest := sha256.Sum256([]byte(key))
	a.mu.RLock()
	ownerID, ok := a.verified[digest]
	_, rejected := a.rejected[digest]
	a.mu.RUnlock()
	if ok {
		return ownerID, nil
	}
	if rejected {
		return "", appErrors.New(appErrors.ErrAuth, "Invalid API key.")
	}

	for _, c := range a.credentials {
		if CompareAPIKey(c.Hash, key) {
			a.mu.Lock()
			a.verified[digest] = c.OwnerID
			a.mu.Unlock()
			return c.OwnerID, nil
		}
	}

	a.mu.Lock()
	if len(a.rejected) >= MAX_REJECTED_KEYS {
		clear(a.rejected)
	}
	a.rejected[digest] = struct{}{}
	a.mu.Unlock()

	logging.Logger.Warnf("[TraceID=%s] | rejected request with unknown API key", contextutil.TraceIDFromContext(ctx))
	return "", appErrors.New(appErrors.ErrAuth, "Invalid API key.")
}
