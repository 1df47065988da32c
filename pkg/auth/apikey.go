// Package auth guards the serve endpoint with API keys. Only bcrypt hashes
// of the keys are held in memory.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrEmptyKey   = errors.New("api key must not be empty")
)

// KeyInfo describes a registered key without revealing it.
type KeyInfo struct {
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type entry struct {
	hash []byte
	info KeyInfo
}

// KeyStore holds hashed API keys.
type KeyStore struct {
	cost int

	mu   sync.RWMutex
	keys []entry
}

// NewKeyStore returns an empty store hashing with the given bcrypt cost;
// zero selects bcrypt.DefaultCost.
func NewKeyStore(cost int) *KeyStore {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &KeyStore{cost: cost}
}

// Add registers an existing key, typically one read from configuration.
func (ks *KeyStore) Add(key, description string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), ks.cost)
	if err != nil {
		return fmt.Errorf("failed to hash api key: %w", err)
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys = append(ks.keys, entry{hash: hash, info: KeyInfo{Description: description, CreatedAt: time.Now()}})
	return nil
}

// Generate creates, registers and returns a random key. The plaintext is
// not kept.
func (ks *KeyStore) Generate(description string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	key := base64.RawURLEncoding.EncodeToString(raw)
	if err := ks.Add(key, description); err != nil {
		return "", err
	}
	return key, nil
}

// Validate returns the matching key's info, or ErrInvalidKey.
func (ks *KeyStore) Validate(key string) (KeyInfo, error) {
	if key == "" {
		return KeyInfo{}, ErrInvalidKey
	}

	ks.mu.RLock()
	defer ks.mu.RUnlock()
	for _, e := range ks.keys {
		if bcrypt.CompareHashAndPassword(e.hash, []byte(key)) == nil {
			return e.info, nil
		}
	}
	return KeyInfo{}, ErrInvalidKey
}

// Len reports how many keys are registered.
func (ks *KeyStore) Len() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.keys)
}

// List returns the registered keys' descriptions in registration order.
func (ks *KeyStore) List() []KeyInfo {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	out := make([]KeyInfo, len(ks.keys))
	for i, e := range ks.keys {
		out[i] = e.info
	}
	return out
}

// KeyFromRequest reads "Authorization: Bearer <key>" or the X-API-Key header.
func KeyFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.Header.Get("X-API-Key")
}

// Middleware rejects requests without a valid key with 401. Paths listed in
// public are served without a key. An empty store lets everything through.
func (ks *KeyStore) Middleware(public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] || ks.Len() == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if _, err := ks.Validate(KeyFromRequest(r)); err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="stopwatch"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
