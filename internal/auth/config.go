package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the process-wide auth configuration, loaded once at startup and
// never mutated afterwards.
type Config struct {
	Secret         []byte
	TokenTTL       time.Duration
	Header         string
	ExemptPrefixes []string
}

// ConfigFromEnv reads AUTH_SECRET, AUTH_TOKEN_TTL, AUTH_HEADER and
// AUTH_EXEMPT_PREFIXES (comma separated).
func ConfigFromEnv() Config {
	ttl := DefaultTokenTTL
	if v := os.Getenv("AUTH_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			ttl = d
		}
	}
	header := os.Getenv("AUTH_HEADER")
	if header == "" {
		header = DefaultHeader
	}
	prefixes := DefaultExemptPrefixes
	if v, ok := os.LookupEnv("AUTH_EXEMPT_PREFIXES"); ok {
		prefixes = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				prefixes = append(prefixes, p)
			}
		}
	}
	return Config{
		Secret:         []byte(os.Getenv("AUTH_SECRET")),
		TokenTTL:       ttl,
		Header:         header,
		ExemptPrefixes: append([]string(nil), prefixes...),
	}
}

// Validate reports configuration that would make the gateway unsafe.
func (c Config) Validate() error {
	if len(c.Secret) < MinSecretLen {
		return fmt.Errorf("AUTH_SECRET must be at least %d bytes", MinSecretLen)
	}
	if c.TokenTTL <= 0 {
		return errors.New("AUTH_TOKEN_TTL must be positive")
	}
	return nil
}

// GenerateSecret returns a random HS256 key. Tokens signed with it do not
// survive a restart.
func GenerateSecret() ([]byte, error) {
	b := make([]byte, MinSecretLen)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	return b, nil
}
