package user

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// PasswordHasher defines minimal hashing interface.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// ScryptHasher implements PasswordHasher with scrypt.
// Hashes are encoded as $scrypt$ln=15,r=8,p=1$<salt>$<key> so the
// parameters travel with the hash.
type ScryptHasher struct {
	logN    int
	r       int
	p       int
	keyLen  int
	saltLen int
}

// ScryptOption configures the scrypt hasher.
type ScryptOption func(*ScryptHasher)

// WithScryptCost sets log2(N). Values outside 10..20 are ignored.
func WithScryptCost(logN int) ScryptOption {
	return func(h *ScryptHasher) {
		if logN >= 10 && logN <= 20 {
			h.logN = logN
		}
	}
}

// NewScryptHasher returns a hasher with N=2^15, r=8, p=1, 32 byte keys.
func NewScryptHasher(opts ...ScryptOption) *ScryptHasher {
	h := &ScryptHasher{logN: 15, r: 8, p: 1, keyLen: 32, saltLen: 16}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *ScryptHasher) Hash(pw string) (string, error) {
	salt := make([]byte, h.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key, err := scrypt.Key([]byte(pw), salt, 1<<h.logN, h.r, h.p, h.keyLen)
	if err != nil {
		return "", fmt.Errorf("scrypt: %w", err)
	}
	return fmt.Sprintf("$scrypt$ln=%d,r=%d,p=%d$%s$%s",
		h.logN, h.r, h.p,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the key with the parameters stored in hash and compares in
// constant time. Malformed hashes never verify.
func (h *ScryptHasher) Verify(hash, pw string) bool {
	parts := strings.Split(hash, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != "scrypt" {
		return false
	}
	var logN, r, p int
	if _, err := fmt.Sscanf(parts[2], "ln=%d,r=%d,p=%d", &logN, &r, &p); err != nil {
		return false
	}
	// refuse parameters we would never have produced
	if logN < 1 || logN > 20 || r < 1 || r > 32 || p < 1 || p > 16 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(want) == 0 {
		return false
	}
	got, err := scrypt.Key([]byte(pw), salt, 1<<logN, r, p, len(want))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}
