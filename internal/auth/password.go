package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

const (
	saltAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	saltLen      = 13
)

// HashPassword returns "<hex sha256(password+salt)>:<salt>", the format stored
// in auth_users.password_hash.
func HashPassword(password string) (string, error) {
	salt, err := newSalt()
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return digest(password, salt) + ":" + salt, nil
}

// VerifyPassword checks password against a stored hash. Malformed hashes
// never match.
func VerifyPassword(password, stored string) bool {
	sum, salt, ok := strings.Cut(stored, ":")
	if !ok || sum == "" {
		return false
	}
	want := digest(password, salt)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(sum))) == 1
}

func digest(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

func newSalt() (string, error) {
	max := big.NewInt(int64(len(saltAlphabet)))
	b := make([]byte, saltLen)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = saltAlphabet[n.Int64()]
	}
	return string(b), nil
}
