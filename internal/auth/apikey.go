// Package auth provides the API key primitives: generation, bcrypt hashing and verification, and
// Authorization header parsing.
// See internal/apikeys for the lifecycle commands and the request-time authenticator built on these primitives.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyPrefix is the fixed scheme marker at the start of every key
	KeyPrefix = "pst"

	// APIKeyLength is the length of the random part of the API key in bytes
	APIKeyLength = 32

	// DisplayPrefixLength is the number of leading plaintext characters kept as key_prefix
	DisplayPrefixLength = 8

	// KeyLength is the length of a well-formed plaintext key: "pst_" plus 43 base64url characters
	KeyLength = len(KeyPrefix) + 1 + 43

	// DefaultBcryptCost is the cost factor for bcrypt hashing
	DefaultBcryptCost = 12
)

// ErrRNGUnavailable is returned when the system random source cannot produce key material.
var ErrRNGUnavailable = errors.New("random source unavailable")

// dummyPlaintext is hashed once per codec to give the no-match path something to verify against.
const dummyPlaintext = "pst_timing-equalization-placeholder-not-a-key"

// GeneratedKey is the output of KeyCodec.Generate. Plaintext must be shown to the user once and then dropped.
type GeneratedKey struct {
	Plaintext string
	Hash      string
	Prefix    string
}

// KeyCodec generates and verifies API keys at a fixed bcrypt cost.
type KeyCodec struct {
	cost   int
	random io.Reader

	// highest cost among this codec's own and every stored hash passed to ObserveStoredHash
	storedCost atomic.Int32

	dummyMu   sync.Mutex
	dummyCost int
	dummyHash string
}

// NewKeyCodec returns a codec hashing at the given bcrypt cost. Costs outside bcrypt's
// accepted range fall back to DefaultBcryptCost.
func NewKeyCodec(cost int) *KeyCodec {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	c := &KeyCodec{cost: cost, random: rand.Reader}
	c.storedCost.Store(int32(cost))
	return c
}

// WithRandom replaces the random source. Intended for tests that need to force RNG failure
// or collisions.
func (c *KeyCodec) WithRandom(r io.Reader) *KeyCodec {
	c.random = r
	return c
}

// Cost reports the bcrypt cost factor used by this codec.
func (c *KeyCodec) Cost() int {
	return c.cost
}

// NewPlaintext draws a fresh plaintext key without hashing it.
func (c *KeyCodec) NewPlaintext() (string, error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err := io.ReadFull(c.random, randomBytes); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRNGUnavailable, err)
	}
	return KeyPrefix + "_" + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// Generate creates a new random API key.
// Returns the full key (to show once), its bcrypt hash (to store) and its display prefix.
func (c *KeyCodec) Generate() (GeneratedKey, error) {
	plaintext, err := c.NewPlaintext()
	if err != nil {
		return GeneratedKey{}, err
	}

	hash, err := c.Hash(plaintext)
	if err != nil {
		return GeneratedKey{}, err
	}

	return GeneratedKey{
		Plaintext: plaintext,
		Hash:      hash,
		Prefix:    PrefixOf(plaintext),
	}, nil
}

// Hash bcrypt-hashes an arbitrary plaintext at the codec's cost.
func (c *KeyCodec) Hash(plaintext string) (string, error) {
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(plaintext), c.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hashBytes), nil
}

// Verify checks if a provided key matches the stored hash. It never panics and returns false
// for empty input, malformed hashes and mismatches.
func (c *KeyCodec) Verify(candidate, storedHash string) bool {
	if candidate == "" || storedHash == "" {
		return false
	}
	// Any error, including an over-long candidate, is a mismatch.
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(candidate)) == nil
}

// ObserveStoredHash records the cost of a hash read from the store. The dummy hash never has a
// lower cost than any stored hash observed. Malformed hashes are ignored.
func (c *KeyCodec) ObserveStoredHash(storedHash string) {
	cost, err := bcrypt.Cost([]byte(storedHash))
	if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return
	}
	for {
		cur := c.storedCost.Load()
		if int32(cost) <= cur || c.storedCost.CompareAndSwap(cur, int32(cost)) {
			return
		}
	}
}

// DummyHash returns a fixed hash at the highest cost seen so far: the codec's own, or that of
// any observed stored hash. It is recomputed only when that cost rises.
func (c *KeyCodec) DummyHash() string {
	want := int(c.storedCost.Load())

	c.dummyMu.Lock()
	defer c.dummyMu.Unlock()
	if c.dummyHash == "" || c.dummyCost < want {
		h, err := bcrypt.GenerateFromPassword([]byte(dummyPlaintext), want)
		if err != nil {
			// Only reachable with an invalid cost, which NewKeyCodec and ObserveStoredHash rule out.
			panic(fmt.Sprintf("auth: cannot compute dummy hash: %v", err))
		}
		c.dummyHash = string(h)
		c.dummyCost = want
	}
	return c.dummyHash
}

// PrefixOf returns the display prefix of a plaintext key: its first DisplayPrefixLength characters,
// or the whole string when shorter.
func PrefixOf(plaintext string) string {
	if len(plaintext) > DisplayPrefixLength {
		return plaintext[:DisplayPrefixLength]
	}
	return plaintext
}

// ExtractAPIKeyFromHeader extracts the candidate API key from an Authorization header value.
// Accepted forms are "Bearer <key>" (scheme matched case-insensitively, any whitespace after it)
// and the bare key. An empty result means no credentials were supplied.
func ExtractAPIKeyFromHeader(header string) string {
	value := strings.TrimSpace(header)
	if value == "" {
		return ""
	}

	const scheme = "bearer"
	if len(value) > len(scheme) && strings.EqualFold(value[:len(scheme)], scheme) {
		rest := value[len(scheme):]
		if r, _ := utf8.DecodeRuneInString(rest); unicode.IsSpace(r) {
			return strings.TrimSpace(rest)
		}
	}

	return value
}
