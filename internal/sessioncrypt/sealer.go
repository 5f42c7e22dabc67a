// Package sessioncrypt seals the identity-provider tokens kept in session records.
//
// Sealed values are bound to the session ID through AEAD associated data, so a
// blob copied onto another session key fails to open.
package sessioncrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	keyedPrefix = "k1:"
	plainPrefix = "plain:"
	keySize     = 32
)

var (
	// ErrUnknownKey means the value was sealed with a key no longer in the ring.
	ErrUnknownKey = errors.New("sessioncrypt: sealed with an unknown key")
	// ErrMalformed means the value is not a recognised sealed format.
	ErrMalformed = errors.New("sessioncrypt: malformed sealed value")
)

// Sealer seals and opens values bound to a session ID.
type Sealer interface {
	Seal(plaintext []byte, sessionID string) (string, error)
	Open(sealed string, sessionID string) ([]byte, error)
}

type ringKey struct {
	id   string
	aead cipher.AEAD
}

// Keyring seals with its primary key and opens with any key it holds.
type Keyring struct {
	primary ringKey
	byID    map[string]ringKey
}

// NewKeyring builds a ring from 32-byte keys. The first key seals.
func NewKeyring(primary []byte, previous ...[]byte) (*Keyring, error) {
	all := append([][]byte{primary}, previous...)
	ring := &Keyring{byID: make(map[string]ringKey, len(all))}
	for i, raw := range all {
		k, err := newRingKey(raw)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		if i == 0 {
			ring.primary = k
		}
		if _, dup := ring.byID[k.id]; !dup {
			ring.byID[k.id] = k
		}
	}
	return ring, nil
}

func newRingKey(raw []byte) (ringKey, error) {
	if len(raw) != keySize {
		return ringKey{}, fmt.Errorf("aes-256 key must be %d bytes, got %d", keySize, len(raw))
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return ringKey{}, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return ringKey{}, err
	}
	sum := sha256.Sum256(raw)
	return ringKey{id: hex.EncodeToString(sum[:4]), aead: aead}, nil
}

// PrimaryKeyID identifies the sealing key without revealing it.
func (r *Keyring) PrimaryKeyID() string { return r.primary.id }

// Seal encrypts plaintext as "k1:<key id>:<base64 nonce||ciphertext>".
func (r *Keyring) Seal(plaintext []byte, sessionID string) (string, error) {
	aead := r.primary.aead
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, plaintext, []byte(sessionID))
	return keyedPrefix + r.primary.id + ":" + base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values written by Plain are accepted so sessions saved
// before a key was configured keep working until they expire.
func (r *Keyring) Open(sealed string, sessionID string) ([]byte, error) {
	if strings.HasPrefix(sealed, plainPrefix) {
		return Plain{}.Open(sealed, sessionID)
	}
	rest, ok := strings.CutPrefix(sealed, keyedPrefix)
	if !ok {
		return nil, ErrMalformed
	}
	kid, payload, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, ErrMalformed
	}
	k, ok := r.byID[kid]
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrUnknownKey, kid)
	}
	data, err := base64.RawStdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	n := k.aead.NonceSize()
	if len(data) < n+k.aead.Overhead() {
		return nil, ErrMalformed
	}
	pt, err := k.aead.Open(nil, data[:n], data[n:], []byte(sessionID))
	if err != nil {
		return nil, fmt.Errorf("sessioncrypt: open: %w", err)
	}
	return pt, nil
}

// Plain stores values unencrypted. Used when no key is configured.
type Plain struct{}

func (Plain) Seal(plaintext []byte, _ string) (string, error) {
	return plainPrefix + base64.RawStdEncoding.EncodeToString(plaintext), nil
}

func (Plain) Open(sealed string, _ string) ([]byte, error) {
	payload, ok := strings.CutPrefix(sealed, plainPrefix)
	if !ok {
		return nil, ErrMalformed
	}
	return base64.RawStdEncoding.DecodeString(payload)
}

// DeriveKey turns a configured key string into 32 bytes: a 64-char hex
// string is used as-is, anything else is hashed with SHA-256.
func DeriveKey(s string) []byte {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(s); err == nil && len(b) == keySize {
		return b
	}
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}
