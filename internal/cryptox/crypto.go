// Package cryptox implements field-level authenticated encryption.
//
// Every value is sealed with AES-256-GCM under a fresh 12-byte IV drawn from
// crypto/rand. The GCM output is split into ciphertext and the 16-byte
// authentication tag so that the three parts can be persisted separately.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/placementhub/vault/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the GCM nonce length in bytes.
	IVSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

var (
	// ErrIntegrity is returned when the authentication tag does not verify,
	// either because the ciphertext was modified or the key is wrong.
	ErrIntegrity = errors.New("ciphertext failed authentication")
	// ErrMalformedInput is returned when a part is missing or has the wrong length.
	ErrMalformedInput = errors.New("malformed encrypted field")
	// ErrInvalidKey is returned for keys that are not KeySize bytes long.
	ErrInvalidKey = errors.New("invalid encryption key")
)

// EncryptedField is the persisted form of one encrypted value.
type EncryptedField struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
	// KeyVersion identifies the keyring entry the field was sealed with.
	KeyVersion uint32
}

// Validate checks that all three parts are present and correctly sized.
func (f *EncryptedField) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil field", ErrMalformedInput)
	}
	if f.Ciphertext == nil {
		return fmt.Errorf("%w: missing ciphertext", ErrMalformedInput)
	}
	if len(f.IV) != IVSize {
		return fmt.Errorf("%w: iv must be %d bytes, got %d", ErrMalformedInput, IVSize, len(f.IV))
	}
	if len(f.AuthTag) != TagSize {
		return fmt.Errorf("%w: auth tag must be %d bytes, got %d", ErrMalformedInput, TagSize, len(f.AuthTag))
	}
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under key with a random IV. The returned field has
// KeyVersion zero; Engine.Encrypt fills it in.
func Encrypt(plaintext, key []byte) (*EncryptedField, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv, err := common.GenerateRandByteArray(IVSize)
	if err != nil {
		return nil, fmt.Errorf("iv generation: %w", err)
	}

	sealed := aesgcm.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - TagSize

	// Seal appends the tag; copy into separate buffers so the parts don't alias.
	ciphertext := make([]byte, split)
	copy(ciphertext, sealed[:split])
	tag := make([]byte, TagSize)
	copy(tag, sealed[split:])

	return &EncryptedField{Ciphertext: ciphertext, IV: iv, AuthTag: tag}, nil
}

// Decrypt opens field under key. Tag mismatches yield ErrIntegrity; no
// plaintext is ever returned alongside an error.
func Decrypt(field *EncryptedField, key []byte) ([]byte, error) {
	if err := field.Validate(); err != nil {
		return nil, err
	}
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(field.Ciphertext)+TagSize)
	sealed = append(sealed, field.Ciphertext...)
	sealed = append(sealed, field.AuthTag...)

	plaintext, err := aesgcm.Open(nil, field.IV, sealed, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// DeriveKey stretches a passphrase into a KeySize key with argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}
