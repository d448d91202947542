// Package crypto encrypts OAuth tokens at rest with AES-256-GCM. Keys are
// identified by a short fingerprint stored next to each ciphertext, and a
// Keyring keeps retired keys around for decryption while tokens are rotated
// to the current key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrDecrypt is returned when a ciphertext fails authentication with every
// available key. Details are withheld on purpose.
var ErrDecrypt = errors.New("decryption failed: authentication or integrity check failed")

// Encryptor is an authenticated cipher with a stable key identifier.
type Encryptor interface {
	// Encrypt returns nonce || ciphertext || tag.
	Encrypt(plaintext []byte) ([]byte, error)
	// Decrypt verifies and opens a value produced by Encrypt.
	Decrypt(ciphertext []byte) ([]byte, error)
	// KeyID identifies the key new ciphertexts are sealed with.
	KeyID() string
}

// AESEncryptor implements Encryptor with a single AES-256-GCM key.
type AESEncryptor struct {
	aead  cipher.AEAD
	keyID string
}

// NewAESEncryptor creates an encryptor from a base64-encoded 32-byte key, as
// produced by `openssl rand -base64 32`.
func NewAESEncryptor(base64Key string) (*AESEncryptor, error) {
	base64Key = strings.TrimSpace(base64Key)
	if base64Key == "" {
		return nil, errors.New("encryption key is empty")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: base64 decode failed: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key: must be 32 bytes (256 bits), got %d bytes", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &AESEncryptor{aead: aead, keyID: Fingerprint(key)}, nil
}

// Fingerprint is the key id: the first 8 bytes of the key's SHA-256, hex encoded.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}

func (e *AESEncryptor) KeyID() string { return e.keyID }

// Encrypt seals plaintext under a fresh random nonce.
func (e *AESEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("plaintext is empty")
	}
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a value produced by Encrypt.
func (e *AESEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, errors.New("ciphertext is empty")
	}
	n := e.aead.NonceSize()
	if len(ciphertext) < n+e.aead.Overhead() {
		return nil, fmt.Errorf("ciphertext too short: expected at least %d bytes, got %d", n+e.aead.Overhead(), len(ciphertext))
	}
	plaintext, err := e.aead.Open(nil, ciphertext[:n], ciphertext[n:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// Keyring encrypts with its primary key and decrypts with any of its keys.
type Keyring struct {
	primary  *AESEncryptor
	previous []*AESEncryptor
}

// NewKeyring builds a keyring from the current key and any retired keys.
// Empty retired keys are ignored.
func NewKeyring(primary string, previous ...string) (*Keyring, error) {
	p, err := NewAESEncryptor(primary)
	if err != nil {
		return nil, err
	}
	kr := &Keyring{primary: p}
	for i, k := range previous {
		if strings.TrimSpace(k) == "" {
			continue
		}
		e, err := NewAESEncryptor(k)
		if err != nil {
			return nil, fmt.Errorf("previous key %d: %w", i+1, err)
		}
		if e.KeyID() != p.KeyID() {
			kr.previous = append(kr.previous, e)
		}
	}
	return kr, nil
}

func (k *Keyring) KeyID() string { return k.primary.KeyID() }

// Has reports whether the keyring holds the key with the given id.
func (k *Keyring) Has(keyID string) bool {
	if k.primary.KeyID() == keyID {
		return true
	}
	for _, e := range k.previous {
		if e.KeyID() == keyID {
			return true
		}
	}
	return false
}

func (k *Keyring) Encrypt(plaintext []byte) ([]byte, error) { return k.primary.Encrypt(plaintext) }

// Decrypt tries the primary key first, then retired keys in order.
func (k *Keyring) Decrypt(ciphertext []byte) ([]byte, error) {
	out, err := k.primary.Decrypt(ciphertext)
	if !errors.Is(err, ErrDecrypt) {
		return out, err
	}
	for _, e := range k.previous {
		if out, err := e.Decrypt(ciphertext); err == nil {
			return out, nil
		}
	}
	return nil, ErrDecrypt
}

// EncryptString encrypts s and base64-encodes the result for text columns.
// The empty string stays empty.
func EncryptString(enc Encryptor, s string) (string, error) {
	if s == "" {
		return "", nil
	}
	ciphertext, err := enc.Encrypt([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptString reverses EncryptString.
func DecryptString(enc Encryptor, s string) (string, error) {
	if s == "" {
		return "", nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("base64 decode failed: %w", err)
	}
	plaintext, err := enc.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
