package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const keySalt = "smarthedge-broker-accounts"

// ErrDecrypt is returned when a stored value cannot be opened with the configured key.
var ErrDecrypt = errors.New("store: decrypt failed")

// Cipher seals credential columns with AES-256-GCM under a scrypt-derived key.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the column key from passphrase.
func NewCipher(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, errors.New("store: empty encryption passphrase")
	}
	key, err := scrypt.Key([]byte(passphrase), []byte(keySalt), 32768, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt returns base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plain string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plain), nil
}

func (c *Cipher) encryptNullable(v *string) (*string, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	enc, err := c.Encrypt(*v)
	if err != nil {
		return nil, err
	}
	return &enc, nil
}

func (c *Cipher) decryptNullable(v *string) (*string, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	dec, err := c.Decrypt(*v)
	if err != nil {
		return nil, err
	}
	return &dec, nil
}
