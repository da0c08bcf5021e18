package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// SecretPrefix marks an encrypted config value.
const SecretPrefix = "enc:"

const saltSize = 16

var errMalformedSecret = errors.New("malformed encrypted value")

// EncryptValue seals plaintext with AES-256-GCM under a key derived from
// passphrase. The result is base64url(salt | nonce | ciphertext), without
// SecretPrefix.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	out := append(salt, nonce...)
	out = aead.Seal(out, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// DecryptValue opens a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errMalformedSecret, err)
	}
	if len(raw) < saltSize {
		return "", errMalformedSecret
	}
	aead, err := newAEAD(passphrase, raw[:saltSize])
	if err != nil {
		return "", err
	}
	rest := raw[saltSize:]
	if len(rest) < aead.NonceSize()+aead.Overhead() {
		return "", errMalformedSecret
	}
	plain, err := aead.Open(nil, rest[:aead.NonceSize()], rest[aead.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plain), nil
}

// newAEAD derives the AES key with Argon2id.
func newAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// decryptSecrets replaces every SecretPrefix value among engine API keys and
// proxy URLs with its plaintext.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.Engines {
		e := &cfg.Engines[i]
		if err := openSecret(&e.APIKey, passphrase); err != nil {
			return fmt.Errorf("engine %s api_key: %w", e.Name, err)
		}
		if e.Network.Inline != nil {
			if err := openProxies(e.Network.Inline.Proxies, passphrase); err != nil {
				return fmt.Errorf("engine %s proxies: %w", e.Name, err)
			}
		}
	}
	if err := openProxies(cfg.Outgoing.Proxies, passphrase); err != nil {
		return fmt.Errorf("outgoing proxies: %w", err)
	}
	for name, nc := range cfg.Outgoing.Networks {
		if err := openProxies(nc.Proxies, passphrase); err != nil {
			return fmt.Errorf("network %s proxies: %w", name, err)
		}
	}
	return nil
}

func openProxies(p ProxiesConfig, passphrase string) error {
	for _, urls := range p {
		for i := range urls {
			if err := openSecret(&urls[i], passphrase); err != nil {
				return err
			}
		}
	}
	return nil
}

func openSecret(v *string, passphrase string) error {
	sealed, ok := strings.CutPrefix(*v, SecretPrefix)
	if !ok {
		return nil
	}
	plain, err := DecryptValue(sealed, passphrase)
	if err != nil {
		return err
	}
	*v = plain
	return nil
}
