package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltFile       = ".salt"
	saltSize       = 32
	keyIterations  = 100000
	keySize        = 32
	keyDomainLabel = "gcal-analyzer/token"
)

// TokenEncryptor encrypts the cached OAuth token with a key bound to this
// machine, this user and a per-cache-directory salt.
type TokenEncryptor struct {
	derivedKey []byte
}

func NewTokenEncryptor(cacheDir string) (*TokenEncryptor, error) {
	salt, err := generateOrLoadSalt(cacheDir)
	if err != nil {
		return nil, NewCryptoError("key_derivation", "failed to prepare salt").WithCause(err)
	}

	machineID, err := getMachineID()
	if err != nil {
		return nil, NewCryptoError("key_derivation", "failed to get machine ID").WithCause(err)
	}

	userHome, err := os.UserHomeDir()
	if err != nil || userHome == "" {
		return nil, NewCryptoError("key_derivation", "home directory not available").WithCause(err)
	}

	keyMaterial := fmt.Sprintf("%s:%s:%s", keyDomainLabel, machineID, userHome)
	derivedKey := pbkdf2.Key([]byte(keyMaterial), salt, keyIterations, keySize, sha256.New)

	return &TokenEncryptor{derivedKey: derivedKey}, nil
}

// Encrypt seals plaintext with AES-GCM and returns base64(nonce|ciphertext).
func (te *TokenEncryptor) Encrypt(plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", fmt.Errorf("plaintext cannot be empty")
	}

	gcm, err := te.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (te *TokenEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	if ciphertext == "" {
		return nil, fmt.Errorf("ciphertext cannot be empty")
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	gcm, err := te.aead()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

func (te *TokenEncryptor) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(te.derivedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func generateOrLoadSalt(cacheDir string) ([]byte, error) {
	saltPath := filepath.Join(cacheDir, saltFile)

	if salt, err := os.ReadFile(saltPath); err == nil && len(salt) == saltSize {
		return salt, nil
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate random salt: %w", err)
	}

	if err := os.WriteFile(saltPath, salt, 0600); err != nil {
		return nil, fmt.Errorf("failed to save salt: %w", err)
	}

	return salt, nil
}

// getMachineID reads the machine ID from /etc/machine-id or fallback sources
func getMachineID() (string, error) {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
			return string(data[:min(len(data), 32)]), nil
		}
	}

	hostname, _ := os.Hostname()
	fallback := fmt.Sprintf("%s-%d", hostname, os.Getuid())
	if len(fallback) < 8 {
		return "fallback-machine-id", nil
	}

	return fallback, nil
}
