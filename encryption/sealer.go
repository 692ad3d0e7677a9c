package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/kbukum/tokenkeeper/errors"
)

// Algorithm represents supported encryption algorithms.
type Algorithm string

const (
	// AlgorithmAESGCM is AES-256-GCM (default, widely supported).
	AlgorithmAESGCM Algorithm = "aes-256-gcm"

	// AlgorithmChaCha20 is ChaCha20-Poly1305 (fast on CPUs without AES-NI).
	AlgorithmChaCha20 Algorithm = "chacha20-poly1305"
)

const (
	sealedPrefix = "enc:v1:"
	hkdfInfo     = "tokenkeeper secret sealing"
)

// Sealer encrypts and decrypts individual secret strings.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
	Algorithm() Algorithm
}

// ParseAlgorithm resolves an algorithm name. The empty string selects AES-GCM.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(name))) {
	case "", AlgorithmAESGCM:
		return AlgorithmAESGCM, nil
	case AlgorithmChaCha20:
		return AlgorithmChaCha20, nil
	default:
		return "", errors.Configuration("store.algorithm", "unsupported encryption algorithm: "+name)
	}
}

// IsSealed reports whether value was produced by a Sealer.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

type aeadSealer struct {
	alg    Algorithm
	aead   cipher.AEAD
	random io.Reader
}

// New creates a Sealer for alg keyed by passphrase.
func New(passphrase string, alg Algorithm) (Sealer, error) {
	if passphrase == "" {
		return nil, errors.Configuration("store.encryption_key", "an encryption key is required to seal secrets")
	}
	if alg == "" {
		alg = AlgorithmAESGCM
	}

	key, err := deriveKey(passphrase, alg)
	if err != nil {
		return nil, err
	}

	var aead cipher.AEAD
	switch alg {
	case AlgorithmAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, errors.Internal("create cipher", err)
		}
		aead, err = cipher.NewGCM(block)
		if err != nil {
			return nil, errors.Internal("create GCM", err)
		}
	case AlgorithmChaCha20:
		aead, err = chacha20poly1305.New(key)
		if err != nil {
			return nil, errors.Internal("create chacha20", err)
		}
	default:
		return nil, errors.Configuration("store.algorithm", "unsupported encryption algorithm: "+string(alg))
	}

	return &aeadSealer{alg: alg, aead: aead, random: rand.Reader}, nil
}

// deriveKey stretches the passphrase into a 32-byte key. The algorithm name is
// mixed in so the two ciphers never share key material.
func deriveKey(passphrase string, alg Algorithm) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(passphrase), nil, []byte(hkdfInfo+" "+string(alg)))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Internal("derive key", err)
	}
	return key, nil
}

func (s *aeadSealer) Algorithm() Algorithm { return s.alg }

// Seal encrypts plaintext. Empty input stays empty.
func (s *aeadSealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(s.random, nonce); err != nil {
		return "", errors.Internal("generate nonce", err)
	}
	ciphertext := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(s.alg))
	return sealedPrefix + string(s.alg) + ":" + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts a value produced by Seal with the same key and algorithm.
func (s *aeadSealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !IsSealed(sealed) {
		return "", errors.New(errors.ErrCodeParse, "value is not sealed")
	}
	alg, payload, ok := strings.Cut(strings.TrimPrefix(sealed, sealedPrefix), ":")
	if !ok {
		return "", errors.New(errors.ErrCodeParse, "malformed sealed value")
	}
	if Algorithm(alg) != s.alg {
		return "", errors.New(errors.ErrCodeConfiguration,
			fmt.Sprintf("value was sealed with %s but the store is configured for %s", alg, s.alg))
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", errors.New(errors.ErrCodeParse, "decode sealed value").WithCause(err)
	}
	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New(errors.ErrCodeParse, "sealed value too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(s.alg))
	if err != nil {
		return "", errors.New(errors.ErrCodeConfiguration, "cannot decrypt sealed value; check the encryption key").WithCause(err)
	}
	return string(plaintext), nil
}
