package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	sealVersion = 1
	sealKDF     = "argon2id"
	sealPrefix  = "SPARKLE-SEALED1\n"
	saltSize    = 16
)

// Argon2id cost parameters for new sealed data. Opening uses the values
// stored alongside the ciphertext.
var (
	SealKDFTime     uint32 = 2
	SealKDFMemoryKB uint32 = 64 * 1024
	SealKDFThreads  uint8  = 1
)

// sealed is the JSON body of passphrase-sealed data.
type sealed struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

// SealWithPassphrase encrypts plaintext under a key stretched from
// passphrase with Argon2id, using XChaCha20-Poly1305.
func SealWithPassphrase(passphrase string, plaintext []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrPassphrase
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(randReader, salt); err != nil {
		return nil, fmt.Errorf("%w: salt: %w", ErrKeyGeneration, err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(randReader, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce: %w", ErrKeyGeneration, err)
	}

	env := sealed{
		Version:     sealVersion,
		KDF:         sealKDF,
		KDFTime:     SealKDFTime,
		KDFMemoryKB: SealKDFMemoryKB,
		KDFThreads:  SealKDFThreads,
		Salt:        salt,
		Nonce:       nonce,
	}

	key := env.deriveKey(passphrase)
	defer clear(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	env.Ciphertext = aead.Seal(nil, nonce, plaintext, []byte(sealPrefix))

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(sealPrefix), raw...), nil
}

// OpenWithPassphrase reverses SealWithPassphrase.
func OpenWithPassphrase(passphrase string, data []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrPassphrase
	}
	if !bytes.HasPrefix(data, []byte(sealPrefix)) {
		return nil, fmt.Errorf("%w: missing header", ErrSealedFormat)
	}

	var env sealed
	if err := json.Unmarshal(data[len(sealPrefix):], &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSealedFormat, err)
	}
	if env.Version != sealVersion || env.KDF != sealKDF {
		return nil, fmt.Errorf("%w: unsupported version %d or kdf %q", ErrSealedFormat, env.Version, env.KDF)
	}
	if len(env.Salt) == 0 || len(env.Nonce) != chacha20poly1305.NonceSizeX || env.KDFTime == 0 || env.KDFMemoryKB == 0 || env.KDFThreads == 0 {
		return nil, fmt.Errorf("%w: bad parameters", ErrSealedFormat)
	}

	key := env.deriveKey(passphrase)
	defer clear(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(sealPrefix))
	if err != nil {
		return nil, ErrPassphrase
	}
	return plaintext, nil
}

func (s *sealed) deriveKey(passphrase string) []byte {
	return argon2.IDKey([]byte(passphrase), s.Salt, s.KDFTime, s.KDFMemoryKB, s.KDFThreads, chacha20poly1305.KeySize)
}
