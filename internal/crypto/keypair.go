package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"
)

// randReader is the random source used for key generation, symmetric keys,
// IVs and OAEP padding. It can be overridden for testing.
var randReader io.Reader = rand.Reader

// keyBits is the modulus size GenerateKeyPair uses.
var keyBits = RSAKeyBits

// KeyPair is an RSA key pair used for OAEP with SHA-512.
type KeyPair struct {
	// PublicKey is the shareable half. It is the same value as
	// &PrivateKey.PublicKey.
	PublicKey *rsa.PublicKey
	// PrivateKey never leaves the owning process in clear form.
	PrivateKey *rsa.PrivateKey
}

// GenerateKeyPair creates a new RSA-4096 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	return generateKeyPair(keyBits)
}

func generateKeyPair(bits int) (*KeyPair, error) {
	priv, err := rsa.GenerateKey(randReader, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyGeneration, err)
	}
	if priv.E != RSAPublicExponent {
		return nil, fmt.Errorf("%w: unexpected public exponent %d", ErrKeyGeneration, priv.E)
	}
	return &KeyPair{PublicKey: &priv.PublicKey, PrivateKey: priv}, nil
}

// NewKeyPair wraps an existing private key after checking it.
func NewKeyPair(priv *rsa.PrivateKey) (*KeyPair, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: nil private key", ErrKeyFormat)
	}
	if err := checkModulus(&priv.PublicKey); err != nil {
		return nil, err
	}
	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyFormat, err)
	}
	return &KeyPair{PublicKey: &priv.PublicKey, PrivateKey: priv}, nil
}

// Identifier returns the identifier derived from the public modulus.
// It is computed on every call.
func (k *KeyPair) Identifier() string {
	return IdentifierFromPublicKey(k.PublicKey)
}

// Bits returns the modulus size in bits.
func (k *KeyPair) Bits() int {
	return k.PublicKey.N.BitLen()
}

// ValidateKeyPair reports whether keypair holds a usable, matching pair.
func ValidateKeyPair(keypair *KeyPair) bool {
	if keypair == nil || keypair.PublicKey == nil || keypair.PrivateKey == nil {
		return false
	}
	if checkModulus(keypair.PublicKey) != nil {
		return false
	}
	if !keypair.PublicKey.Equal(&keypair.PrivateKey.PublicKey) {
		return false
	}
	return keypair.PrivateKey.Validate() == nil
}

func checkModulus(pub *rsa.PublicKey) error {
	if pub == nil || pub.N == nil {
		return fmt.Errorf("%w: missing modulus", ErrKeyFormat)
	}
	if bits := pub.N.BitLen(); bits < MinRSAKeyBits {
		return fmt.Errorf("%w: modulus is %d bits, want at least %d", ErrKeyFormat, bits, MinRSAKeyBits)
	}
	return nil
}
