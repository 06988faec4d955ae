package crypto

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"

	jose "gopkg.in/square/go-jose.v2"
)

// ExportPublicJWK serializes the public half of keypair as a JSON Web Key.
// The "n" member is the input to DeriveIdentifier.
func ExportPublicJWK(keypair *KeyPair) ([]byte, error) {
	if keypair == nil || keypair.PublicKey == nil {
		return nil, fmt.Errorf("%w: nil public key", ErrKeyFormat)
	}
	return marshalJWK(keypair.PublicKey)
}

// ExportPrivateJWK serializes the private half of keypair as a JSON Web Key,
// including the CRT parameters.
func ExportPrivateJWK(keypair *KeyPair) ([]byte, error) {
	if keypair == nil || keypair.PrivateKey == nil {
		return nil, fmt.Errorf("%w: nil private key", ErrKeyFormat)
	}
	return marshalJWK(keypair.PrivateKey)
}

func marshalJWK(key any) ([]byte, error) {
	jwk := jose.JSONWebKey{
		Key:       key,
		Algorithm: JWKAlgorithm,
		Use:       "enc",
	}
	data, err := json.Marshal(jwk)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyFormat, err)
	}
	return data, nil
}

// ImportPublicJWK parses an RSA public JSON Web Key. Keys exported by
// WebCrypto, which carry "ext" and "key_ops", are accepted.
func ImportPublicJWK(data []byte) (*rsa.PublicKey, error) {
	jwk, err := parseJWK(data)
	if err != nil {
		return nil, err
	}

	var pub *rsa.PublicKey
	switch k := jwk.Key.(type) {
	case *rsa.PublicKey:
		pub = k
	case *rsa.PrivateKey:
		pub = &k.PublicKey
	default:
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrKeyFormat, jwk.Key)
	}
	if err := checkModulus(pub); err != nil {
		return nil, err
	}
	return pub, nil
}

// ImportPrivateJWK parses an RSA private JSON Web Key into a KeyPair.
func ImportPrivateJWK(data []byte) (*KeyPair, error) {
	jwk, err := parseJWK(data)
	if err != nil {
		return nil, err
	}
	priv, ok := jwk.Key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA private key (%T)", ErrKeyFormat, jwk.Key)
	}
	return NewKeyPair(priv)
}

// ModulusFromJWK returns the encoded "n" member of a JSON Web Key without
// building a key object.
func ModulusFromJWK(data []byte) (string, error) {
	var raw struct {
		Kty string `json:"kty"`
		N   string `json:"n"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", fmt.Errorf("%w: %w", ErrKeyFormat, err)
	}
	if raw.Kty != "RSA" || raw.N == "" {
		return "", fmt.Errorf("%w: missing RSA modulus", ErrKeyFormat)
	}
	return raw.N, nil
}

func parseJWK(data []byte) (*jose.JSONWebKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrKeyFormat)
	}
	var jwk jose.JSONWebKey
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyFormat, err)
	}
	if !jwk.Valid() {
		return nil, fmt.Errorf("%w: invalid JSON Web Key", ErrKeyFormat)
	}
	return &jwk, nil
}
