package crypto

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// DeriveIdentifier computes the identifier for an encoded RSA modulus, as
// found in the "n" member of a JSON Web Key:
//
//	hex(SHA-256(base64decode(normalize(n))))
func DeriveIdentifier(encodedModulus string) (string, error) {
	if encodedModulus == "" {
		return "", fmt.Errorf("%w: empty modulus", ErrKeyFormat)
	}
	raw, err := base64.StdEncoding.DecodeString(NormalizeURLSafe(encodedModulus))
	if err != nil {
		return "", fmt.Errorf("%w: modulus: %w", ErrKeyFormat, err)
	}
	sum := sha256.Sum256(raw)
	return ToHex(sum[:]), nil
}

// IdentifierFromPublicKey returns the identifier of pub.
// The modulus is encoded the way a JWK encodes it: big-endian with no
// leading zero bytes.
func IdentifierFromPublicKey(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return ToHex(sum[:])
}

// ValidateIdentifier reports whether s is a well-formed identifier.
func ValidateIdentifier(s string) error {
	if !identifierPattern.MatchString(s) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	}
	return nil
}

// IsIdentifier is the boolean form of ValidateIdentifier.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}
