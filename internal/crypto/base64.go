package crypto

import (
	"encoding/base64"
	"strings"
)

// ToBase64URL encodes bytes to URL-safe base64 without padding.
// All byte fields of an envelope are written in this form.
func ToBase64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// FromBase64URL decodes strict URL-safe base64 without padding.
func FromBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// NormalizeURLSafe converts a URL-safe, unpadded base64 string into the
// standard padded alphabet. Input whose length is already a multiple of
// four gets no padding.
func NormalizeURLSafe(s string) string {
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	if pad := (4 - len(s)%4) % 4; pad > 0 {
		s += strings.Repeat("=", pad)
	}
	return s
}

// DecodeBase64 decodes base64 in either alphabet, with or without padding.
// Envelopes written by other implementations are not guaranteed to use the
// unpadded URL-safe form, so decoding is lenient.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if data, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
