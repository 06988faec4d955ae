package crypto

import (
	"fmt"
	"unicode/utf8"
)

// EncodeText converts text into the byte form carried by the cipher.
func EncodeText(s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, ErrInvalidText
	}
	return []byte(s), nil
}

// DecodeText is the inverse of EncodeText.
func DecodeText(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidText, len(b))
	}
	return string(b), nil
}
