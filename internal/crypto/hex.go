package crypto

import "encoding/hex"

// ToHex renders bytes as lowercase hex, two digits per byte.
func ToHex(data []byte) string {
	return hex.EncodeToString(data)
}
