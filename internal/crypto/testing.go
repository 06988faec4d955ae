package crypto

import "io"

// SetRandReaderForTesting sets the random reader used for key generation,
// symmetric keys, IVs and OAEP padding.
// This is intended for testing only. Returns a function to restore the original reader.
// Since this package is internal, this function cannot be accessed by external code.
func SetRandReaderForTesting(r io.Reader) func() {
	original := randReader
	randReader = r
	return func() { randReader = original }
}

// SetKeyBitsForTesting sets the modulus size used by GenerateKeyPair so that
// tests outside this package can use faster 2048-bit keys.
// Returns a function to restore the original size.
func SetKeyBitsForTesting(bits int) func() {
	original := keyBits
	keyBits = bits
	return func() { keyBits = original }
}
