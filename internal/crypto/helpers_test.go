package crypto

import (
	"errors"
	"sync"
	"testing"
)

const testKeyBits = 2048

var (
	testKeysOnce sync.Once
	testKeys     [2]*KeyPair
	testKeysErr  error
)

// testKeyPairs returns two distinct 2048-bit key pairs shared by the tests
// in this package. Generating 4096-bit keys for every test is too slow.
func testKeyPairs(t *testing.T) (*KeyPair, *KeyPair) {
	t.Helper()
	testKeysOnce.Do(func() {
		for i := range testKeys {
			testKeys[i], testKeysErr = generateKeyPair(testKeyBits)
			if testKeysErr != nil {
				return
			}
		}
	})
	if testKeysErr != nil {
		t.Fatalf("generateKeyPair() error = %v", testKeysErr)
	}
	return testKeys[0], testKeys[1]
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy source failed")
}
