package crypto

import (
	"errors"
	"testing"
)

func TestGenerateKeyPair(t *testing.T) {
	if testing.Short() {
		t.Skip("4096-bit key generation is slow")
	}

	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	if kp.Bits() != RSAKeyBits {
		t.Errorf("Bits() = %d, want %d", kp.Bits(), RSAKeyBits)
	}
	if kp.PublicKey.E != RSAPublicExponent {
		t.Errorf("E = %d, want %d", kp.PublicKey.E, RSAPublicExponent)
	}
	if !ValidateKeyPair(kp) {
		t.Error("ValidateKeyPair() = false for a generated key pair")
	}
	if err := ValidateIdentifier(kp.Identifier()); err != nil {
		t.Errorf("Identifier() = %q: %v", kp.Identifier(), err)
	}
}

func TestGenerateKeyPair_EntropyFailure(t *testing.T) {
	restore := SetRandReaderForTesting(errReader{})
	defer restore()

	_, err := generateKeyPair(testKeyBits)
	if !errors.Is(err, ErrKeyGeneration) {
		t.Errorf("generateKeyPair() error = %v, want ErrKeyGeneration", err)
	}
}

func TestKeyPair_Uniqueness(t *testing.T) {
	kp1, kp2 := testKeyPairs(t)

	if kp1.PublicKey.Equal(kp2.PublicKey) {
		t.Error("generated key pairs have identical public keys")
	}
	if kp1.Identifier() == kp2.Identifier() {
		t.Error("generated key pairs have identical identifiers")
	}
}

func TestValidateKeyPair(t *testing.T) {
	kp1, kp2 := testKeyPairs(t)

	tests := []struct {
		name string
		kp   *KeyPair
		want bool
	}{
		{"valid", kp1, true},
		{"nil", nil, false},
		{"missing public", &KeyPair{PrivateKey: kp1.PrivateKey}, false},
		{"missing private", &KeyPair{PublicKey: kp1.PublicKey}, false},
		{"mismatched halves", &KeyPair{PublicKey: kp2.PublicKey, PrivateKey: kp1.PrivateKey}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateKeyPair(tt.kp); got != tt.want {
				t.Errorf("ValidateKeyPair() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewKeyPair(t *testing.T) {
	kp, _ := testKeyPairs(t)

	got, err := NewKeyPair(kp.PrivateKey)
	if err != nil {
		t.Fatalf("NewKeyPair() error = %v", err)
	}
	if got.Identifier() != kp.Identifier() {
		t.Errorf("Identifier() = %s, want %s", got.Identifier(), kp.Identifier())
	}

	if _, err := NewKeyPair(nil); !errors.Is(err, ErrKeyFormat) {
		t.Errorf("NewKeyPair(nil) error = %v, want ErrKeyFormat", err)
	}
}
