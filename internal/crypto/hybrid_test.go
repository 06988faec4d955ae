package crypto

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	kp, _ := testKeyPairs(t)
	ctx := context.Background()
	id := kp.Identifier()

	tests := []struct {
		name      string
		plaintext string
	}{
		{"empty", ""},
		{"hello", "hello"},
		{"unicode", "grüße, 世界 \U0001F510"},
		{"json", `{"foo": "bar", "num": 123}`},
		{"long", strings.Repeat("sparkle ", 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Encrypt(ctx, tt.plaintext, kp.PublicKey, id, id)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			got, err := Decrypt(ctx, env, kp)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if got != tt.plaintext {
				t.Errorf("Decrypt() = %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestEncrypt_EnvelopeFields(t *testing.T) {
	alice, bob := testKeyPairs(t)

	env, err := Encrypt(context.Background(), "hi", alice.PublicKey, bob.Identifier(), alice.Identifier())
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if env.Sender != bob.Identifier() || env.Receiver != alice.Identifier() {
		t.Errorf("sender/receiver = %s/%s", env.Sender, env.Receiver)
	}

	parts, err := Deserialize(env)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if len(parts.IV) != AESNonceSize {
		t.Errorf("iv length = %d, want %d", len(parts.IV), AESNonceSize)
	}
	if len(parts.WrappedKey) != alice.PublicKey.Size() {
		t.Errorf("wrapped key length = %d, want %d", len(parts.WrappedKey), alice.PublicKey.Size())
	}
	if len(parts.Ciphertext) != len("hi")+AESTagSize {
		t.Errorf("ciphertext length = %d, want %d", len(parts.Ciphertext), len("hi")+AESTagSize)
	}
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	kp, _ := testKeyPairs(t)
	ctx := context.Background()
	id := kp.Identifier()

	env, err := Encrypt(ctx, "tamper", kp.PublicKey, id, id)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	parts, err := Deserialize(env)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}

	for i := 0; i < len(parts.Ciphertext)*8; i++ {
		tampered := append([]byte(nil), parts.Ciphertext...)
		tampered[i/8] ^= 1 << (i % 8)

		bad := *env
		bad.Ciphertext = ToBase64URL(tampered)
		got, err := Decrypt(ctx, &bad, kp)
		if !errors.Is(err, ErrPayloadDecrypt) {
			t.Fatalf("bit %d: Decrypt() = %q, %v, want ErrPayloadDecrypt", i, got, err)
		}
		if got != "" {
			t.Fatalf("bit %d: Decrypt() returned plaintext %q alongside an error", i, got)
		}
	}
}

func TestDecrypt_TamperedIV(t *testing.T) {
	kp, _ := testKeyPairs(t)
	ctx := context.Background()
	id := kp.Identifier()

	env, err := Encrypt(ctx, "tamper", kp.PublicKey, id, id)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	parts, _ := Deserialize(env)
	parts.IV[0] ^= 0x80
	env.IV = ToBase64URL(parts.IV)

	if _, err := Decrypt(ctx, env, kp); !errors.Is(err, ErrPayloadDecrypt) {
		t.Errorf("Decrypt() error = %v, want ErrPayloadDecrypt", err)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	kp1, kp2 := testKeyPairs(t)
	ctx := context.Background()

	env, err := Encrypt(ctx, "for kp1 only", kp1.PublicKey, kp2.Identifier(), kp1.Identifier())
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := Decrypt(ctx, env, kp2); !errors.Is(err, ErrKeyUnwrap) {
		t.Errorf("Decrypt() error = %v, want ErrKeyUnwrap", err)
	}
}

func TestDecrypt_TamperedWrappedKey(t *testing.T) {
	kp, _ := testKeyPairs(t)
	ctx := context.Background()
	id := kp.Identifier()

	env, err := Encrypt(ctx, "hello", kp.PublicKey, id, id)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	parts, _ := Deserialize(env)
	parts.WrappedKey[len(parts.WrappedKey)/2] ^= 0x01
	env.EncryptedKey = ToBase64URL(parts.WrappedKey)

	if _, err := Decrypt(ctx, env, kp); !errors.Is(err, ErrKeyUnwrap) {
		t.Errorf("Decrypt() error = %v, want ErrKeyUnwrap", err)
	}
}

func TestDecrypt_WrappedKeyOfWrongSize(t *testing.T) {
	kp, _ := testKeyPairs(t)
	id := kp.Identifier()

	wrapped, err := wrapKey(make([]byte, 16), kp.PublicKey)
	if err != nil {
		t.Fatalf("wrapKey() error = %v", err)
	}
	env, err := Serialize(make([]byte, AESNonceSize), wrapped, make([]byte, AESTagSize), id, id)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if _, err := Decrypt(context.Background(), env, kp); !errors.Is(err, ErrKeyUnwrap) {
		t.Errorf("Decrypt() error = %v, want ErrKeyUnwrap", err)
	}
}

func TestDecrypt_MalformedEnvelope(t *testing.T) {
	kp, _ := testKeyPairs(t)
	id := kp.Identifier()

	env, err := Encrypt(context.Background(), "hello", kp.PublicKey, id, id)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	env.IV = ""

	if _, err := Decrypt(context.Background(), env, kp); !errors.Is(err, ErrEnvelopeFormat) {
		t.Errorf("Decrypt() error = %v, want ErrEnvelopeFormat", err)
	}
}

func TestEncrypt_IVUniqueness(t *testing.T) {
	kp, _ := testKeyPairs(t)
	ctx := context.Background()
	id := kp.Identifier()

	const n = 200
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		env, err := Encrypt(ctx, "same plaintext", kp.PublicKey, id, id)
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if seen[env.IV] {
			t.Fatalf("envelope %d reused IV %s", i, env.IV)
		}
		seen[env.IV] = true
	}
}

func TestEncrypt_InvalidInput(t *testing.T) {
	kp, _ := testKeyPairs(t)
	ctx := context.Background()
	id := kp.Identifier()

	if _, err := Encrypt(ctx, "x", nil, id, id); !errors.Is(err, ErrKeyFormat) {
		t.Errorf("Encrypt(nil key) error = %v, want ErrKeyFormat", err)
	}
	if _, err := Encrypt(ctx, "x", kp.PublicKey, "abc", id); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("Encrypt(bad sender) error = %v, want ErrInvalidIdentifier", err)
	}
	if _, err := Encrypt(ctx, "x", kp.PublicKey, id, ""); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("Encrypt(empty receiver) error = %v, want ErrInvalidIdentifier", err)
	}
	if _, err := Encrypt(ctx, "bad \xff", kp.PublicKey, id, id); !errors.Is(err, ErrInvalidText) {
		t.Errorf("Encrypt(invalid utf-8) error = %v, want ErrInvalidText", err)
	}
}

func TestEncrypt_EntropyFailure(t *testing.T) {
	kp, _ := testKeyPairs(t)
	id := kp.Identifier()

	restore := SetRandReaderForTesting(errReader{})
	defer restore()

	env, err := Encrypt(context.Background(), "x", kp.PublicKey, id, id)
	if !errors.Is(err, ErrKeyGeneration) {
		t.Errorf("Encrypt() error = %v, want ErrKeyGeneration", err)
	}
	if env != nil {
		t.Error("Encrypt() returned a partial envelope")
	}
}

func TestEncryptDecrypt_CanceledContext(t *testing.T) {
	kp, _ := testKeyPairs(t)
	id := kp.Identifier()

	env, err := Encrypt(context.Background(), "x", kp.PublicKey, id, id)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Encrypt(ctx, "x", kp.PublicKey, id, id); !errors.Is(err, context.Canceled) {
		t.Errorf("Encrypt() error = %v, want context.Canceled", err)
	}
	if _, err := Decrypt(ctx, env, kp); !errors.Is(err, context.Canceled) {
		t.Errorf("Decrypt() error = %v, want context.Canceled", err)
	}
}

func TestHybrid_AliceAndBob(t *testing.T) {
	alice, bob := testKeyPairs(t)
	ctx := context.Background()

	// Bob only holds Alice's public key, as fetched from a store.
	published, err := ExportPublicJWK(alice)
	if err != nil {
		t.Fatalf("ExportPublicJWK() error = %v", err)
	}
	alicePub, err := ImportPublicJWK(published)
	if err != nil {
		t.Fatalf("ImportPublicJWK() error = %v", err)
	}
	if IdentifierFromPublicKey(alicePub) != alice.Identifier() {
		t.Fatal("fetched key does not match Alice's identifier")
	}

	env, err := Encrypt(ctx, "hello", alicePub, bob.Identifier(), alice.Identifier())
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	wire, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	received, err := ParseEnvelope(wire)
	if err != nil {
		t.Fatalf("ParseEnvelope() error = %v", err)
	}
	got, err := Decrypt(ctx, received, alice)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if got != "hello" {
		t.Errorf("Decrypt() = %q, want %q", got, "hello")
	}
	if received.Sender != bob.Identifier() {
		t.Errorf("Sender = %s, want %s", received.Sender, bob.Identifier())
	}
}
