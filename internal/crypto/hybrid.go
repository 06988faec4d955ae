package crypto

import (
	"context"
	"crypto/rsa"
	"crypto/sha512"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Encrypt seals plaintext for recipient.
//
// A fresh AES-256 key and IV are generated, the key is wrapped with
// RSA-OAEP-SHA-512 while the payload is sealed with AES-256-GCM, and both
// results are joined into an Envelope. If either step fails no envelope is
// returned.
func Encrypt(ctx context.Context, plaintext string, recipient *rsa.PublicKey, sender, receiver string) (*Envelope, error) {
	if recipient == nil {
		return nil, fmt.Errorf("%w: nil recipient key", ErrKeyFormat)
	}
	if err := ValidateIdentifier(sender); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier(receiver); err != nil {
		return nil, err
	}
	data, err := EncodeText(plaintext)
	if err != nil {
		return nil, err
	}

	key, err := GenerateAESKey()
	if err != nil {
		return nil, err
	}
	defer clear(key)

	iv, err := GenerateIV()
	if err != nil {
		return nil, err
	}

	var wrappedKey, ciphertext []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		w, err := wrapKey(key, recipient)
		if err != nil {
			return err
		}
		wrappedKey = w
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		c, err := encryptAESGCM(key, iv, data)
		if err != nil {
			return err
		}
		ciphertext = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return Serialize(iv, wrappedKey, ciphertext, sender, receiver)
}

// Decrypt opens env with the private half of keypair. The stages run in
// order: decode, key unwrap, payload decrypt, text decode.
func Decrypt(ctx context.Context, env *Envelope, keypair *KeyPair) (string, error) {
	if keypair == nil || keypair.PrivateKey == nil {
		return "", fmt.Errorf("%w: nil private key", ErrKeyFormat)
	}

	parts, err := Deserialize(env)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key, err := unwrapKey(parts.WrappedKey, keypair.PrivateKey)
	if err != nil {
		return "", err
	}
	defer clear(key)
	if err := ctx.Err(); err != nil {
		return "", err
	}

	plaintext, err := decryptAESGCM(key, parts.IV, parts.Ciphertext)
	if err != nil {
		return "", err
	}

	text, err := DecodeText(plaintext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPayloadDecrypt, err)
	}
	return text, nil
}

func wrapKey(key []byte, pub *rsa.PublicKey) ([]byte, error) {
	wrapped, err := rsa.EncryptOAEP(sha512.New(), randReader, pub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: wrap: %w", ErrKeyFormat, err)
	}
	return wrapped, nil
}

func unwrapKey(wrapped []byte, priv *rsa.PrivateKey) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha512.New(), nil, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyUnwrap, err)
	}
	if len(key) != AESKeySize {
		clear(key)
		return nil, fmt.Errorf("%w: unwrapped key is %d bytes", ErrKeyUnwrap, len(key))
	}
	return key, nil
}
