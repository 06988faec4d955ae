package crypto

import "errors"

var (
	// ErrKeyGeneration is returned when a key pair or symmetric key cannot be
	// generated (entropy or algorithm failure).
	ErrKeyGeneration = errors.New("key generation failed")

	// ErrKeyFormat is returned when serialized key material is malformed or
	// describes an unsupported key.
	ErrKeyFormat = errors.New("invalid key format")

	// ErrKeyUnwrap is returned when the wrapped symmetric key cannot be
	// recovered with the local private key.
	ErrKeyUnwrap = errors.New("key unwrap failed")

	// ErrPayloadDecrypt is returned when the authenticated decryption of the
	// payload fails.
	ErrPayloadDecrypt = errors.New("payload decryption failed")

	// ErrEnvelopeFormat is returned when an envelope is missing a field, a
	// field cannot be decoded, or the IV has the wrong size.
	ErrEnvelopeFormat = errors.New("invalid envelope")

	// ErrInvalidIdentifier is returned when a string is not a 64 character
	// lowercase hex identifier.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrInvalidText is returned when bytes or a string are not valid UTF-8.
	ErrInvalidText = errors.New("invalid UTF-8 text")

	// ErrInvalidKeySize is returned when the AES key size is invalid.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidNonceSize is returned when the nonce size is invalid.
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrPassphrase is returned when sealed data cannot be opened with the
	// given passphrase, or the passphrase is empty.
	ErrPassphrase = errors.New("wrong or empty passphrase")

	// ErrSealedFormat is returned when sealed data is not in the expected
	// format.
	ErrSealedFormat = errors.New("invalid sealed data")
)
