// Package crypto implements the sparkle message protocol: RSA key pairs,
// identifier derivation, the envelope wire format and the hybrid cipher.
//
// # Algorithm Suite
//
//   - RSA-OAEP with a 4096-bit modulus and SHA-512 (both the OAEP hash and
//     MGF1): wraps the per-message symmetric key under the recipient's
//     public key.
//
//   - AES-256-GCM: encrypts the message text. The 16-byte tag is appended
//     to the ciphertext.
//
//   - SHA-256: derives the 64 character hex identifier of a party from the
//     raw bytes of its public modulus.
//
// # Envelope
//
// Every message travels as a JSON object:
//
//	{"iv": "...", "encryptedKey": "...", "ciphertext": "...",
//	 "sender": "<64 hex>", "receiver": "<64 hex>"}
//
// Byte fields are written as URL-safe base64 without padding and read back
// in any base64 alphabet.
//
// # Failure Modes
//
// [Decrypt] distinguishes a wrapped key that was not produced for the local
// key pair ([ErrKeyUnwrap]) from a payload whose tag does not verify
// ([ErrPayloadDecrypt]). Malformed envelopes fail with [ErrEnvelopeFormat]
// before any key operation runs.
//
// Nothing binds an identifier to proof of private key possession. A key
// fetched from a store is trusted as far as its hash matches the identifier
// it was requested under, and no further.
package crypto
