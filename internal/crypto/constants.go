package crypto

const (
	// RSAKeyBits is the modulus size of generated key pairs.
	RSAKeyBits = 4096
	// MinRSAKeyBits is the smallest modulus accepted on import.
	MinRSAKeyBits = 2048
	// RSAPublicExponent is the public exponent of generated key pairs (0x010001).
	RSAPublicExponent = 65537

	// AESKeySize is the size of an AES-256 key in bytes.
	AESKeySize = 32
	// AESNonceSize is the size of an AES-GCM nonce (IV) in bytes.
	AESNonceSize = 12
	// AESTagSize is the size of an AES-GCM authentication tag in bytes.
	AESTagSize = 16

	// IdentifierLength is the length of a hex encoded SHA-256 identifier.
	IdentifierLength = 64

	// JWKAlgorithm is the "alg" member written to exported JSON Web Keys.
	// It matches the WebCrypto name for RSA-OAEP with SHA-512.
	JWKAlgorithm = "RSA-OAEP-512"
)

// AlgsCiphersuite is the canonical string representation of the algorithm suite.
const AlgsCiphersuite = "RSA-OAEP-4096-SHA-512:AES-256-GCM:SHA-256-ID"
