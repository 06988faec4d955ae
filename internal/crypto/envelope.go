package crypto

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire form of one encrypted message.
type Envelope struct {
	IV           string `json:"iv"`
	EncryptedKey string `json:"encryptedKey"`
	Ciphertext   string `json:"ciphertext"`
	Sender       string `json:"sender"`
	Receiver     string `json:"receiver"`
}

// EnvelopeParts holds the decoded fields of an Envelope.
type EnvelopeParts struct {
	IV         []byte
	WrappedKey []byte
	Ciphertext []byte
	Sender     string
	Receiver   string
}

// Serialize text-encodes the parts of an encrypted message.
func Serialize(iv, wrappedKey, ciphertext []byte, sender, receiver string) (*Envelope, error) {
	if len(iv) != AESNonceSize {
		return nil, fmt.Errorf("%w: iv is %d bytes, want %d", ErrEnvelopeFormat, len(iv), AESNonceSize)
	}
	if len(wrappedKey) == 0 {
		return nil, fmt.Errorf("%w: empty encryptedKey", ErrEnvelopeFormat)
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: empty ciphertext", ErrEnvelopeFormat)
	}
	if err := ValidateIdentifier(sender); err != nil {
		return nil, fmt.Errorf("%w: sender: %w", ErrEnvelopeFormat, err)
	}
	if err := ValidateIdentifier(receiver); err != nil {
		return nil, fmt.Errorf("%w: receiver: %w", ErrEnvelopeFormat, err)
	}

	return &Envelope{
		IV:           ToBase64URL(iv),
		EncryptedKey: ToBase64URL(wrappedKey),
		Ciphertext:   ToBase64URL(ciphertext),
		Sender:       sender,
		Receiver:     receiver,
	}, nil
}

// Deserialize decodes every field of env independently.
func Deserialize(env *Envelope) (*EnvelopeParts, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrEnvelopeFormat)
	}

	iv, err := decodeField("iv", env.IV)
	if err != nil {
		return nil, err
	}
	if len(iv) != AESNonceSize {
		return nil, fmt.Errorf("%w: iv is %d bytes, want %d", ErrEnvelopeFormat, len(iv), AESNonceSize)
	}
	wrappedKey, err := decodeField("encryptedKey", env.EncryptedKey)
	if err != nil {
		return nil, err
	}
	ciphertext, err := decodeField("ciphertext", env.Ciphertext)
	if err != nil {
		return nil, err
	}

	if env.Sender == "" {
		return nil, fmt.Errorf("%w: missing sender", ErrEnvelopeFormat)
	}
	if err := ValidateIdentifier(env.Sender); err != nil {
		return nil, fmt.Errorf("%w: sender: %w", ErrEnvelopeFormat, err)
	}
	if env.Receiver == "" {
		return nil, fmt.Errorf("%w: missing receiver", ErrEnvelopeFormat)
	}
	if err := ValidateIdentifier(env.Receiver); err != nil {
		return nil, fmt.Errorf("%w: receiver: %w", ErrEnvelopeFormat, err)
	}

	return &EnvelopeParts{
		IV:         iv,
		WrappedKey: wrappedKey,
		Ciphertext: ciphertext,
		Sender:     env.Sender,
		Receiver:   env.Receiver,
	}, nil
}

func decodeField(name, value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrEnvelopeFormat, name)
	}
	b, err := DecodeBase64(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEnvelopeFormat, name, err)
	}
	return b, nil
}

// ParseEnvelope unmarshals the JSON form of an envelope. Syntax errors are
// reported as ErrEnvelopeFormat; field checks are left to Deserialize.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvelopeFormat, err)
	}
	return &env, nil
}

// Marshal returns the JSON form of the envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
