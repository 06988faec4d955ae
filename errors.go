package sparkle

import (
	"errors"
	"fmt"

	"github.com/sparkle/client-go/internal/api"
	"github.com/sparkle/client-go/internal/crypto"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrKeyGeneration is returned when a key pair cannot be generated.
	ErrKeyGeneration = crypto.ErrKeyGeneration

	// ErrKeyFormat is returned when key material is malformed, is not RSA
	// or is smaller than 2048 bits.
	ErrKeyFormat = crypto.ErrKeyFormat

	// ErrKeyUnwrap is returned when a message key cannot be recovered with
	// the local private key, usually because the envelope is for someone
	// else.
	ErrKeyUnwrap = crypto.ErrKeyUnwrap

	// ErrPayloadDecrypt is returned when a message fails authentication.
	ErrPayloadDecrypt = crypto.ErrPayloadDecrypt

	// ErrEnvelopeFormat is returned when an envelope is malformed.
	ErrEnvelopeFormat = crypto.ErrEnvelopeFormat

	// ErrInvalidIdentifier is returned when an identifier is not 64
	// lowercase hex characters.
	ErrInvalidIdentifier = crypto.ErrInvalidIdentifier

	// ErrInvalidPassphrase is returned when an identity file cannot be
	// opened with the given passphrase.
	ErrInvalidPassphrase = crypto.ErrPassphrase

	// ErrMissingStore is returned when no store is provided.
	ErrMissingStore = errors.New("store is required")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrPeerNotFound is returned when no key is published for an identifier.
	ErrPeerNotFound = errors.New("peer not found")

	// ErrIdentityNotPublished is returned by operations that need the
	// identity to be listening for messages.
	ErrIdentityNotPublished = errors.New("identity has not been published")

	// ErrIdentityExists is returned when importing an identity the client
	// already holds.
	ErrIdentityExists = errors.New("identity already exists")

	// ErrInvalidImportData is returned when imported identity data is invalid.
	ErrInvalidImportData = errors.New("invalid import data")

	// ErrDecryptionFailed matches every DecryptionError.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrUnauthorized is returned when the store rejects the credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited is returned when a send cannot get a token from the
	// rate limit before its context ends, or the store reports rate
	// limiting.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// SparkleError is implemented by all typed SDK errors.
type SparkleError interface {
	error
	SparkleError() // marker method
}

// APIError represents an HTTP error from a REST store.
type APIError struct {
	StatusCode int
	Message    string
	Path       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// SparkleError implements the SparkleError interface.
func (e *APIError) SparkleError() {}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 401, 403:
		return target == ErrUnauthorized
	case 429:
		return target == ErrRateLimited
	}
	return false
}

// NetworkError represents a network-level failure.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// SparkleError implements the SparkleError interface.
func (e *NetworkError) SparkleError() {}

// Decryption stages reported in DecryptionError.Stage.
const (
	StageEnvelope = "envelope"
	StageUnwrap   = "unwrap"
	StagePayload  = "payload"
	StageKey      = "key"
	StageContext  = "context"
)

// DecryptionError represents a failure to decrypt a delivered envelope.
type DecryptionError struct {
	// Stage is one of the Stage constants.
	Stage string
	// Key is the store key of the envelope.
	Key string
	Err error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption of %s failed at %s: %v", e.Key, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *DecryptionError) Is(target error) bool {
	return target == ErrDecryptionFailed
}

// SparkleError implements the SparkleError interface.
func (e *DecryptionError) SparkleError() {}

func decryptionStage(err error) string {
	switch {
	case errors.Is(err, crypto.ErrEnvelopeFormat):
		return StageEnvelope
	case errors.Is(err, crypto.ErrKeyUnwrap):
		return StageUnwrap
	case errors.Is(err, crypto.ErrPayloadDecrypt):
		return StagePayload
	case errors.Is(err, crypto.ErrKeyFormat):
		return StageKey
	default:
		return StageContext
	}
}

// StoreError reports a failed store operation.
type StoreError struct {
	// Op is the store method: "set", "get", "push" or "subscribe".
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// SparkleError implements the SparkleError interface.
func (e *StoreError) SparkleError() {}

func storeError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Path: path, Err: wrapError(err)}
}

// wrapError converts internal API errors to public errors.
// This ensures that errors.Is() checks work with public sentinel errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Path:       apiErr.Path,
		}
	}

	var netErr *api.NetworkError
	if errors.As(err, &netErr) {
		return &NetworkError{
			Err:     netErr.Err,
			URL:     netErr.URL,
			Attempt: netErr.Attempt,
		}
	}

	return err
}
