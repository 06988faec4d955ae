package sparkle

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/sparkle/client-go/internal/crypto"
)

// ExportVersion is the current export format version.
const ExportVersion = 1

// ExportedIdentity contains all data needed to restore an identity.
// WARNING: this contains private key material - handle securely, or use
// ExportIdentityToFile which seals it with a passphrase.
type ExportedIdentity struct {
	// Version is the export format version. MUST be 1.
	Version int `json:"version"`
	// Identifier is the identity's public identifier.
	Identifier string `json:"identifier"`
	// PublicKey is the public JWK.
	PublicKey json.RawMessage `json:"publicKey"`
	// PrivateKey is the private JWK.
	PrivateKey json.RawMessage `json:"privateKey"`
	// ExportedAt is informational only.
	ExportedAt time.Time `json:"exportedAt"`
}

// Validate checks the exported data and reports every problem found. Each
// problem matches ErrInvalidImportData.
func (e *ExportedIdentity) Validate() error {
	_, err := e.keyPair()
	return err
}

// keyPair validates e and rebuilds the key pair from it.
func (e *ExportedIdentity) keyPair() (*crypto.KeyPair, error) {
	var result *multierror.Error
	invalid := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf("%w: "+format, append([]any{ErrInvalidImportData}, args...)...))
	}

	if e.Version != ExportVersion {
		invalid("unsupported version %d, expected %d", e.Version, ExportVersion)
	}
	idErr := crypto.ValidateIdentifier(e.Identifier)
	if idErr != nil {
		invalid("identifier: %v", idErr)
	}

	var kp *crypto.KeyPair
	if len(e.PrivateKey) == 0 {
		invalid("privateKey is required")
	} else {
		var err error
		kp, err = crypto.ImportPrivateJWK(e.PrivateKey)
		if err != nil {
			invalid("privateKey: %v", err)
		}
	}

	if kp != nil {
		if idErr == nil && kp.Identifier() != e.Identifier {
			invalid("identifier does not match private key")
		}
		if len(e.PublicKey) > 0 {
			pub, err := crypto.ImportPublicJWK(e.PublicKey)
			switch {
			case err != nil:
				invalid("publicKey: %v", err)
			case !pub.Equal(kp.PublicKey):
				invalid("publicKey does not match private key")
			}
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return kp, nil
}

// Export returns exportable identity data, including the private key.
func (i *Identity) Export() (*ExportedIdentity, error) {
	pub, err := crypto.ExportPublicJWK(i.keypair)
	if err != nil {
		return nil, err
	}
	priv, err := crypto.ExportPrivateJWK(i.keypair)
	if err != nil {
		return nil, err
	}
	return &ExportedIdentity{
		Version:    ExportVersion,
		Identifier: i.identifier,
		PublicKey:  pub,
		PrivateKey: priv,
		ExportedAt: time.Now().UTC(),
	}, nil
}

// ImportIdentity registers a previously exported identity. It is not
// published; call Publish to start receiving.
func (c *Client) ImportIdentity(data *ExportedIdentity) (*Identity, error) {
	if data == nil {
		return nil, fmt.Errorf("exported identity data cannot be nil")
	}
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	kp, err := data.keyPair()
	if err != nil {
		return nil, err
	}

	id := newIdentity(kp, c)
	if err := c.registerIdentity(id); err != nil {
		return nil, err
	}
	c.logger.Debug().Str("identifier", id.identifier).Msg("identity imported")
	return id, nil
}

// ExportIdentityToFile writes identity to filePath sealed with passphrase,
// with 0600 permissions.
func (c *Client) ExportIdentityToFile(identity *Identity, filePath, passphrase string) error {
	if identity == nil {
		return fmt.Errorf("identity is nil")
	}

	data, err := identity.Export()
	if err != nil {
		return err
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal identity data: %w", err)
	}

	sealed, err := crypto.SealWithPassphrase(passphrase, jsonData)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filePath, sealed, 0600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// ImportIdentityFromFile opens a file written by ExportIdentityToFile and
// imports the identity. A wrong passphrase fails with ErrInvalidPassphrase.
func (c *Client) ImportIdentityFromFile(filePath, passphrase string) (*Identity, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	sealed, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	jsonData, err := crypto.OpenWithPassphrase(passphrase, sealed)
	if err != nil {
		return nil, err
	}

	var data ExportedIdentity
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("%w: parse identity data: %v", ErrInvalidImportData, err)
	}
	return c.ImportIdentity(&data)
}
