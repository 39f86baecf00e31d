package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/qrsignin/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// QRSIGNIN_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set QRSIGNIN_SECRET_KEY")

// CredentialStore defines the driven port for durable storage of the single
// session credential. The adapter layer is responsible for encryption; this
// interface operates on plaintext values at the domain boundary. Adapters do
// not cache and do not retry.
type CredentialStore interface {
	// Get returns the stored credential, or ("", nil) when none is stored.
	Get(ctx context.Context) (model.Credential, error)

	// Set stores or replaces the credential. An empty credential is rejected
	// with model.ErrEmptyCredential.
	Set(ctx context.Context, cred model.Credential) error

	// Clear removes the credential. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}
