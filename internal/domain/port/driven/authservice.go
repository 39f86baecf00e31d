package driven

import (
	"context"

	"github.com/ericfisherdev/qrsignin/internal/domain/model"
)

// AuthService defines the driven port for the remote authentication service.
//
// Login returns *model.ValidationError for field-level rejections,
// *model.AuthError for any other non-success response and *model.NetworkError
// for transport failures.
type AuthService interface {
	Login(ctx context.Context, req model.LoginRequest) (model.Credential, error)

	// CurrentUser returns the account the credential belongs to. A revoked or
	// unknown credential yields *model.AuthError with Status 401.
	CurrentUser(ctx context.Context, cred model.Credential) (*model.Account, error)
}
