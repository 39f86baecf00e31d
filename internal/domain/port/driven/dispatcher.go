package driven

import (
	"context"

	"github.com/ericfisherdev/qrsignin/internal/domain/model"
)

// Dispatcher sends the credential-bearing sign-in confirmation triggered by
// an accepted scan. It never returns an error: every failure is folded into
// the returned AuthOutcome.
type Dispatcher interface {
	Dispatch(ctx context.Context, cred model.Credential, scan model.ScanSession) model.AuthOutcome
}
