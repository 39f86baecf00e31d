package driven

import (
	"context"

	"github.com/ericfisherdev/qrsignin/internal/domain/model"
)

// CameraAccess asks the camera subsystem for access. Whether a repeated
// request re-prompts or returns the previous answer is the subsystem's policy.
type CameraAccess interface {
	RequestAccess(ctx context.Context) (model.PermissionState, error)
}

// ScanSource yields scan events until ctx is done or the source is exhausted,
// at which point the channel is closed.
type ScanSource interface {
	Scans(ctx context.Context) <-chan model.ScanEvent
}
