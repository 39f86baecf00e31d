// Package camera implements the camera subsystem ports: access probes and
// line-oriented scan sources fed by an external QR decoder.
package camera

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ericfisherdev/qrsignin/internal/domain/model"
	"github.com/ericfisherdev/qrsignin/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.CameraAccess = (*DeviceAccess)(nil)
	_ driven.CameraAccess = AlwaysGranted{}
)

// DeviceAccess probes a video device node (e.g. /dev/video0). Each request
// re-checks the device, so access granted later through group membership or
// udev rules is picked up on the next request.
type DeviceAccess struct {
	path string
}

// NewDeviceAccess creates a DeviceAccess for the given device path.
func NewDeviceAccess(path string) *DeviceAccess {
	return &DeviceAccess{path: path}
}

// RequestAccess opens the device read-only and closes it again. A permission
// error maps to PermissionDenied; a missing device is an error and leaves the
// state Unknown.
func (d *DeviceAccess) RequestAccess(ctx context.Context) (model.PermissionState, error) {
	if err := ctx.Err(); err != nil {
		return model.PermissionUnknown, err
	}

	f, err := os.Open(d.path)
	switch {
	case err == nil:
		_ = f.Close()
		return model.PermissionGranted, nil
	case errors.Is(err, fs.ErrPermission):
		return model.PermissionDenied, nil
	default:
		return model.PermissionUnknown, fmt.Errorf("probe camera device %s: %w", d.path, err)
	}
}

// AlwaysGranted is used when scan events come from an external decoder that
// owns the camera itself, so there is nothing to ask permission for.
type AlwaysGranted struct{}

// RequestAccess always grants access.
func (AlwaysGranted) RequestAccess(context.Context) (model.PermissionState, error) {
	return model.PermissionGranted, nil
}
