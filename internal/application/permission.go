package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ericfisherdev/qrsignin/internal/domain/model"
	"github.com/ericfisherdev/qrsignin/internal/domain/port/driven"
)

// PermissionGate mirrors the camera subsystem's answer to access requests.
// It starts Unknown and only changes when the subsystem answers.
type PermissionGate struct {
	camera driven.CameraAccess

	mu    sync.RWMutex
	state model.PermissionState
}

// NewPermissionGate creates a gate in the Unknown state.
func NewPermissionGate(camera driven.CameraAccess) *PermissionGate {
	return &PermissionGate{
		camera: camera,
		state:  model.PermissionUnknown,
	}
}

// CurrentState returns the last answer from the camera subsystem.
func (g *PermissionGate) CurrentState() model.PermissionState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Request asks the camera subsystem for access and records the answer. It may
// be called again at any time; whether that re-prompts is up to the subsystem.
// A failed request leaves the recorded state unchanged.
func (g *PermissionGate) Request(ctx context.Context) (model.PermissionState, error) {
	state, err := g.camera.RequestAccess(ctx)
	if err != nil {
		return g.CurrentState(), fmt.Errorf("requesting camera access: %w", err)
	}

	g.mu.Lock()
	prev := g.state
	g.state = state
	g.mu.Unlock()

	if prev != state {
		slog.Info("camera permission changed", "from", prev, "to", state)
	}
	return state, nil
}

// CanScan reports whether scanning is permitted.
func (g *PermissionGate) CanScan() bool {
	return g.CurrentState() == model.PermissionGranted
}
