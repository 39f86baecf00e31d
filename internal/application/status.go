package application

import (
	"github.com/ericfisherdev/qrsignin/internal/domain/model"
)

// StatusService assembles the read-only status view served by the CLI and the
// local API.
type StatusService struct {
	session    *SessionController
	permission *PermissionGate
	scanner    *ScanService
	mode       model.ConfirmMode
}

// NewStatusService creates a new StatusService. scanner may be nil when no
// scan loop is running (e.g. one-shot CLI commands).
func NewStatusService(session *SessionController, permission *PermissionGate, scanner *ScanService, mode model.ConfirmMode) *StatusService {
	return &StatusService{
		session:    session,
		permission: permission,
		scanner:    scanner,
		mode:       mode,
	}
}

// Status returns the current session, permission and scanner state.
func (s *StatusService) Status() model.Status {
	st := model.Status{
		Session:    s.session.State(),
		Permission: s.permission.CurrentState(),
		Scanner:    model.ScannerStatus{State: model.ScannerIdle},
		Mode:       s.mode,
	}
	if s.scanner != nil {
		st.Scanner = s.scanner.Status()
	}
	return st
}

// Ready reports whether a scan submitted now could be accepted.
func (s *StatusService) Ready() bool {
	st := s.Status()
	return st.Session == model.SessionAuthenticated &&
		st.Permission == model.PermissionGranted &&
		st.Scanner.State == model.ScannerIdle
}
