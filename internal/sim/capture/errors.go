package capture

import (
	"errors"
	"fmt"

	"zonewars.gg/internal/sim/zone"
)

// Caller contract violations. None of them are transient: resolving the same
// input again reproduces the same error.
var (
	ErrDuplicateCapture = errors.New("zone already captured this pass")
	ErrNoOpCapture      = errors.New("new owner equals staged owner")
	ErrUseAfterFinalize = errors.New("resolver already finalized")
	ErrUnknownZone      = errors.New("unknown zone")
	ErrAlreadyCommitted = errors.New("resolution already committed")
)

// CaptureError ties a contract violation to the zone that caused it.
type CaptureError struct {
	Zone zone.ZoneID
	Err  error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture zone %d: %v", e.Zone, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }
