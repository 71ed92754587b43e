package pool

import "fmt"

// ErrPoolClosed is returned by Acquire once Close has been called.
var ErrPoolClosed = fmt.Errorf("pool: closed")

// AcquisitionTimeoutError is raised when a waiter's acquisition_timeout
// elapses before a resource becomes available (spec §4.11).
type AcquisitionTimeoutError struct {
	Address       string
	ActiveCount   int
	IdleCount     int
	TimeoutMillis int64
	// RequestID correlates this timeout with the waiter's own
	// bookkeeping entry (spec §3.9 acquire_queue), useful when matching
	// a driver-level timeout against pool logs.
	RequestID string
}

func (e *AcquisitionTimeoutError) Error() string {
	return fmt.Sprintf(
		"pool: acquisition %s timed out after %dms for %s (active=%d idle=%d)",
		e.RequestID, e.TimeoutMillis, e.Address, e.ActiveCount, e.IdleCount,
	)
}
