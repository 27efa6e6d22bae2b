package rtsp

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes callers check for.
var (
	// ErrTimeout indicates no correlated response arrived before the deadline.
	ErrTimeout = errors.New("rtsp exchange timed out")

	// ErrNoResponseSaved indicates a wait signal fired without a stored
	// response. This is a correlation bug, never a receiver problem.
	ErrNoResponseSaved = errors.New("rtsp wait signalled without a response")

	// ErrStatus indicates the receiver answered with a non-success status.
	ErrStatus = errors.New("rtsp error status")

	// ErrConnectionClosed indicates the control connection can no longer be used.
	ErrConnectionClosed = errors.New("rtsp connection closed")
)

// TimeoutError reports which request went unanswered.
type TimeoutError struct {
	CSeq uint64
	URI  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no response to CSeq %d (%s)", e.CSeq, e.URI)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ProtocolError is raised when the pending table is left in a state that
// should be impossible.
type ProtocolError struct {
	CSeq uint64
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("no response was saved for CSeq %d", e.CSeq)
}

func (e *ProtocolError) Unwrap() error {
	return ErrNoResponseSaved
}

// StatusError carries a receiver reported error status.
type StatusError struct {
	Method  string
	URI     string
	Code    int
	Message string
	Body    []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed: %d %s", e.Method, e.URI, e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	return ErrStatus
}
