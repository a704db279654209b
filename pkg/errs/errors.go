// Package errs is the OMS's structured internal error type: every
// reject surfaced on the wire is backed by one of these on the engine
// or gateway side, carrying a ksuid trace id for log correlation. The
// trace id never reaches the wire protocol itself (the fixed REJECT
// payload has no room for one); it exists purely for joining an engine
// log line back to the client-visible reject.
package errs

import (
	"fmt"
	"runtime"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/abdoElHodaky/tradsys-oms/internal/wire"
)

// ErrorCode mirrors wire.RejectReason plus a few codes that never reach
// a client (transport/config failures surfaced only in logs).
type ErrorCode string

const (
	ErrDuplicateSeqNo     ErrorCode = "DUPLICATE_SEQNO"
	ErrSeqNoGap           ErrorCode = "SEQNO_GAP"
	ErrSystemBusy         ErrorCode = "SYSTEM_BUSY"
	ErrOrderNotFound      ErrorCode = "ORDER_NOT_FOUND"
	ErrInvalidPrice       ErrorCode = "INVALID_PRICE"
	ErrInvalidQty         ErrorCode = "INVALID_QTY"
	ErrSessionNotLoggedOn ErrorCode = "SESSION_NOT_LOGGED_ON"

	ErrTransportFailure   ErrorCode = "TRANSPORT_FAILURE"
	ErrConfigurationError ErrorCode = "CONFIGURATION_ERROR"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// reasonToCode maps every wire-level reject reason except ReasonUnknown
// to its ErrorCode; FromRejectReason maps any reason absent here to
// ErrInternalError.
var reasonToCode = map[wire.RejectReason]ErrorCode{
	wire.ReasonDuplicateSeqNo:     ErrDuplicateSeqNo,
	wire.ReasonSeqNoGap:           ErrSeqNoGap,
	wire.ReasonSystemBusy:         ErrSystemBusy,
	wire.ReasonOrderNotFound:      ErrOrderNotFound,
	wire.ReasonInvalidPrice:       ErrInvalidPrice,
	wire.ReasonInvalidQty:         ErrInvalidQty,
	wire.ReasonSessionNotLoggedOn: ErrSessionNotLoggedOn,
}

// Severity classifies how urgently an error needs operator attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func severityForCode(code ErrorCode) Severity {
	switch code {
	case ErrTransportFailure, ErrConfigurationError, ErrInternalError:
		return SeverityCritical
	case ErrSystemBusy:
		return SeverityHigh
	case ErrOrderNotFound, ErrSessionNotLoggedOn, ErrDuplicateSeqNo, ErrSeqNoGap:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// OMSError is a structured internal error carrying everything an
// operator needs to correlate a log line with the wire-level reject a
// client saw.
type OMSError struct {
	Code      ErrorCode
	Message   string
	Severity  Severity
	TraceID   string
	Timestamp time.Time
	File      string
	Line      int
	Function  string
	Cause     error
}

// Error implements the error interface.
func (e *OMSError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] trace=%s: %s (caused by: %v)", e.Code, e.TraceID, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] trace=%s: %s", e.Code, e.TraceID, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *OMSError) Unwrap() error { return e.Cause }

// WithCause attaches an underlying error and returns the receiver.
func (e *OMSError) WithCause(cause error) *OMSError {
	e.Cause = cause
	return e
}

// New creates an OMSError, capturing the caller's file/line for
// diagnostics and minting a fresh ksuid trace id.
func New(code ErrorCode, message string) *OMSError {
	pc, file, line, _ := runtime.Caller(1)
	fn := runtime.FuncForPC(pc)
	var funcName string
	if fn != nil {
		funcName = fn.Name()
	}
	return &OMSError{
		Code:      code,
		Message:   message,
		Severity:  severityForCode(code),
		TraceID:   ksuid.New().String(),
		Timestamp: time.Now(),
		File:      file,
		Line:      line,
		Function:  funcName,
	}
}

// Newf creates an OMSError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *OMSError {
	return New(code, fmt.Sprintf(format, args...))
}

// FromRejectReason builds an OMSError for an outbound REJECT, so a log
// line can be correlated with the wire-level reason a client received.
func FromRejectReason(reason wire.RejectReason, message string) *OMSError {
	code, ok := reasonToCode[reason]
	if !ok {
		code = ErrInternalError
	}
	return New(code, message)
}

// Is reports whether err is an *OMSError with the given code.
func Is(err error, code ErrorCode) bool {
	var omsErr *OMSError
	if As(err, &omsErr) {
		return omsErr.Code == code
	}
	return false
}

// As finds the first *OMSError in err's chain.
func As(err error, target **OMSError) bool {
	if err == nil {
		return false
	}
	if omsErr, ok := err.(*OMSError); ok {
		*target = omsErr
		return true
	}
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return As(unwrapper.Unwrap(), target)
	}
	return false
}

// IsCritical reports whether err is an *OMSError at critical severity.
func IsCritical(err error) bool {
	var omsErr *OMSError
	if As(err, &omsErr) {
		return omsErr.Severity == SeverityCritical
	}
	return false
}
