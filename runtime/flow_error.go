package runtime

import (
	"errors"
	"fmt"
)

// FlowErrorType classifies how a run failed.
type FlowErrorType string

const (
	// ErrorTypeStructural signals a malformed flow graph. Raised before
	// traversal, so no store call has been made.
	ErrorTypeStructural FlowErrorType = "structural"
	// ErrorTypeRuntime signals a failure while the run was in progress.
	// Store writes already applied stay applied.
	ErrorTypeRuntime FlowErrorType = "runtime"
)

// FlowErrorCode identifies known failure causes.
type FlowErrorCode string

const (
	ErrorCodeMissingStart      FlowErrorCode = "MISSING_START"
	ErrorCodeDuplicateNode     FlowErrorCode = "DUPLICATE_NODE"
	ErrorCodeUnknownNodeType   FlowErrorCode = "UNKNOWN_NODE_TYPE"
	ErrorCodeDanglingReference FlowErrorCode = "DANGLING_REFERENCE"
	ErrorCodeMissingSuccessor  FlowErrorCode = "MISSING_SUCCESSOR"
	ErrorCodeAmbiguousEdge     FlowErrorCode = "AMBIGUOUS_EDGE"
	ErrorCodeCycle             FlowErrorCode = "CYCLE"
	ErrorCodeUnpairedLoop      FlowErrorCode = "UNPAIRED_LOOP"
	ErrorCodeInvalidConfig     FlowErrorCode = "INVALID_CONFIG"

	ErrorCodeStoreFailure      FlowErrorCode = "STORE_FAILURE"
	ErrorCodeExpressionFailure FlowErrorCode = "EXPRESSION_FAILURE"
	ErrorCodeNotACollection    FlowErrorCode = "NOT_A_COLLECTION"
	ErrorCodeRecordNotFound    FlowErrorCode = "RECORD_NOT_FOUND"
	ErrorCodeNoActiveLoop      FlowErrorCode = "NO_ACTIVE_LOOP"
	ErrorCodeNotifyFailure     FlowErrorCode = "NOTIFY_FAILURE"
	ErrorCodeVisitLimit        FlowErrorCode = "VISIT_LIMIT"
	ErrorCodeContextCancelled  FlowErrorCode = "CONTEXT_CANCELLED"
)

var (
	// ErrBusy is returned when a run is already in progress on the engine.
	ErrBusy = errors.New("flow engine is busy")
	// ErrNotInitialized is returned when the engine has no project loaded.
	ErrNotInitialized = errors.New("flow engine is not initialized")
	// ErrFlowNotFound is returned when no registered flow matches a trigger.
	ErrFlowNotFound = errors.New("flow not found")
	// ErrRecordNotFound is returned by stores for unknown primary keys.
	ErrRecordNotFound = errors.New("record not found")
	// ErrDestroyed is returned once the engine has been destroyed.
	ErrDestroyed = errors.New("flow engine is destroyed")
)

// FlowError is the single terminal failure reported for a run.
type FlowError struct {
	Type      FlowErrorType `json:"type"`
	Code      FlowErrorCode `json:"code"`
	Message   string        `json:"message"`
	Flow      string        `json:"flow,omitempty"`
	Node      string        `json:"node,omitempty"`
	Committed int           `json:"committed"`
	Cause     error         `json:"-"`
}

func (e *FlowError) Error() string {
	msg := fmt.Sprintf("[%s/%s] %s", e.Type, e.Code, e.Message)
	if e.Node != "" {
		msg += fmt.Sprintf(" (node: %s)", e.Node)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// ToMap converts the error to a map suitable for JSON responses.
func (e *FlowError) ToMap() map[string]any {
	m := map[string]any{
		"type":      string(e.Type),
		"code":      string(e.Code),
		"message":   e.Message,
		"flow":      e.Flow,
		"node":      e.Node,
		"committed": e.Committed,
	}
	if e.Cause != nil {
		m["cause"] = e.Cause.Error()
	}
	return m
}

func structuralError(code FlowErrorCode, node, format string, args ...any) *FlowError {
	return &FlowError{
		Type:    ErrorTypeStructural,
		Code:    code,
		Node:    node,
		Message: fmt.Sprintf(format, args...),
	}
}

func runtimeError(code FlowErrorCode, node string, cause error, format string, args ...any) *FlowError {
	return &FlowError{
		Type:    ErrorTypeRuntime,
		Code:    code,
		Node:    node,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// IsStructural reports whether err is a structural FlowError.
func IsStructural(err error) bool {
	var fe *FlowError
	return errors.As(err, &fe) && fe.Type == ErrorTypeStructural
}

// IsRuntime reports whether err is a runtime FlowError.
func IsRuntime(err error) bool {
	var fe *FlowError
	return errors.As(err, &fe) && fe.Type == ErrorTypeRuntime
}
