package errors

import (
	stderrors "errors"
	"fmt"
)

// MemError is the structured error type returned by every core
// operation. Every error names the operation that failed, the scope it
// happened in, and one remediation suggestion, per the error handling
// design's "no silent partial writes" policy.
type MemError struct {
	Kind       Kind
	Op         string
	Scope      string
	Message    string
	Category   Category
	Severity   Severity
	Retryable  bool
	Suggestion string
	Details    map[string]string
	Cause      error
}

// Error implements the error interface.
func (e *MemError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("[%s] %s(scope=%s): %s", e.Kind, e.Op, e.Scope, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Op, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *MemError) Unwrap() error {
	return e.Cause
}

// Is enables errors.Is(err, target) to match on Kind alone, so callers
// can test `errors.Is(err, &errors.MemError{Kind: errors.KindNotFound})`.
func (e *MemError) Is(target error) bool {
	t, ok := target.(*MemError)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetail attaches a key/value detail and returns the error for chaining.
func (e *MemError) WithDetail(key, value string) *MemError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithRetryable overrides the default retryability for this instance.
func (e *MemError) WithRetryable(retryable bool) *MemError {
	e.Retryable = retryable
	return e
}

// New creates a MemError of the given kind for operation op in scope
// scope, with a human-readable message and remediation suggestion.
func New(kind Kind, op, scope, message, suggestion string) *MemError {
	return &MemError{
		Kind:       kind,
		Op:         op,
		Scope:      scope,
		Message:    message,
		Category:   categoryFromKind(kind),
		Severity:   severityFromKind(kind),
		Retryable:  retryableFromKind(kind),
		Suggestion: suggestion,
	}
}

// Wrap creates a MemError of the given kind wrapping an existing cause.
func Wrap(kind Kind, op, scope string, cause error, suggestion string) *MemError {
	if cause == nil {
		return nil
	}
	e := New(kind, op, scope, cause.Error(), suggestion)
	e.Cause = cause
	return e
}

// NotFound, AlreadyExists, Conflict, Busy, IOErr, ConfigErr, Unsupported
// are convenience constructors for the non-parameterized error kinds.

func NotFound(op, scope, id string) *MemError {
	return New(KindNotFound, op, scope, fmt.Sprintf("item %q not found", id), fmt.Sprintf("check the id or run rebuild on scope=%s", scope))
}

func AlreadyExists(op, scope, id string) *MemError {
	return New(KindAlreadyExists, op, scope, fmt.Sprintf("content already exists for id %q", id), "")
}

func Conflict(op, scope, state string) *MemError {
	return New(KindConflict, op, scope, fmt.Sprintf("scope is %s, not READY", state), fmt.Sprintf("wait for scope=%s to finish opening or maintaining", scope))
}

func Busy(op, scope string) *MemError {
	return New(KindBusy, op, scope, "write queue is full", "retry with backoff").WithRetryable(true)
}

func IOErr(op, scope string, cause error) *MemError {
	return Wrap(KindIO, op, scope, cause, "check disk space and file permissions")
}

func ConfigErr(op, scope, message string) *MemError {
	return New(KindConfig, op, scope, message, "correct the offending option in config.json")
}

func Unsupported(op, scope, message string) *MemError {
	return New(KindUnsupported, op, scope, message, "choose a different backend or codec")
}

// Integrity constructs an IntegrityError carrying the byte offset at
// which the journal hash chain broke and a human-readable detail.
func Integrity(op, scope string, brokenAt int64, detail string) *MemError {
	e := New(KindIntegrity, op, scope, detail, fmt.Sprintf("run rebuild on scope=%s", scope))
	e.WithDetail("broken_at", fmt.Sprintf("%d", brokenAt))
	return e
}

// Decode constructs a DecodeError for the named stage (qr|video|json).
func Decode(op, scope, stage string, retryable bool, cause error) *MemError {
	e := Wrap(KindDecode, op, scope, cause, "")
	e.WithDetail("stage", stage)
	e.Retryable = retryable
	return e
}

// encodeFatalAttempts is the attempt count from which an EncodeError is
// fatal rather than retryable.
const encodeFatalAttempts = 3

// Encode constructs an EncodeError after N attempts for the given batch.
// From encodeFatalAttempts attempts on, the error has fatal severity.
func Encode(op, scope, batchID string, attempts int, cause error) *MemError {
	e := Wrap(KindEncode, op, scope, cause, fmt.Sprintf("inspect and retry batch=%s", batchID))
	e.WithDetail("batch_id", batchID)
	e.WithDetail("attempts", fmt.Sprintf("%d", attempts))
	if attempts >= encodeFatalAttempts {
		e.Severity = SeverityFatal
	}
	return e
}

// IsRetryable reports whether err is a MemError with Retryable set.
func IsRetryable(err error) bool {
	var e *MemError
	if stderrors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsFatal reports whether err is a MemError with fatal severity.
func IsFatal(err error) bool {
	var e *MemError
	if stderrors.As(err, &e) {
		return e.Severity == SeverityFatal
	}
	return false
}

// KindOf extracts the Kind from err, returning "" if err is not a MemError.
func KindOf(err error) Kind {
	var e *MemError
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}
