// Package orcherr classifies errors by category, severity, and retryability
// so the Supervisor can decide "fatal at startup" vs "step-level failure" vs
// "logged and ignored" uniformly, instead of string-matching error text.
package orcherr

import "fmt"

// Category names the subsystem an error originated in.
type Category string

const (
	CategoryConfig       Category = "config"
	CategoryStateIO      Category = "state_io"
	CategoryChildProcess Category = "child_process"
	CategoryTimeout      Category = "timeout"
	CategoryArtifact     Category = "artifact"
	CategoryLock         Category = "lock"
	CategoryNotifier     Category = "notifier"
	CategoryInternal     Category = "internal"
)

// Severity indicates how far the error's effect should propagate.
type Severity string

const (
	// SeverityFatal stops the orchestrator (configuration invalidity, an
	// unwritable state directory, or a held instance lock).
	SeverityFatal Severity = "fatal"
	// SeverityStep demotes a step to Failed but leaves the daemon running.
	SeverityStep Severity = "step"
	// SeverityLogged is recorded and otherwise ignored (e.g. notifier
	// failures).
	SeverityLogged Severity = "logged"
)

// Retry indicates whether the Pipeline Engine should attempt the failed
// operation again.
type Retry string

const (
	RetryNever    Retry = "never"
	RetryNextTick Retry = "next_tick"
	RetryBackoff  Retry = "backoff"
)

// Error is a structured, classified error. When built with Wrap it carries
// a cause, so unwrapping keeps working through errors.Is/errors.As.
type Error struct {
	category Category
	severity Severity
	retry    Retry
	message  string
	cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.category, e.severity, e.message, e.cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.category, e.severity, e.message)
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// Category returns the error's subsystem category.
func (e *Error) Category() Category { return e.category }

// Severity returns the error's severity.
func (e *Error) Severity() Severity { return e.severity }

// RetryPolicy returns the recommended retry handling.
func (e *Error) RetryPolicy() Retry { return e.retry }

// IsFatal reports whether the orchestrator should stop entirely.
func (e *Error) IsFatal() bool { return e.severity == SeverityFatal }

// Builder constructs an Error with a fluent API, matching the corpus's
// classified-error construction style.
type Builder struct {
	category Category
	severity Severity
	retry    Retry
	message  string
	cause    error
}

// New starts a Builder for a fresh error in category with message.
func New(category Category, message string) *Builder {
	return &Builder{category: category, severity: SeverityStep, retry: RetryNever, message: message}
}

// Wrap starts a Builder that wraps an existing error.
func Wrap(err error, category Category, message string) *Builder {
	return &Builder{category: category, severity: SeverityStep, retry: RetryNever, message: message, cause: err}
}

// Fatal marks the error as process-terminating.
func (b *Builder) Fatal() *Builder { b.severity = SeverityFatal; return b }

// Logged marks the error as log-and-ignore.
func (b *Builder) Logged() *Builder { b.severity = SeverityLogged; return b }

// Retryable marks the error as eligible for the engine's backoff schedule.
func (b *Builder) Retryable() *Builder { b.retry = RetryBackoff; return b }

// NextTick marks the error as eligible for an immediate next-tick retry
// (used for state I/O errors that roll a mutation back in memory).
func (b *Builder) NextTick() *Builder { b.retry = RetryNextTick; return b }

// Build finalizes the Error.
func (b *Builder) Build() *Error {
	return &Error{category: b.category, severity: b.severity, retry: b.retry, message: b.message, cause: b.cause}
}

// Convenience constructors mirroring §7's taxonomy.

// ConfigError is always fatal at startup; no journal mutation has happened
// yet when it is raised.
func ConfigError(message string) *Builder {
	return New(CategoryConfig, message).Fatal()
}

// StateIOError returns a non-fatal Builder marked for a next-tick retry;
// callers whose failure prevents writing the journal at all add .Fatal().
func StateIOError(message string) *Builder {
	return New(CategoryStateIO, message).NextTick()
}

// ChildProcessError represents a non-fatal job failure, handled by the
// Pipeline Engine's retry/skip logic.
func ChildProcessError(message string) *Builder {
	return New(CategoryChildProcess, message).Retryable()
}

// TimeoutError is a species of child failure, distinguished by category so
// callers can set killed_due_to_timeout on the journal record.
func TimeoutError(message string) *Builder {
	return New(CategoryTimeout, message).Retryable()
}

// ArtifactError demotes an exit-0 run to failure when its declared artifacts
// are missing.
func ArtifactError(message string) *Builder {
	return New(CategoryArtifact, message).Retryable()
}

// LockError is fatal at startup with a dedicated exit code; never retried.
func LockError(message string) *Builder {
	return New(CategoryLock, message).Fatal()
}

// NotifierError is logged and never propagated.
func NotifierError(message string) *Builder {
	return New(CategoryNotifier, message).Logged()
}

// InternalError represents an uncaught programming error.
func InternalError(message string) *Builder {
	return New(CategoryInternal, message).Fatal()
}

// As attempts to recover an *Error from err.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// IsFatal reports whether err is a classified Error with fatal severity.
func IsFatal(err error) bool {
	e, ok := As(err)
	return ok && e.IsFatal()
}
