package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind categorizes the error. The set is closed; callers branch only on
// kind and never on message text.
type Kind string

const (
	// Invalid identifier kinds.
	KindInvalidResourceID Kind = "invalid_resource_id"
	KindInvalidContextID  Kind = "invalid_context_id"
	KindInvalidCapset     Kind = "invalid_capset"
	KindInvalidComponent  Kind = "invalid_component"

	// Invalid input kinds.
	KindInvalidCommandSize Kind = "invalid_command_size"
	KindInvalid2DInfo      Kind = "invalid_2d_info"
	KindInvalidImportData  Kind = "invalid_import_data"
	KindInvalidIovec       Kind = "invalid_iovec"
	KindInvalidHandle      Kind = "invalid_handle"
	KindSpecViolation      Kind = "spec_violation"

	// Backend failures carrying the raw status code.
	KindComponent Kind = "component"
	KindMapping   Kind = "mapping"

	// Transport or OS failure: descriptor duplication, mapping syscalls, IO.
	KindTransport Kind = "transport"

	// KindUnsupported marks operations the selected backend does not
	// implement or features not compiled in.
	KindUnsupported Kind = "unsupported"

	// KindSnapshot scopes a serialize or restore failure to one entity.
	KindSnapshot Kind = "snapshot"

	// KindAlreadyInUse reports double initialization of process-wide state.
	KindAlreadyInUse Kind = "already_in_use"

	// KindInternal is unclassified; the caller is not supposed to handle it.
	KindInternal Kind = "internal"
)

// Error is the structured error type used throughout the library.
type Error struct {
	Kind   Kind
	Detail string

	// Status is the raw backend return code for KindComponent and
	// KindMapping errors, surfaced verbatim.
	Status int32

	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(string(e.Kind))

	if e.Kind == KindComponent || e.Kind == KindMapping {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Errors match on kind alone.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// KindOf extracts the kind from an error chain. Errors produced outside this
// package report KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

// New creates a new error builder.
func New(kind Kind) *Builder {
	return &Builder{err: Error{Kind: kind}}
}

// Detail sets the human-readable detail message.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Status sets the raw backend status code.
func (b *Builder) Status(ret int32) *Builder {
	b.err.Status = ret
	return b
}

// Cause sets the underlying error.
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidResourceID creates an unknown resource id error.
func InvalidResourceID(id uint32) *Error {
	return &Error{Kind: KindInvalidResourceID, Detail: fmt.Sprintf("resource %d", id)}
}

// InvalidContextID creates an unknown context id error.
func InvalidContextID(id uint32) *Error {
	return &Error{Kind: KindInvalidContextID, Detail: fmt.Sprintf("context %d", id)}
}

// InvalidCapset creates an unknown capset error.
func InvalidCapset(id uint32) *Error {
	return &Error{Kind: KindInvalidCapset, Detail: fmt.Sprintf("capset %d", id)}
}

// InvalidComponent creates an error for a backend that is unknown or not
// enabled in this process.
func InvalidComponent(name string) *Error {
	return &Error{Kind: KindInvalidComponent, Detail: name}
}

// InvalidCommandSize creates an error for a command buffer whose byte length
// is not a multiple of the command word size.
func InvalidCommandSize(size int) *Error {
	return &Error{Kind: KindInvalidCommandSize, Detail: fmt.Sprintf("%d bytes", size)}
}

// InvalidImportData creates an error for conflicting or missing import
// metadata.
func InvalidImportData(detail string) *Error {
	return &Error{Kind: KindInvalidImportData, Detail: detail}
}

// InvalidIovec creates an error for a backing range outside guest memory.
func InvalidIovec(detail string) *Error {
	return &Error{Kind: KindInvalidIovec, Detail: detail}
}

// InvalidHandle creates an error for a descriptor that cannot be exported or
// duplicated.
func InvalidHandle(cause error) *Error {
	return &Error{Kind: KindInvalidHandle, Cause: cause}
}

// SpecViolation creates an error for input that violates the device
// protocol.
func SpecViolation(detail string) *Error {
	return &Error{Kind: KindSpecViolation, Detail: detail}
}

// Component wraps a non-zero backend return code. The code is preserved
// verbatim in Status.
func Component(ret int32) *Error {
	return &Error{Kind: KindComponent, Status: ret}
}

// Mapping wraps a non-zero return code from a backend map or unmap call.
func Mapping(ret int32) *Error {
	return &Error{Kind: KindMapping, Status: ret}
}

// Transport wraps a descriptor, mapping or IO failure from the OS.
func Transport(detail string, cause error) *Error {
	return &Error{Kind: KindTransport, Detail: detail, Cause: cause}
}

// Unsupported creates an unsupported operation error.
func Unsupported(what string) *Error {
	return &Error{Kind: KindUnsupported, Detail: what}
}

// Snapshot scopes a serialize or restore failure to a single entity.
func Snapshot(detail string, cause error) *Error {
	return &Error{Kind: KindSnapshot, Detail: detail, Cause: cause}
}

// AlreadyInUse reports that process-wide backend state was initialized
// twice.
func AlreadyInUse(what string) *Error {
	return &Error{Kind: KindAlreadyInUse, Detail: what}
}

// Internal wraps an unclassified error.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Cause: cause}
}
