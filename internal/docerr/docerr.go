// Package docerr defines the surface error taxonomy for the document engine.
package docerr

import "errors"

// Kind is the surface error taxonomy returned to callers of the public API.
type Kind int

const (
	// Unknown is the zero value; it should never be returned from the public API.
	Unknown Kind = iota
	// InvalidConfiguration covers config validation, page-loading, and tensor
	// contract violations (wrong input/output shapes).
	InvalidConfiguration
	// PDFRenderingFailed covers page rasterization failures.
	PDFRenderingFailed
	// ModelDeliveryFailed covers snapshot resolution, integrity, and hub failures.
	ModelDeliveryFailed
	// NotImplemented covers operations intentionally left unimplemented.
	NotImplemented
	// Cancelled covers context-cancellation short-circuits.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case InvalidConfiguration:
		return "InvalidConfiguration"
	case PDFRenderingFailed:
		return "PDFRenderingFailed"
	case ModelDeliveryFailed:
		return "ModelDeliveryFailed"
	case NotImplemented:
		return "NotImplemented"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with its surface Kind and the operation
// that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return e.Kind.String() + ": " + e.Op + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, &docerr.Error{Kind: docerr.InvalidConfiguration}) matches
// any error of that kind; see KindOf for reading the Kind directly.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs a Kind-tagged error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err, defaulting to Unknown when err does not
// carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsCancelled reports whether err represents pipeline cancellation.
func IsCancelled(err error) bool {
	return KindOf(err) == Cancelled
}
