package types

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for recovery and reporting.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindSegmentRange Kind = "segment_range"
	KindExternal     Kind = "external_service"
	KindRender       Kind = "render"
	KindFatal        Kind = "fatal"
)

var (
	ErrNoSegments          = errors.New("no suitable segments found for shorts")
	ErrAnalysisUnavailable = errors.New("analysis collaborator unavailable")
)

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind implements the classifier used by KindOf.
func (e *Error) ErrorKind() string { return string(e.Kind) }

func newError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func ValidationError(op string, err error) error   { return newError(KindValidation, op, err) }
func SegmentRangeError(op string, err error) error { return newError(KindSegmentRange, op, err) }
func ExternalError(op string, err error) error     { return newError(KindExternal, op, err) }
func RenderError(op string, err error) error       { return newError(KindRender, op, err) }
func FatalError(op string, err error) error        { return newError(KindFatal, op, err) }

// KindOf returns the outermost classified kind in err's chain, or "".
func KindOf(err error) Kind {
	var classifier interface{ ErrorKind() string }
	if errors.As(err, &classifier) {
		return Kind(classifier.ErrorKind())
	}
	return ""
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return KindOf(err) == KindFatal
}
