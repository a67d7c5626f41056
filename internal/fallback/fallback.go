// Package fallback runs ordered strategies until one succeeds.
package fallback

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy is one named way of producing a T.
type Strategy[T any] struct {
	Name string
	Run  func() (T, error)
}

// Failure records a strategy that was tried and did not succeed.
type Failure struct {
	Strategy string
	Err      error
}

// Outcome is the tagged result of a chain: Strategy names the winner, or is
// empty when every strategy failed.
type Outcome[T any] struct {
	Value    T
	Strategy string
	Failures []Failure
}

func (o Outcome[T]) OK() bool { return o.Strategy != "" }

// Degraded reports whether a later strategy had to be used.
func (o Outcome[T]) Degraded() bool { return o.OK() && len(o.Failures) > 0 }

// Err joins the failures of an exhausted chain. It is nil when a strategy won.
func (o Outcome[T]) Err() error {
	if o.OK() {
		return nil
	}
	if len(o.Failures) == 0 {
		return errors.New("no strategies")
	}
	parts := make([]string, 0, len(o.Failures))
	errs := make([]error, 0, len(o.Failures))
	for _, f := range o.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Strategy, f.Err))
		errs = append(errs, f.Err)
	}
	return &exhaustedError{msg: strings.Join(parts, "; "), errs: errs}
}

type exhaustedError struct {
	msg  string
	errs []error
}

func (e *exhaustedError) Error() string   { return "all strategies failed: " + e.msg }
func (e *exhaustedError) Unwrap() []error { return e.errs }

// Try runs strategies in order and stops at the first success.
func Try[T any](strategies ...Strategy[T]) Outcome[T] {
	var out Outcome[T]
	for _, s := range strategies {
		if s.Run == nil {
			continue
		}
		v, err := s.Run()
		if err != nil {
			out.Failures = append(out.Failures, Failure{Strategy: s.Name, Err: err})
			continue
		}
		out.Value = v
		out.Strategy = s.Name
		return out
	}
	return out
}
