package model

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindDecode
	KindModelLoad
	KindShape
	KindInference
)

func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "decode failure"
	case KindModelLoad:
		return "model load failure"
	case KindShape:
		return "shape mismatch"
	case KindInference:
		return "inference failure"
	default:
		return "unknown failure"
	}
}

// Sentinels for errors.Is. A *PipelineError matches the sentinel of its kind.
var (
	ErrDecode    = errors.New(KindDecode.String())
	ErrModelLoad = errors.New(KindModelLoad.String())
	ErrShape     = errors.New(KindShape.String())
	ErrInference = errors.New(KindInference.String())
)

func (k Kind) sentinel() error {
	switch k {
	case KindDecode:
		return ErrDecode
	case KindModelLoad:
		return ErrModelLoad
	case KindShape:
		return ErrShape
	case KindInference:
		return ErrInference
	default:
		return nil
	}
}

// PipelineError is the single error type returned across the pipeline
// boundary.
type PipelineError struct {
	Kind Kind
	Err  error
}

// NewError wraps err with kind. An error that already carries a kind is
// returned unchanged.
func NewError(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return err
	}
	return &PipelineError{Kind: kind, Err: err}
}

// Errorf formats a message and wraps it with kind.
func Errorf(kind Kind, format string, args ...any) error {
	return &PipelineError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func (e *PipelineError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}
