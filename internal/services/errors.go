package services

import (
	"errors"
	"fmt"
)

var (
	// ErrQuickOrderInvalidInput indicates the caller supplied malformed input.
	ErrQuickOrderInvalidInput = errors.New("quick order: invalid input")
	// ErrQuickOrderDisabled indicates the merchant switched quick order off.
	ErrQuickOrderDisabled = errors.New("quick order: disabled")
	// ErrQuickOrderUnavailable indicates a required dependency is not configured.
	ErrQuickOrderUnavailable = errors.New("quick order: unavailable")
	// ErrQuickOrderValidation indicates the cart failed pre-commit validation.
	ErrQuickOrderValidation = errors.New("quick order: validation failed")
	// ErrQuickOrderProvider indicates a rate, rule, registry or catalog lookup failed.
	ErrQuickOrderProvider = errors.New("quick order: provider failure")
	// ErrQuickOrderCommit indicates order persistence failed.
	ErrQuickOrderCommit = errors.New("quick order: commit failed")
	// ErrQuickOrderPostCommit indicates a post-commit adjustment failed.
	ErrQuickOrderPostCommit = errors.New("quick order: post-commit adjustment failed")
)

// ErrorKind classifies pipeline failures by how they propagate.
type ErrorKind string

const (
	// ErrorKindValidation blocks commit and is shown to the caller verbatim.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindProvider is always mapped to a documented fallback value.
	ErrorKindProvider ErrorKind = "provider"
	// ErrorKindCommit is surfaced wrapped with the original cause.
	ErrorKindCommit ErrorKind = "commit"
	// ErrorKindPostCommit is logged and never surfaced.
	ErrorKindPostCommit ErrorKind = "post_commit"
)

// PipelineError is the typed failure returned by pipeline stages.
type PipelineError struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface. Validation messages are returned verbatim.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Kind == ErrorKindValidation && e.Message != "":
		return e.Message
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

// Unwrap exposes the underlying cause.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *PipelineError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case ErrorKindValidation:
		return target == ErrQuickOrderValidation
	case ErrorKindProvider:
		return target == ErrQuickOrderProvider
	case ErrorKindCommit:
		return target == ErrQuickOrderCommit
	case ErrorKindPostCommit:
		return target == ErrQuickOrderPostCommit
	}
	return false
}

func validationError(op, message string) *PipelineError {
	return &PipelineError{Kind: ErrorKindValidation, Op: op, Message: message}
}

func providerError(op string, err error) *PipelineError {
	return &PipelineError{Kind: ErrorKindProvider, Op: op, Err: err}
}

func commitError(op string, err error) *PipelineError {
	return &PipelineError{Kind: ErrorKindCommit, Op: op, Message: unableToCreateOrder, Err: err}
}

// preCommitError surfaces a non-validation failure raised before commit.
func preCommitError(op string, err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) && pe != nil && pe.Kind == ErrorKindValidation {
		return pe
	}
	return &PipelineError{Kind: ErrorKindProvider, Op: op, Message: unableToCreateOrder, Err: err}
}

const unableToCreateOrder = "unable to create order"

func postCommitError(op string, err error) *PipelineError {
	return &PipelineError{Kind: ErrorKindPostCommit, Op: op, Err: err}
}

// KindOf reports the pipeline error kind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) && pe != nil {
		return pe.Kind, true
	}
	return "", false
}
