package errutil

import "errors"

// Domain error constructors for the kinds named in the core's error handling
// design: transient storage failures the caller may retry, fatal schema
// errors, rejected parameters, the margin guardrail, and partial commits
// that need operator repair.

func TransientStorage(msg string, err error, options ...Option) error {
	opts := append([]Option{WithErr(err)}, options...)
	return New(StatusTransientStorage, msg, opts...)
}

func SchemaErr(msg string, err error, options ...Option) error {
	opts := append([]Option{WithErr(err)}, options...)
	return New(StatusSchemaError, msg, opts...)
}

func Validation(msg string, err error, options ...Option) error {
	opts := append([]Option{WithErr(err)}, options...)
	return New(StatusValidationFailed, msg, opts...)
}

func MarginGuardrail(msg string, options ...Option) error {
	return New(StatusMarginGuardrail, msg, options...)
}

func PartialCommit(msg string, err error, options ...Option) error {
	opts := append([]Option{WithErr(err)}, options...)
	return New(StatusPartialCommit, msg, opts...)
}

// IsTransientStorage reports whether err (or a wrapped BaseError within it)
// carries the transient-storage status, letting operator entrypoints retry.
func IsTransientStorage(err error) bool {
	var be BaseError
	if errors.As(err, &be) {
		return be.Code == StatusTransientStorage
	}
	return false
}
