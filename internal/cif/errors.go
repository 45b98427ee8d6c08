package cif

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is matched by every validation failure: mismatched
// shapes, negative or inconsistent lengths, non-positive thresholds.
var ErrInvalidArgument = errors.New("invalid_argument")

type invalidArgumentError struct {
	msg string
}

func (e invalidArgumentError) Error() string {
	return e.msg
}

func (e invalidArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// InvalidArgument returns an error wrapping ErrInvalidArgument.
func InvalidArgument(format string, args ...any) error {
	return invalidArgumentError{msg: fmt.Sprintf(format, args...)}
}
