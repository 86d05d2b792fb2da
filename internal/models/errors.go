package models

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Every error returned by the conversion pipeline matches exactly
// one of these with errors.Is.
var (
	ErrFileNotFound = errors.New("file not found")
	ErrParse        = errors.New("parse error")
	ErrCompute      = errors.New("compute error")
	ErrWrite        = errors.New("write error")
)

// WrapKind annotates err with a message and marks it with kind. Both kind and
// err stay reachable through errors.Is and errors.As.
func WrapKind(kind, err error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), kind, err)
}
