package iop

import "github.com/pkg/errors"

var (
	// ErrParse is wrapped by every error returned while decoding a program
	// package. A package that fails to decode is never partially usable.
	ErrParse = errors.New("malformed program package")

	// ErrSizeMismatch is wrapped by every error caused by a buffer whose
	// length disagrees with the size expected by a tensor layout. It is
	// always raised before any byte is read or written.
	ErrSizeMismatch = errors.New("buffer size mismatch")
)
