package frameutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uint32 | ~uint64
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// kindError carries an error kind so that both errors.Is implementations find it: the cockroachdb
// mark is matched by cerrors.Is, the Is method by the standard library.
type kindError struct {
	cause error
	kind  error
}

func (e *kindError) Error() string { return e.cause.Error() }
func (e *kindError) Unwrap() error { return e.cause }

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func withKind(err error, kind error) error {
	return &kindError{cause: cerrors.Mark(err, kind), kind: kind}
}

// Wrap returns err marked with kind, annotated with the formatted message. It returns nil if err is nil.
func Wrap(err error, kind error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return withKind(cerrors.Wrapf(err, format, args...), kind)
}

// Newf creates a new error with the formatted message, marked with kind
func Newf(kind error, format string, args ...any) error {
	return withKind(cerrors.Newf(format, args...), kind)
}
