package repositories

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a StoreError.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindConflict
	KindUnavailable
)

// StoreError implements RepositoryError for backends without a native error taxonomy.
type StoreError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

// NewStoreError builds a StoreError. A nil err is replaced with a message derived from kind.
func NewStoreError(op string, kind ErrorKind, err error) *StoreError {
	if err == nil {
		switch kind {
		case KindNotFound:
			err = errors.New("not found")
		case KindConflict:
			err = errors.New("conflict")
		case KindUnavailable:
			err = errors.New("unavailable")
		default:
			err = errors.New("unknown error")
		}
	}
	return &StoreError{Op: op, Kind: kind, Err: err}
}

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StoreError) IsNotFound() bool    { return e != nil && e.Kind == KindNotFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.Kind == KindConflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Kind == KindUnavailable }

// IsNotFound reports whether err is a RepositoryError signalling a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a RepositoryError signalling a failed precondition.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err is a RepositoryError signalling a transient outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
