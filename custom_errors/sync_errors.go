package custom_errors

import (
	"errors"
	"fmt"
)

// ContractError marks a client/server contract mismatch (unknown table,
// malformed payload). Never retried automatically; needs a code or data fix.
type ContractError struct {
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("contract error: %s", e.Reason)
}

// TransientError marks a failure worth retrying under backoff: timeouts,
// refused connections, 5xx responses.
type TransientError struct {
	Reason string
	Cause  error
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transient error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("transient error: %s", e.Reason)
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// StorageError marks local queue storage failing mid-operation. Fatal to the
// enqueue or drain in progress; always surfaced, never swallowed, because a
// dropped mutation is a correctness violation.
type StorageError struct {
	Op    string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error in %s: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

func NewContract(format string, args ...any) error {
	return &ContractError{Reason: fmt.Sprintf(format, args...)}
}

func NewTransient(reason string, cause error) error {
	return &TransientError{Reason: reason, Cause: cause}
}

func NewStorage(op string, cause error) error {
	return &StorageError{Op: op, Cause: cause}
}

func IsContract(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}

func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
