// Package custom_errors carries the error types the agent dispatches on:
// collected configuration failures and the sync outcome taxonomy.
package custom_errors

import (
	"errors"
	"fmt"
)

// ValidationError accumulates the failures of a batch of configuration
// options, so the caller sees every bad option at once instead of fixing them
// one restart at a time.
type ValidationError struct {
	Errors []error `json:"errors"`
}

func (v *ValidationError) Add(err error) {
	v.Errors = append(v.Errors, err)
}

func (v *ValidationError) HasError() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", errors.Join(v.Errors...))
}
