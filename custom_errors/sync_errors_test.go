package custom_errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	contract := NewContract("no endpoint configured for table %q", "widgets")
	transient := NewTransient("gateway timeout", errors.New("context deadline exceeded"))
	storage := NewStorage("insert mutation", errors.New("connection reset"))

	assert.True(t, IsContract(contract))
	assert.False(t, IsRetryable(contract))
	assert.False(t, IsStorage(contract))

	assert.True(t, IsRetryable(transient))
	assert.False(t, IsContract(transient))

	assert.True(t, IsStorage(storage))
	assert.False(t, IsRetryable(storage))
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("drain pass: %w", NewTransient("push failed", nil))
	assert.True(t, IsRetryable(wrapped))

	doubly := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", NewContract("bad payload")))
	assert.True(t, IsContract(doubly))
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection refused")
	assert.ErrorIs(t, NewTransient("pushing mutation", cause), cause)
	assert.ErrorIs(t, NewStorage("claim", cause), cause)
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "contract error: unknown table", NewContract("unknown table").Error())
	assert.Equal(t, "transient error: server returned status 503", NewTransient("server returned status 503", nil).Error())
	assert.Contains(t, NewStorage("insert", errors.New("disk full")).Error(), "storage error in insert")
}

func TestPlainErrorsMatchNothing(t *testing.T) {
	plain := errors.New("something broke")
	assert.False(t, IsContract(plain))
	assert.False(t, IsRetryable(plain))
	assert.False(t, IsStorage(plain))
}
