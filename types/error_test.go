package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai")

	assert.Equal(t, ErrUpstreamError, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, root)
	assert.NotEmpty(t, err.Error())
}

func TestError_WrappedLookup(t *testing.T) {
	t.Parallel()

	inner := NewServiceUnavailableError("passage store unreachable", errors.New("dial tcp"))
	wrapped := fmt.Errorf("search: %w", inner)

	assert.True(t, IsErrorCode(wrapped, ErrServiceUnavailable))
	assert.True(t, IsRetryable(wrapped))

	e, ok := AsError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, 503, e.HTTPStatus)

	assert.False(t, IsErrorCode(errors.New("plain"), ErrServiceUnavailable))
	assert.Equal(t, ErrorCode(""), GetErrorCode(nil))
}
