package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithKind(t *testing.T) {
	cause := errors.New("boom")
	err := WithKind(ErrModelInvocation, cause)

	assert.ErrorIs(t, err, ErrModelInvocation)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrResponseContract)
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
	assert.Contains(t, err.Error(), "boom")
}

func TestAppErrorSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("process message: %w", WithKind(ErrResponseParse, errors.New("bad json")))

	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, ErrResponseParse, appErr.Kind)
	assert.Equal(t, ErrResponseParse, KindOf(err))
}

func TestFieldError(t *testing.T) {
	err := Field(ErrResponseContract, "confidence", "required field is missing")

	field, ok := FieldOf(err)
	require.True(t, ok)
	assert.Equal(t, "confidence", field)
	assert.ErrorIs(t, err, ErrResponseContract)
	assert.Contains(t, err.Error(), `"confidence"`)

	_, ok = FieldOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestFromContext(t *testing.T) {
	t.Run("deadline becomes timeout", func(t *testing.T) {
		err := FromContext(ErrKnowledgeRetrieval, fmt.Errorf("embed: %w", context.DeadlineExceeded))
		assert.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, ErrTimeout, KindOf(err))
	})

	t.Run("other errors keep the kind", func(t *testing.T) {
		err := FromContext(ErrKnowledgeRetrieval, errors.New("quota"))
		assert.Equal(t, ErrKnowledgeRetrieval, KindOf(err))
		assert.NotErrorIs(t, err, ErrTimeout)
	})

	t.Run("already classified errors pass through", func(t *testing.T) {
		orig := WithKind(ErrResponseParse, errors.New("x"))
		assert.Same(t, orig, FromContext(ErrModelInvocation, orig))
	})

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, FromContext(ErrModelInvocation, nil))
	})
}

func TestWrapRedis(t *testing.T) {
	assert.NoError(t, WrapRedis(nil))

	var appErr *AppError
	require.ErrorAs(t, WrapRedis(redis.Nil), &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.ErrorIs(t, appErr, ErrStore)

	require.ErrorAs(t, WrapRedis(errors.New("conn reset")), &appErr)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
}
