package contextutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceID(t *testing.T) {
	assert.Equal(t, "unknown-trace-id", TraceIDFromContext(context.Background()))

	ctx := WithTraceID(context.Background(), "abc")
	assert.Equal(t, "abc", TraceIDFromContext(ctx))

	generated := TraceIDFromContext(WithTraceID(context.Background(), ""))
	assert.Len(t, generated, 36)
}

func TestOwnerID(t *testing.T) {
	_, ok := OwnerIDFromContext(context.Background())
	assert.False(t, ok)

	owner, ok := OwnerIDFromContext(WithOwnerID(context.Background(), "owner-1"))
	assert.True(t, ok)
	assert.Equal(t, "owner-1", owner)
}
