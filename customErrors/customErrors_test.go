package customErrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeSurvivesWrapping(t *testing.T) {
	base := New(ErrNotFound, "category %q not found", "groceries")
	wrapped := fmt.Errorf("failed to set assigned: %w", base)

	assert.True(t, HasCode(wrapped, ErrNotFound))
	assert.False(t, HasCode(wrapped, ErrConflict))
	assert.Equal(t, ErrNotFound, CodeOf(wrapped))
	assert.Equal(t, `code: NOT FOUND, message: category "groceries" not found`, base.Error())
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, ErrInternal, CodeOf(errors.New("boom")))
	assert.False(t, HasCode(nil, ErrInternal))
}
