package errors_test

import (
	"fmt"
	"testing"

	"codeberg.org/mutker/powergov/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	f := errors.New()

	assert.Equal(t, "Unknown profile", f.New(errors.ErrUnknownProfile).Error())
	assert.Equal(t, "Unknown profile: turbo", f.WithData(errors.ErrUnknownProfile, "turbo").Error())
	assert.Equal(t, "custom", f.WithMessage(errors.ErrInternal, "custom").Error())

	wrapped := f.Wrap(errors.ErrPersistState, fmt.Errorf("disk full"))
	assert.Equal(t, "Failed to persist governor state: disk full", wrapped.Error())
}

func TestHasCode(t *testing.T) {
	f := errors.New()
	inner := f.New(errors.ErrResourceBusy)
	outer := f.Wrap(errors.ErrOperationFailed, inner)

	assert.True(t, errors.HasCode(outer, errors.ErrOperationFailed))
	assert.True(t, errors.HasCode(outer, errors.ErrResourceBusy))
	assert.True(t, errors.HasCode(fmt.Errorf("context: %w", inner), errors.ErrResourceBusy))
	assert.False(t, errors.HasCode(outer, errors.ErrTimeout))
	assert.False(t, errors.HasCode(nil, errors.ErrTimeout))
}
