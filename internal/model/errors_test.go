package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthErrorMatchesByKind(t *testing.T) {
	err := fmt.Errorf("validate: %w", &AuthError{Kind: AuthExpired})

	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.NotErrorIs(t, err, ErrSessionInvalid)

	var authErr *AuthError
	assert.True(t, errors.As(err, &authErr))
	assert.Equal(t, AuthExpired, authErr.Kind)
}

func TestValidationErrorMatching(t *testing.T) {
	err := OutOfRange("nickname", "must be between 2 and 64 characters")

	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.NotErrorIs(t, err, ErrMalformed)
	assert.ErrorIs(t, err, &ValidationError{Kind: ValidationOutOfRange, Field: "nickname"})
	assert.NotErrorIs(t, err, &ValidationError{Kind: ValidationOutOfRange, Field: "message"})
	assert.Equal(t, "nickname: must be between 2 and 64 characters", err.Error())
}

func TestNotFoundWrapping(t *testing.T) {
	assert.ErrorIs(t, ErrCollectibleNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrSessionNotFound, ErrNotFound)
	assert.NotErrorIs(t, ErrUserNotFound, ErrSessionNotFound)
}

func TestPositionDistance(t *testing.T) {
	assert.InDelta(t, 5.0, Position{X: 0, Y: 0}.DistanceTo(Position{X: 3, Y: 4}), 1e-9)
}
