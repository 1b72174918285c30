package alertgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineld/sentineld/pkg/models"
)

func TestTransition_ValidPath(t *testing.T) {
	got, err := Transition(models.AlertStatusNew, models.AlertStatusAcknowledged)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAcknowledged, got)

	got, err = Transition(models.AlertStatusAcknowledged, models.AlertStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusInProgress, got)

	got, err = Transition(models.AlertStatusInProgress, models.AlertStatusClosed)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusClosed, got)
}

func TestTransition_RejectsReopeningClosed(t *testing.T) {
	_, err := Transition(models.AlertStatusClosed, models.AlertStatusNew)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransition_RejectsSkippingToInProgress(t *testing.T) {
	_, err := Transition(models.AlertStatusNew, models.AlertStatusInProgress)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestIsOpen(t *testing.T) {
	assert.True(t, isOpen(models.AlertStatusNew))
	assert.True(t, isOpen(models.AlertStatusAcknowledged))
	assert.False(t, isOpen(models.AlertStatusClosed))
	assert.False(t, isOpen(models.AlertStatusResolved))
}
