package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/queueease/internal/model"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{model.StatusWaiting, model.StatusInProgress, true},
		{model.StatusWaiting, model.StatusCanceled, true},
		{model.StatusWaiting, model.StatusCompleted, true},
		{model.StatusInProgress, model.StatusCompleted, true},
		{model.StatusInProgress, model.StatusCanceled, true},
		{model.StatusInProgress, model.StatusWaiting, false},
		{model.StatusWaiting, model.StatusWaiting, false},
		{model.StatusInProgress, model.StatusInProgress, false},
		{model.StatusCompleted, model.StatusWaiting, false},
		{model.StatusCompleted, model.StatusCanceled, false},
		{model.StatusCanceled, model.StatusInProgress, false},
		{model.StatusCanceled, model.StatusCompleted, false},
		{"", model.StatusWaiting, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusForAction(t *testing.T) {
	s, ok := StatusForAction(ActionPrioritize)
	assert.True(t, ok)
	assert.Equal(t, model.StatusInProgress, s)

	s, ok = StatusForAction(ActionComplete)
	assert.True(t, ok)
	assert.Equal(t, model.StatusCompleted, s)

	s, ok = StatusForAction(ActionCancel)
	assert.True(t, ok)
	assert.Equal(t, model.StatusCanceled, s)

	_, ok = StatusForAction("delete")
	assert.False(t, ok)
}
