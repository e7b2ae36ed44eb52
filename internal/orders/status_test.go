package orders

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/ariefcatur/atee-topup/internal/model"
)

var allStatuses = []model.OrderStatus{
	model.StatusPending,
	model.StatusWaitingReview,
	model.StatusProcessing,
	model.StatusPaid,
	model.StatusSuccess,
	model.StatusCancelled,
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to model.OrderStatus
		ok       bool
	}{
		{model.StatusPending, model.StatusPaid, true},
		{model.StatusPending, model.StatusSuccess, true},
		{model.StatusPaid, model.StatusWaitingReview, true},
		{model.StatusPaid, model.StatusProcessing, false},
		{model.StatusWaitingReview, model.StatusProcessing, true},
		{model.StatusWaitingReview, model.StatusPaid, false},
		{model.StatusProcessing, model.StatusSuccess, true},
		{model.StatusProcessing, model.StatusPending, false},
		{model.StatusSuccess, model.StatusCancelled, false},
		{model.StatusCancelled, model.StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCheckTransition(t *testing.T) {
	assert.NoError(t, CheckTransition("AT-1", model.StatusSuccess, model.StatusSuccess), "same status re-applied for notes")

	err := CheckTransition("AT-1", model.StatusSuccess, model.StatusPending)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	var terr *TransitionError
	assert.True(t, errors.As(err, &terr))
	assert.Equal(t, model.StatusSuccess, terr.From)

	assert.ErrorIs(t, CheckTransition("AT-1", model.StatusPending, "SHIPPED"), ErrIllegalTransition)
}

// No status is reachable from a terminal one, and nothing leads back to PENDING.
func TestTerminalStatusProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		from := rapid.SampledFrom(allStatuses).Draw(t, "from")
		to := rapid.SampledFrom(allStatuses).Draw(t, "to")

		if from.Terminal() && CanTransition(from, to) {
			t.Fatalf("terminal %s must not move to %s", from, to)
		}
		if to == model.StatusPending && CanTransition(from, to) {
			t.Fatalf("%s must not return to PENDING", from)
		}
	})
}
