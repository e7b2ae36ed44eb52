package orders

import "github.com/ariefcatur/atee-topup/internal/model"

var validNext = map[model.OrderStatus]map[model.OrderStatus]bool{
	model.StatusPending: {
		model.StatusWaitingReview: true,
		model.StatusProcessing:    true,
		model.StatusPaid:          true,
		model.StatusSuccess:       true,
		model.StatusCancelled:     true,
	},
	model.StatusPaid:          {model.StatusSuccess: true, model.StatusWaitingReview: true, model.StatusCancelled: true},
	model.StatusWaitingReview: {model.StatusSuccess: true, model.StatusProcessing: true, model.StatusCancelled: true},
	model.StatusProcessing:    {model.StatusSuccess: true, model.StatusCancelled: true},
	model.StatusSuccess:       {},
	model.StatusCancelled:     {},
}

func CanTransition(from, to model.OrderStatus) bool {
	return validNext[from][to]
}

// CheckTransition allows staying on the same status so a note can be added.
func CheckTransition(orderID string, from, to model.OrderStatus) error {
	if !to.Valid() {
		return &TransitionError{OrderID: orderID, From: from, To: to}
	}
	if from == to || CanTransition(from, to) {
		return nil
	}
	return &TransitionError{OrderID: orderID, From: from, To: to}
}
