package model

type OrderStatus string

const (
	StatusPending       OrderStatus = "PENDING"
	StatusWaitingReview OrderStatus = "WAITING_REVIEW"
	StatusProcessing    OrderStatus = "PROCESSING"
	StatusPaid          OrderStatus = "PAID"
	StatusSuccess       OrderStatus = "SUCCESS"
	StatusCancelled     OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusWaitingReview, StatusProcessing, StatusPaid, StatusSuccess, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusCancelled
}
