package order

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusPaymentFailed Status = "PAYMENT_FAILED"
	StatusConfirmed     Status = "CONFIRMED"
	StatusShipping      Status = "SHIPPING"
	StatusDelivered     Status = "DELIVERED"
	StatusCancelled     Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusPaymentFailed, StatusCancelled},
	StatusConfirmed: {StatusShipping, StatusCancelled},
	StatusShipping:  {StatusDelivered},
}

// CanTransition reports whether an order in s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaymentFailed, StatusConfirmed,
		StatusShipping, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}
