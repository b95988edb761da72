package order

// OrderState implements the state pattern for order lifecycle transitions.
type OrderState interface {
	Status() Status
	OnPaymentSucceeded(o *Order) (OrderState, error)
	OnPaymentFailed(o *Order, reason string) (OrderState, error)
	OnCancel(o *Order, reason string, refunded bool) (OrderState, error)
	OnShip(o *Order) (OrderState, error)
	OnDeliver(o *Order) (OrderState, error)
}

func stateFor(s Status) OrderState {
	switch s {
	case StatusPaid:
		return paidState{}
	case StatusShipped:
		return shippedState{}
	case StatusDelivered:
		return deliveredState{}
	case StatusCancelled:
		return cancelledState{}
	default:
		return pendingState{}
	}
}

// rejectAll answers every event with an illegal transition; states embed it
// and override what they accept.
type rejectAll struct{}

func (rejectAll) OnPaymentSucceeded(o *Order) (OrderState, error) {
	return nil, o.illegal("record payment success")
}

func (rejectAll) OnPaymentFailed(o *Order, _ string) (OrderState, error) {
	return nil, o.illegal("record payment failure")
}

func (rejectAll) OnCancel(o *Order, _ string, _ bool) (OrderState, error) {
	return nil, o.illegal("cancel")
}

func (rejectAll) OnShip(o *Order) (OrderState, error) {
	return nil, o.illegal("ship")
}

func (rejectAll) OnDeliver(o *Order) (OrderState, error) {
	return nil, o.illegal("deliver")
}

type pendingState struct{ rejectAll }

func (pendingState) Status() Status { return StatusPending }

func (pendingState) OnPaymentSucceeded(o *Order) (OrderState, error) {
	if o.IsCOD() {
		return nil, o.illegal("record online payment for cash on delivery")
	}
	o.PaymentStatus = PaymentPaid
	return paidState{}, nil
}

func (pendingState) OnPaymentFailed(o *Order, reason string) (OrderState, error) {
	o.PaymentStatus = PaymentFailed
	o.markCancelled(reason)
	return cancelledState{}, nil
}

func (pendingState) OnCancel(o *Order, reason string, refunded bool) (OrderState, error) {
	o.PaymentStatus = PaymentFailed
	if refunded {
		o.PaymentStatus = PaymentRefunded
	}
	o.markCancelled(reason)
	return cancelledState{}, nil
}

// Only cash-on-delivery orders ship before they are paid.
func (pendingState) OnShip(o *Order) (OrderState, error) {
	if !o.IsCOD() {
		return nil, o.illegal("ship")
	}
	return shippedState{}, nil
}

type paidState struct{ rejectAll }

func (paidState) Status() Status { return StatusPaid }

func (paidState) OnCancel(o *Order, reason string, _ bool) (OrderState, error) {
	o.PaymentStatus = PaymentRefunded
	o.markCancelled(reason)
	return cancelledState{}, nil
}

func (paidState) OnShip(*Order) (OrderState, error) {
	return shippedState{}, nil
}

type shippedState struct{ rejectAll }

func (shippedState) Status() Status { return StatusShipped }

func (shippedState) OnDeliver(o *Order) (OrderState, error) {
	if o.IsCOD() {
		o.PaymentStatus = PaymentPaid
	}
	return deliveredState{}, nil
}

type deliveredState struct{ rejectAll }

func (deliveredState) Status() Status { return StatusDelivered }

type cancelledState struct{ rejectAll }

func (cancelledState) Status() Status { return StatusCancelled }
