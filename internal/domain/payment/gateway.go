package payment

import "context"

// Gateway submits an online payment for asynchronous processing and returns
// the gateway reference. The outcome arrives later as a GatewayResultEvent.
type Gateway interface {
	Submit(ctx context.Context, p *Payment) (string, error)
}
