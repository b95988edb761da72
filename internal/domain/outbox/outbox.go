package outbox

import "context"

// AllEvents subscribes a handler to every published event.
const AllEvents = "*"

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
}

// Keyed events name the aggregate they belong to; relays use it as the
// partition key.
type Keyed interface {
	AggregateID() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Publisher publishes events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
