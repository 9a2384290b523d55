// Package eventbus publishes analysis lifecycle events to in-process subscribers.
package eventbus

// Publisher is what producers depend on.
type Publisher interface {
	PublishAsync(topic string, args ...interface{})
}

// Subscriber is what consumers depend on.
type Subscriber interface {
	Subscribe(topic string, fn interface{}) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishAsync(string, ...interface{}) {}

var (
	_ Publisher  = (*AsyncEventBus)(nil)
	_ Subscriber = (*AsyncEventBus)(nil)
	_ Publisher  = Nop{}
)
