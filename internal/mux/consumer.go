package mux

// Consumer receives either a connection error or one ordered batch of messages.
// Returning true removes the consumer.
type Consumer interface {
	Consume(err error, msgs []string) bool
}

// ConsumerFunc adapts a plain function to Consumer.
type ConsumerFunc func(err error, msgs []string) bool

func (f ConsumerFunc) Consume(err error, msgs []string) bool {
	return f(err, msgs)
}

// ConsumerID identifies one registration.
type ConsumerID uint64

type entry struct {
	id       ConsumerID
	consumer Consumer
	removed  bool
}
