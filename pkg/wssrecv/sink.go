package wssrecv

import "context"

// Sink receives the message once it has been read from the connection.
type Sink interface {
	Emit(ctx context.Context, msg Message) error
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(ctx context.Context, msg Message) error

func (f SinkFunc) Emit(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Monitor is notified of every state transition a Connector makes.
// err is non-nil only for transitions into StateFailed.
type Monitor interface {
	OnStateChange(ctx context.Context, from, to State, err error)
}

// MonitorFunc adapts a plain function to the Monitor interface.
type MonitorFunc func(ctx context.Context, from, to State, err error)

func (f MonitorFunc) OnStateChange(ctx context.Context, from, to State, err error) {
	f(ctx, from, to, err)
}
