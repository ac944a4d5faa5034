package rpc

import (
	"context"
	"errors"
)

// Duplex serves registered handlers and calls remote subjects over one
// transport.
type Duplex struct {
	*Broker
	*Caller
}

func NewDuplex(t Transport, opts ...OptionsFunc) *Duplex {
	b := NewBroker(t, opts...)
	return &Duplex{
		Broker: b,
		Caller: NewCaller(t, SetCallerLogger(b.logger)),
	}
}

// Start connects the transport, starts the reply subscription and, when any
// handler is registered, the delivery loop.
func (d *Duplex) Start(ctx context.Context) (*Task, error) {
	if err := d.Broker.Connect(ctx); err != nil {
		return nil, err
	}
	if err := d.Caller.Start(ctx); err != nil {
		return nil, err
	}
	if len(d.Broker.Listeners()) == 0 {
		return nil, nil
	}
	return d.Broker.Run(ctx)
}

func (d *Duplex) Shutdown() error {
	return errors.Join(d.Caller.Shutdown(), d.Broker.Shutdown())
}
