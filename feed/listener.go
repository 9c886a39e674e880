// Package feed moves labelledset wire messages over AMQP. A Listener
// receives and decodes messages from addresses and hands them to registered
// handlers. A Publisher encodes and sends them.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/Azure/go-amqp"
	labelledset "github.com/PeaPodTechnologies/LabelledSet"
	"github.com/PeaPodTechnologies/LabelledSet/messaging"
	"github.com/cenkalti/backoff/v4"
)

var logger = slog.With("logger", "labelledset.feed")

type AssignHandler func(labelledset.AssignMessage)
type RemoveHandler func(labelledset.RemoveMessage)
type DropHandler func(labelledset.DropMessage)

// MessageHandler receives every decoded message along with the address it
// arrived on.
type MessageHandler func(ctx context.Context, address string, msg interface{})

type ListenerOptions struct {
	// NewBackOff creates the reconnect strategy for each listen loop.
	// Defaults to an unbounded exponential backoff.
	NewBackOff func() backoff.BackOff
	// Credit is the receiver link credit. Defaults to messaging.DefaultCredit.
	Credit int32
}

// Listener receives labelledset messages.
//
// Handlers registered before a call to Listen are used for that address;
// handlers registered later only apply to subsequent Listen calls.
type Listener struct {
	factory messaging.SessionFactory
	opts    ListenerOptions

	lock           sync.Mutex
	cleanup        []func()
	assignHandlers []AssignHandler
	removeHandlers []RemoveHandler
	dropHandlers   []DropHandler
	msgHandlers    []MessageHandler

	wg sync.WaitGroup
}

func NewListener(factory messaging.SessionFactory, opts ListenerOptions) *Listener {
	if opts.NewBackOff == nil {
		opts.NewBackOff = defaultBackOff
	}
	if opts.Credit <= 0 {
		opts.Credit = messaging.DefaultCredit
	}
	return &Listener{
		factory: factory,
		opts:    opts,
	}
}

func (l *Listener) OnAssign(handler AssignHandler) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.assignHandlers = append(l.assignHandlers, handler)
}

func (l *Listener) OnRemove(handler RemoveHandler) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.removeHandlers = append(l.removeHandlers, handler)
}

func (l *Listener) OnDrop(handler DropHandler) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.dropHandlers = append(l.dropHandlers, handler)
}

// OnMessage registers a handler called with every decoded message.
func (l *Listener) OnMessage(handler MessageHandler) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.msgHandlers = append(l.msgHandlers, handler)
}

// Listen starts receiving from address until the context is cancelled or
// Close is called. Connection failures are retried.
func (l *Listener) Listen(ctx context.Context, address string) error {
	if address == "" {
		return errors.New("listen address must not be empty")
	}
	listenerCtx, listenerCancel := context.WithCancel(ctx)

	l.lock.Lock()
	defer l.lock.Unlock()
	l.cleanup = append(l.cleanup, listenerCancel)
	h := handlers{
		assign: append([]AssignHandler(nil), l.assignHandlers...),
		remove: append([]RemoveHandler(nil), l.removeHandlers...),
		drop:   append([]DropHandler(nil), l.dropHandlers...),
		msg:    append([]MessageHandler(nil), l.msgHandlers...),
	}

	l.wg.Add(1)
	go func(ctx context.Context) {
		defer l.wg.Done()
		msgs := l.listen(ctx, address)
		for {
			select {
			case <-ctx.Done():
				return
			case amqpMsg, ok := <-msgs:
				if !ok {
					return
				}
				decoded, err := labelledset.Decode(amqpMsg)
				if err != nil {
					logger.Error("could not decode message. skipping", slog.Any("error", err), slog.String("address", address))
					continue
				}
				h.handle(ctx, address, decoded)
			}
		}
	}(listenerCtx)
	return nil
}

// Close stops all listeners and waits for them to exit.
func (l *Listener) Close() {
	l.lock.Lock()
	for _, cancel := range l.cleanup {
		cancel()
	}
	l.cleanup = nil
	l.lock.Unlock()
	l.wg.Wait()
}

type handlers struct {
	assign []AssignHandler
	remove []RemoveHandler
	drop   []DropHandler
	msg    []MessageHandler
}

func (h handlers) handle(ctx context.Context, address string, decoded interface{}) {
	switch message := decoded.(type) {
	case labelledset.AssignMessage:
		for _, handler := range h.assign {
			handler(message)
		}
	case labelledset.RemoveMessage:
		for _, handler := range h.remove {
			handler(message)
		}
	case labelledset.DropMessage:
		for _, handler := range h.drop {
			handler(message)
		}
	}
	for _, handler := range h.msg {
		handler(ctx, address, decoded)
	}
}

func (l *Listener) listen(ctx context.Context, address string) <-chan *amqp.Message {
	msgs := make(chan *amqp.Message, 32)
	go func() {
		defer close(msgs)
		b := backoff.WithContext(l.opts.NewBackOff(), ctx)
		backoff.Retry(func() error {
			err := l.receive(ctx, address, b, msgs)
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			logger.Error("tearing down connection due to error", slog.Any("error", err), slog.String("address", address))
			return err
		}, b)
	}()
	return msgs
}

func (l *Listener) receive(ctx context.Context, address string, b backoff.BackOff, out chan<- *amqp.Message) error {
	sess, err := l.factory.Create(ctx)
	if err != nil {
		return fmt.Errorf("could not establish connection: %w", err)
	}
	defer sess.Close(context.Background())

	recv, err := sess.Receiver(ctx, address, &amqp.ReceiverOptions{Credit: l.opts.Credit})
	if err != nil {
		return fmt.Errorf("could not start receiver: %w", err)
	}
	defer recv.Close(context.Background())
	logger.Debug("receiver started", slog.String("address", address))
	for {
		msg, err := recv.Receive(ctx, nil)
		if err != nil {
			return fmt.Errorf("error receiving message: %w", err)
		}
		if err := recv.AcceptMessage(ctx, msg); err != nil {
			return fmt.Errorf("error accepting message: %w", err)
		}
		b.Reset()
		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond * 250
	b.MaxInterval = time.Second * 30
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
