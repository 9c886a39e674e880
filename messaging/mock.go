package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/Azure/go-amqp"
)

var (
	errConnectionClosed = errors.New("connection closed")
	errSenderClosed     = errors.New("sender closed")
)

// MockSessionFactory creates sessions on an in-memory broker. Messages are
// sent multicast and buffered for every open receiver on the address.
type MockSessionFactory struct {
	Broker *MockBroker
}

func NewMockSessionFactory() *MockSessionFactory {
	return &MockSessionFactory{Broker: NewMockBroker()}
}

func (f *MockSessionFactory) Create(context.Context) (Session, error) {
	return &mockSession{broker: f.Broker, done: make(chan struct{})}, nil
}

type MockBroker struct {
	mu     sync.Mutex
	topics map[string]*multicast
}

func NewMockBroker() *MockBroker {
	return &MockBroker{
		topics: map[string]*multicast{},
	}
}

// AwaitReceivers blocks until address has at least n open receivers or ctx
// is done.
func (b *MockBroker) AwaitReceivers(ctx context.Context, address string, n int) error {
	topic := b.get(address)
	for n > topic.count() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return nil
}

func (b *MockBroker) get(address string) *multicast {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[address]
	if !ok {
		t = &multicast{}
		b.topics[address] = t
	}
	return t
}

type multicast struct {
	mu        sync.Mutex
	receivers []*mockReceiver
}

func (m *multicast) send(msg *amqp.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.receivers {
		r.deliver(msg)
	}
}

func (m *multicast) subscribe(r *mockReceiver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receivers = append(m.receivers, r)
}

func (m *multicast) unsubscribe(r *mockReceiver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rr := range m.receivers {
		if rr == r {
			m.receivers = append(m.receivers[:i], m.receivers[i+1:]...)
			return
		}
	}
}

func (m *multicast) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.receivers)
}

type mockSession struct {
	broker    *MockBroker
	closeOnce sync.Once
	done      chan struct{}
}

func (c *mockSession) Sender(_ context.Context, address string, _ *amqp.SenderOptions) (Sender, error) {
	return &mockSender{address: address, session: c, done: make(chan struct{})}, nil
}

func (c *mockSession) Receiver(_ context.Context, address string, opts *amqp.ReceiverOptions) (Receiver, error) {
	if opts == nil {
		opts = defaultReceiverOptions
	}
	topic := c.broker.get(address)
	r := &mockReceiver{
		session: c,
		topic:   topic,
		channel: make(chan *amqp.Message, opts.Credit),
		done:    make(chan struct{}),
	}
	topic.subscribe(r)
	return r, nil
}

func (c *mockSession) Close(context.Context) error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

type mockSender struct {
	session   *mockSession
	address   string
	closeOnce sync.Once
	done      chan struct{}
}

func (s *mockSender) Send(ctx context.Context, msg *amqp.Message, _ *amqp.SendOptions) error {
	select {
	case <-s.done:
		return errSenderClosed
	case <-s.session.done:
		return errConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.session.broker.get(s.address).send(msg)
		return nil
	}
}

func (s *mockSender) Close(context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

type mockReceiver struct {
	session   *mockSession
	topic     *multicast
	channel   chan *amqp.Message
	closeOnce sync.Once
	done      chan struct{}
}

func (r *mockReceiver) deliver(msg *amqp.Message) {
	select {
	case <-r.done:
	case r.channel <- msg:
	}
}

func (r *mockReceiver) AcceptMessage(context.Context, *amqp.Message) error {
	return nil
}

func (r *mockReceiver) Receive(ctx context.Context, _ *amqp.ReceiveOptions) (*amqp.Message, error) {
	select {
	case msg := <-r.channel:
		return msg, nil
	case <-r.done:
		return nil, errConnectionClosed
	case <-r.session.done:
		return nil, errConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *mockReceiver) Close(context.Context) error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.topic.unsubscribe(r)
	})
	return nil
}
