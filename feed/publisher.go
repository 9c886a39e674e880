package feed

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/Azure/go-amqp"
	"github.com/PeaPodTechnologies/LabelledSet/messaging"
)

// Encoder is implemented by the labelledset wire message types.
type Encoder interface {
	Encode() *amqp.Message
}

// Publisher sends labelledset messages to a single address. The underlying
// session is created lazily and replaced after a send error.
type Publisher struct {
	factory messaging.SessionFactory
	address string

	mu     sync.Mutex
	sess   messaging.Session
	sender messaging.Sender
}

func NewPublisher(factory messaging.SessionFactory, address string) *Publisher {
	return &Publisher{
		factory: factory,
		address: address,
	}
}

func (p *Publisher) Address() string {
	return p.address
}

// Send encodes and sends msg. When the message does not set a To address
// the publisher's address is used.
func (p *Publisher) Send(ctx context.Context, msg Encoder) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sender, err := p.ensureSender(ctx)
	if err != nil {
		return err
	}
	out := msg.Encode()
	if out.Properties == nil {
		out.Properties = &amqp.MessageProperties{}
	}
	if out.Properties.To == nil || *out.Properties.To == "" {
		to := p.address
		out.Properties.To = &to
	}
	if err := sender.Send(ctx, out, nil); err != nil {
		p.reset(ctx)
		return fmt.Errorf("failed to send message to %s: %w", p.address, err)
	}
	return nil
}

// Close releases the publisher's session. A closed Publisher reconnects on
// the next Send.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reset(ctx)
}

func (p *Publisher) ensureSender(ctx context.Context) (messaging.Sender, error) {
	if p.sender != nil {
		return p.sender, nil
	}
	sess, err := p.factory.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not establish connection: %w", err)
	}
	sender, err := sess.Sender(ctx, p.address, nil)
	if err != nil {
		sess.Close(ctx)
		return nil, fmt.Errorf("could not start sender: %w", err)
	}
	p.sess, p.sender = sess, sender
	return sender, nil
}

func (p *Publisher) reset(ctx context.Context) error {
	if p.sess == nil {
		return nil
	}
	p.sender.Close(ctx)
	err := p.sess.Close(ctx)
	p.sess, p.sender = nil, nil
	return err
}
