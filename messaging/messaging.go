// Package messaging is the AMQP transport used to carry labelled set
// mutations between publishers and the stores that apply them. Connections
// are made through a SessionFactory; tests and tools without a router use
// the in-memory MockSessionFactory instead.
package messaging

import (
	"context"
	"crypto/tls"
	"fmt"

	amqp "github.com/Azure/go-amqp"
)

// SessionFactory opens a connection and session to the configured AMQP
// server. Every call yields a new, independently closable Session.
type SessionFactory interface {
	Create(context.Context) (Session, error)
}

type Session interface {
	Sender(ctx context.Context, address string, opts *amqp.SenderOptions) (Sender, error)
	Receiver(ctx context.Context, address string, opts *amqp.ReceiverOptions) (Receiver, error)
	Close(context.Context) error
}

type Sender interface {
	Send(context.Context, *amqp.Message, *amqp.SendOptions) error
	Close(context.Context) error
}

type Receiver interface {
	Receive(context.Context, *amqp.ReceiveOptions) (*amqp.Message, error)
	AcceptMessage(context.Context, *amqp.Message) error
	Close(context.Context) error
}

type Config struct {
	Conn *amqp.ConnOptions
	// TLSConfig, when set, is used for amqps connections and enables SASL
	// EXTERNAL authentication.
	TLSConfig *tls.Config
}

const DefaultCredit = 256

var (
	defaultReceiverOptions = &amqp.ReceiverOptions{
		Credit: DefaultCredit,
	}
)

// NewSessionFactory returns a factory dialing address, an amqp:// or
// amqps:// URL. Receivers opened without options get DefaultCredit.
func NewSessionFactory(address string, config Config) SessionFactory {
	var conn amqp.ConnOptions
	if config.Conn != nil {
		conn = *config.Conn
	}
	if conn.MaxFrameSize == 0 {
		conn.MaxFrameSize = 1<<32 - 1
	}
	if config.TLSConfig != nil {
		conn.TLSConfig = config.TLSConfig
		conn.SASLType = amqp.SASLTypeExternal("")
	}
	config.Conn = &conn
	return factory{address: address, Config: config}
}

type factory struct {
	Config  Config
	address string
}

func (f factory) Create(ctx context.Context) (Session, error) {
	conn, err := amqp.Dial(ctx, f.address, f.Config.Conn)
	if err != nil {
		return nil, fmt.Errorf("dial error for %s: %s", f.address, err)
	}
	s, err := conn.NewSession(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("session create error for %s: %s", f.address, err)
	}
	return &session{
		conn:    conn,
		session: s,
	}, nil
}

type session struct {
	conn    *amqp.Conn
	session *amqp.Session
}

func (c *session) Close(ctx context.Context) error {
	if err := c.session.Close(ctx); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}

func (c *session) Sender(ctx context.Context, address string, opts *amqp.SenderOptions) (Sender, error) {
	return c.session.NewSender(ctx, address, opts)
}

func (c *session) Receiver(ctx context.Context, address string, opts *amqp.ReceiverOptions) (Receiver, error) {
	if opts == nil {
		opts = defaultReceiverOptions
	}
	return c.session.NewReceiver(ctx, address, opts)
}
