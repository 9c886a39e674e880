package labelledset

import (
	"errors"
	"fmt"
	"math"

	amqp "github.com/Azure/go-amqp"
)

const (
	SubjectAssign = "ASSIGN"
	SubjectRemove = "REMOVE"
	SubjectDrop   = "DROP"
)

// Decode an AMQP message into one of AssignMessage, RemoveMessage or
// DropMessage based on its subject.
func Decode(msg *amqp.Message) (interface{}, error) {
	if msg == nil || msg.Properties == nil || msg.Properties.Subject == nil {
		return nil, errors.New("cannot decode message with nil properties")
	}
	switch subject := *msg.Properties.Subject; subject {
	case SubjectAssign:
		return DecodeAssign(msg)
	case SubjectRemove:
		return DecodeRemove(msg)
	case SubjectDrop:
		return DecodeDrop(msg)
	default:
		return nil, fmt.Errorf("cannot decode message with subject %q", subject)
	}
}

type MessageProps struct {
	To      string
	Subject string
	ReplyTo string
}

func decodeProps(msg *amqp.Message) MessageProps {
	var p MessageProps
	if msg.Properties == nil {
		return p
	}
	if msg.Properties.To != nil {
		p.To = *msg.Properties.To
	}
	if msg.Properties.Subject != nil {
		p.Subject = *msg.Properties.Subject
	}
	if msg.Properties.ReplyTo != nil {
		p.ReplyTo = *msg.Properties.ReplyTo
	}
	return p
}

func (p MessageProps) encode(subject string) *amqp.MessageProperties {
	props := &amqp.MessageProperties{Subject: &subject}
	if p.To != "" {
		props.To = ptrTo(p.To)
	}
	if p.ReplyTo != "" {
		props.ReplyTo = ptrTo(p.ReplyTo)
	}
	return props
}

// AssignMessage adds Values to the group labelled Key. Overwrite carries the
// collision policy of LabelledSet.AddSubSet.
type AssignMessage struct {
	MessageProps
	Key       string
	Overwrite bool
	Values    []int64
}

func DecodeAssign(msg *amqp.Message) (m AssignMessage, err error) {
	m.MessageProps = decodeProps(msg)
	key, ok := msg.ApplicationProperties["key"].(string)
	if !ok || key == "" {
		return m, errors.New("assign message missing key")
	}
	m.Key = key
	if overwrite, ok := msg.ApplicationProperties["overwrite"].(bool); ok {
		m.Overwrite = overwrite
	}
	m.Values, err = decodeValues(msg.Value)
	return m, err
}

func (m AssignMessage) Encode() *amqp.Message {
	return &amqp.Message{
		Properties: m.MessageProps.encode(SubjectAssign),
		ApplicationProperties: map[string]interface{}{
			"key":       m.Key,
			"overwrite": m.Overwrite,
		},
		Value: encodeValues(m.Values),
	}
}

// RemoveMessage removes Values from whichever groups own them.
type RemoveMessage struct {
	MessageProps
	Values []int64
}

func DecodeRemove(msg *amqp.Message) (m RemoveMessage, err error) {
	m.MessageProps = decodeProps(msg)
	m.Values, err = decodeValues(msg.Value)
	return m, err
}

func (m RemoveMessage) Encode() *amqp.Message {
	return &amqp.Message{
		Properties: m.MessageProps.encode(SubjectRemove),
		Value:      encodeValues(m.Values),
	}
}

// DropMessage removes the group labelled Key and all of its values.
type DropMessage struct {
	MessageProps
	Key string
}

func DecodeDrop(msg *amqp.Message) (m DropMessage, err error) {
	m.MessageProps = decodeProps(msg)
	key, ok := msg.ApplicationProperties["key"].(string)
	if !ok || key == "" {
		return m, errors.New("drop message missing key")
	}
	m.Key = key
	return m, nil
}

func (m DropMessage) Encode() *amqp.Message {
	return &amqp.Message{
		Properties: m.MessageProps.encode(SubjectDrop),
		ApplicationProperties: map[string]interface{}{
			"key": m.Key,
		},
	}
}

func encodeValues(values []int64) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// decodeValues accepts the shapes an AMQP list or array of integers may take
// after decoding.
func decodeValues(raw interface{}) ([]int64, error) {
	switch values := raw.(type) {
	case nil:
		return nil, nil
	case []int64:
		return values, nil
	case []int32:
		out := make([]int64, len(values))
		for i, v := range values {
			out[i] = int64(v)
		}
		return out, nil
	case []uint64:
		out := make([]int64, len(values))
		for i, v := range values {
			n, err := toInt64(v)
			if err != nil {
				return nil, fmt.Errorf("value %d: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case []interface{}:
		out := make([]int64, len(values))
		for i, v := range values {
			n, err := toInt64(v)
			if err != nil {
				return nil, fmt.Errorf("value %d: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected type for message Value: %T", raw)
	}
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case uint:
		return toInt64(uint64(n))
	default:
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
}

func ptrTo[T any](direct T) *T {
	return &direct
}
