package store

import (
	"context"
	"fmt"
	"log/slog"

	labelledset "github.com/PeaPodTechnologies/LabelledSet"
)

var logger = slog.With("logger", "labelledset.store")

// DispatchRegistry routes the wire messages received from each source to the
// store registered for that source's address. Sources without a registered
// store use the fallback store, if any.
type DispatchRegistry struct {
	reg      map[string]Interface
	fallback Interface
}

// RegisterStore makes Dispatchers created for address apply their messages
// to stor. An empty address registers the fallback store.
func (d *DispatchRegistry) RegisterStore(address string, stor Interface) {
	if address == "" {
		d.fallback = stor
		return
	}
	if d.reg == nil {
		d.reg = make(map[string]Interface)
	}
	d.reg[address] = stor
}

// NewDispatcher creates a new dispatcher for that source
func (d DispatchRegistry) NewDispatcher(source SourceRef) Dispatcher {
	stor, ok := d.reg[source.Name]
	if !ok {
		stor = d.fallback
	}
	return Dispatcher{
		source: source,
		stor:   stor,
	}
}

// Dispatcher applies decoded labelledset messages from one source to a
// store.
type Dispatcher struct {
	source SourceRef
	stor   Interface
}

// Dispatch applies one decoded message. Errors are logged and do not stop
// the caller's receive loop.
func (d Dispatcher) Dispatch(ctx context.Context, msg interface{}) {
	if d.stor == nil {
		logger.Debug("dispatcher not configured with store for source", "source", d.source)
		return
	}
	if err := d.apply(ctx, msg); err != nil {
		logger.Error("dispatcher encountered error handling message", "source", d.source, "message", msg, "error", err)
	}
}

func (d Dispatcher) apply(ctx context.Context, msg interface{}) error {
	switch m := msg.(type) {
	case labelledset.AssignMessage:
		_, err := d.stor.Assign(ctx, Assignment{
			Source:    d.source,
			Key:       m.Key,
			Values:    m.Values,
			Overwrite: m.Overwrite,
		})
		return err
	case labelledset.RemoveMessage:
		return d.stor.Remove(ctx, m.Values...)
	case labelledset.DropMessage:
		return d.stor.Drop(ctx, m.Key)
	default:
		return fmt.Errorf("unexpected message type %T", msg)
	}
}
