package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	labelledset "github.com/PeaPodTechnologies/LabelledSet"
	"github.com/PeaPodTechnologies/LabelledSet/feed"
	"github.com/PeaPodTechnologies/LabelledSet/messaging"
)

func logOnly(ctx context.Context, factory messaging.SessionFactory, _ []string) error {
	outputstream := make(chan Message, 64)

	listener := feed.NewListener(factory, feed.ListenerOptions{})
	defer listener.Close()
	listener.OnMessage(func(ctx context.Context, address string, msg interface{}) {
		select {
		case outputstream <- toMessage(address, msg):
		case <-ctx.Done():
		}
	})
	slog.Debug("Starting to listen", slog.String("address", Address))
	if err := listener.Listen(ctx, Address); err != nil {
		return fmt.Errorf("error starting listener: %w", err)
	}
	writeMessages(ctx, os.Stdout, outputstream)
	return nil
}

func writeMessages(ctx context.Context, w io.Writer, messages <-chan Message) {
	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return
		case out, ok := <-messages:
			if !ok {
				return
			}
			if err := enc.Encode(out); err != nil {
				slog.Error("error writing output stream", "error", err, "obj", out)
			}
		}
	}
}

func toMessage(address string, msg interface{}) Message {
	out := Message{Address: address}
	switch m := msg.(type) {
	case labelledset.AssignMessage:
		out.To, out.Subject = m.To, m.Subject
		out.Key, out.Overwrite, out.Values = m.Key, m.Overwrite, m.Values
	case labelledset.RemoveMessage:
		out.To, out.Subject = m.To, m.Subject
		out.Values = m.Values
	case labelledset.DropMessage:
		out.To, out.Subject = m.To, m.Subject
		out.Key = m.Key
	default:
		out.Subject = fmt.Sprintf("%T", msg)
	}
	return out
}
