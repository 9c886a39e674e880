package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	labelledset "github.com/PeaPodTechnologies/LabelledSet"
	"github.com/PeaPodTechnologies/LabelledSet/feed"
	"github.com/PeaPodTechnologies/LabelledSet/messaging"
)

func publish(ctx context.Context, factory messaging.SessionFactory, args []string) error {
	msg, err := parsePublishArgs(args, Overwrite)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	publisher := feed.NewPublisher(factory, Address)
	defer publisher.Close(ctx)
	if err := publisher.Send(ctx, msg); err != nil {
		return err
	}
	slog.Debug("message sent", slog.String("address", Address), slog.Any("message", msg))
	return nil
}

func parsePublishArgs(args []string, overwrite bool) (feed.Encoder, error) {
	if len(args) == 0 {
		return nil, errors.New("publish expects a message type: assign, remove or drop")
	}
	switch kind, rest := args[0], args[1:]; kind {
	case "assign":
		if len(rest) < 1 {
			return nil, errors.New("assign expects a key followed by values")
		}
		values, err := parseValues(rest[1:])
		if err != nil {
			return nil, err
		}
		return labelledset.AssignMessage{Key: rest[0], Overwrite: overwrite, Values: values}, nil
	case "remove":
		values, err := parseValues(rest)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			return nil, errors.New("remove expects at least one value")
		}
		return labelledset.RemoveMessage{Values: values}, nil
	case "drop":
		if len(rest) != 1 {
			return nil, errors.New("drop expects exactly one key")
		}
		return labelledset.DropMessage{Key: rest[0]}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", kind)
	}
}

func parseValues(args []string) ([]int64, error) {
	values := make([]int64, 0, len(args))
	for _, arg := range args {
		v, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", arg, err)
		}
		values = append(values, v)
	}
	return values, nil
}
