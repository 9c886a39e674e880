package store

import (
	"context"
	"fmt"
)

// Get returns the group labelled key, or ErrNotFound.
func Get(ctx context.Context, stor Interface, key string) (Entry, error) {
	single, err := stor.Get(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	if !single.Found {
		return Entry{}, fmt.Errorf("%w: group %q", ErrNotFound, key)
	}
	return single.Entry, nil
}

// Lookup returns the values labelled key, or ErrNotFound.
func Lookup(ctx context.Context, stor Interface, key string) ([]int64, error) {
	entry, err := Get(ctx, stor, key)
	return entry.Values, err
}

// KeyOf returns the key of the group containing value, or ErrNotFound.
func KeyOf(ctx context.Context, stor Interface, value int64) (string, error) {
	single, err := stor.Owner(ctx, value)
	if err != nil {
		return "", err
	}
	if !single.Found {
		return "", fmt.Errorf("%w: value %d", ErrNotFound, value)
	}
	return single.Key, nil
}
