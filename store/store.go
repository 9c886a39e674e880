// store contains an interface for sharing a labelled set of device groups
// between goroutines, as well as an in memory implementation that guards a
// labelledset.LabelledSet with a lock.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PeaPodTechnologies/LabelledSet/store/internal"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidKey = errors.New("invalid key")

	// ErrVersionMismatch is returned by conditional operations when the
	// group changed since its ETag was issued.
	ErrVersionMismatch = internal.ErrVersionMismatch
	// ErrExists is returned by Assign under WithIfNoneMatch when the group
	// already exists.
	ErrExists = internal.ErrResourceExists
)

// Metadata about a Entry
type Metadata struct {
	// Source of the last assignment to the group
	Source SourceRef
	// UpdatedAt last time the group was updated
	UpdatedAt time.Time
}

// SourceRef describes where a change came from, e.g. an AMQP address or an
// HTTP client.
type SourceRef struct {
	Type string
	Name string
}

func (ref SourceRef) String() string {
	return fmt.Sprintf("%s.%s", ref.Type, ref.Name)
}

// Entry is the unit of storage in the store: one group of the labelled set.
type Entry struct {
	Meta   Metadata
	Key    string
	Values []int64
}

// Single wraps an Entry with additional store context
type Single struct {
	Entry

	Found bool
	ETag  string
}

// Set wraps a collection of Entries with additional store context
type Set struct {
	Entries []Entry

	Continue string
}

type Selector struct {
	Offset   int
	Limit    int
	Continue string

	Ordering Ordering
}

type Ordering int

const (
	Ascending  Ordering = 0
	Descending Ordering = 1
)

// Assignment puts Values into the group labelled Key. Overwrite selects the
// collision policy: when set the group is emptied first and values owned by
// other groups are moved; otherwise values are appended and values owned
// elsewhere are skipped.
type Assignment struct {
	Source    SourceRef
	Key       string
	Values    []int64
	Overwrite bool
}

// Interface (externally store.Interface) descibes the methods for interracting
// with a store
type Interface interface {
	// Get the group labelled key
	Get(ctx context.Context, key string) (Single, error)
	// Owner gets the group containing value
	Owner(ctx context.Context, value int64) (Single, error)

	Assign(ctx context.Context, a Assignment) (Entry, error)
	Remove(ctx context.Context, values ...int64) error
	Drop(ctx context.Context, key string) error

	List(ctx context.Context, opts *Selector) (Set, error)
	Replace(ctx context.Context, entries []Entry) error
}
