package labelledset

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"

	"github.com/PeaPodTechnologies/LabelledSet/internal/bst"
	"github.com/PeaPodTechnologies/LabelledSet/internal/hashtable"
)

var logger = slog.With("logger", "labelledset")

var ErrInvariant = errors.New("labelled set invariant violated")

type Config struct {
	// Buckets is the fixed bucket count of the key table. Defaults to 16.
	Buckets int
	// HashMultiplier is the constant of the key table's polynomial string
	// hash. Defaults to 31.
	HashMultiplier uint32
	Logger         *slog.Logger
}

// LabelledSet groups unique values under keys. Every value belongs to at
// most one group, and groups can be resolved either by key or by any of
// their values.
//
// A LabelledSet is not safe for concurrent use.
type LabelledSet[K ~string, V cmp.Ordered] struct {
	subsets *hashtable.Table[K, *SubSet[K, V]]
	owners  *bst.Tree[V, *SubSet[K, V]]
	logger  *slog.Logger
}

func New[K ~string, V cmp.Ordered](cfg Config) *LabelledSet[K, V] {
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	return &LabelledSet[K, V]{
		subsets: hashtable.New[K, *SubSet[K, V]](hashtable.Config{
			Buckets:    cfg.Buckets,
			Multiplier: cfg.HashMultiplier,
		}),
		owners: bst.New[V, *SubSet[K, V]](),
		logger: cfg.Logger,
	}
}

// Add puts value in the group labelled key and returns the group that owns
// value afterwards.
//
// overwrite selects the collision policy for both the key and the value:
//   - without overwrite, a value that already has an owner (key's group or
//     another) stays where it is and its owner is returned untouched;
//     otherwise value is appended to key's group.
//   - with overwrite, an existing group for key is emptied first, dropping
//     all of its values, and value is moved into it from any other group.
//     The result is always a group holding only value.
//
// See Upsert and ReplaceGroup for the two common policies under clearer
// names.
func (l *LabelledSet[K, V]) Add(key K, value V, overwrite bool) Group[K, V] {
	if owner, ok := l.owners.Find(value); ok && !overwrite {
		return owner
	}
	group := l.resolve(key, overwrite)
	l.insert(group, value, overwrite)
	return group
}

// AddSubSet resolves the group for key with the same policy as Add, then adds
// each of values to it. Values owned by other groups are skipped unless
// overwrite is set, in which case they are moved.
func (l *LabelledSet[K, V]) AddSubSet(key K, values []V, overwrite bool) Group[K, V] {
	group := l.resolve(key, overwrite)
	for _, v := range values {
		l.insert(group, v, overwrite)
	}
	return group
}

// Upsert adds value to key's group, creating the group if needed. It never
// drops values from an existing group and never takes a value away from
// another group.
func (l *LabelledSet[K, V]) Upsert(key K, value V) Group[K, V] {
	return l.Add(key, value, false)
}

// ReplaceGroup makes values the entire contents of the group labelled key.
// Values currently owned by other groups are moved.
func (l *LabelledSet[K, V]) ReplaceGroup(key K, values ...V) Group[K, V] {
	return l.AddSubSet(key, values, true)
}

// Remove deletes value from its group. The group stays reachable by key even
// when it becomes empty.
func (l *LabelledSet[K, V]) Remove(value V) bool {
	owner, ok := l.owners.Find(value)
	if !ok {
		return false
	}
	owner.Remove(value)
	l.owners.Remove(value)
	return true
}

// RemoveKey destroys the group labelled key along with all of its values.
func (l *LabelledSet[K, V]) RemoveKey(key K) bool {
	entry := l.subsets.Get(key)
	if entry == nil {
		return false
	}
	l.release(entry.Value)
	return l.subsets.Remove(key)
}

// Lookup returns the group labelled key, or nil.
func (l *LabelledSet[K, V]) Lookup(key K) Group[K, V] {
	entry := l.subsets.Get(key)
	if entry == nil {
		return nil
	}
	return entry.Value
}

// Owner returns the group containing value, or nil.
func (l *LabelledSet[K, V]) Owner(value V) Group[K, V] {
	owner, ok := l.owners.Find(value)
	if !ok {
		return nil
	}
	return owner
}

// Len is the number of groups, including empty ones.
func (l *LabelledSet[K, V]) Len() int {
	return l.subsets.Len()
}

// Size is the number of values across all groups.
func (l *LabelledSet[K, V]) Size() int {
	return l.owners.Len()
}

// Range calls fn for each group until fn returns false. The visiting order is
// unspecified. fn must not modify the set.
func (l *LabelledSet[K, V]) Range(fn func(Group[K, V]) bool) {
	l.subsets.Range(func(e *hashtable.Entry[K, *SubSet[K, V]]) bool {
		return fn(e.Value)
	})
}

type Stats struct {
	Groups       int
	Values       int
	Buckets      int
	LongestChain int
	TreeHeight   int
}

func (l *LabelledSet[K, V]) Stats() Stats {
	ts := l.subsets.Stats()
	return Stats{
		Groups:       ts.Entries,
		Values:       l.owners.Len(),
		Buckets:      ts.Buckets,
		LongestChain: ts.LongestChain,
		TreeHeight:   l.owners.Height(),
	}
}

// Check verifies that every value resolves to exactly the group holding it
// and that every group is reachable by its key.
func (l *LabelledSet[K, V]) Check() error {
	var err error
	var members int
	l.subsets.Range(func(e *hashtable.Entry[K, *SubSet[K, V]]) bool {
		group := e.Value
		if group.key != e.Key {
			err = fmt.Errorf("%w: group %q stored under key %q", ErrInvariant, group.key, e.Key)
			return false
		}
		for _, v := range group.values {
			owner, ok := l.owners.Find(v)
			if !ok || owner != group {
				err = fmt.Errorf("%w: value %v of group %q does not resolve to it", ErrInvariant, v, group.key)
				return false
			}
		}
		members += len(group.values)
		return true
	})
	if err != nil {
		return err
	}
	if members != l.owners.Len() {
		return fmt.Errorf("%w: %d grouped values but %d indexed", ErrInvariant, members, l.owners.Len())
	}
	return nil
}

func (l *LabelledSet[K, V]) resolve(key K, overwrite bool) *SubSet[K, V] {
	if entry := l.subsets.Get(key); entry != nil {
		group := entry.Value
		if overwrite && group.Len() > 0 {
			l.logger.Debug("overwriting group", "key", key, "dropped", group.Len())
			l.release(group)
			group.Reset(key)
		}
		return group
	}
	entry, _ := l.subsets.Set(key, NewSubSet[K, V](key), false)
	return entry.Value
}

func (l *LabelledSet[K, V]) insert(group *SubSet[K, V], value V, overwrite bool) bool {
	if owner, ok := l.owners.Find(value); ok {
		if owner == group || !overwrite {
			return false
		}
		l.logger.Debug("moving value", "value", value, "from", owner.key, "to", group.key)
		owner.Remove(value)
	}
	group.Add(value)
	l.owners.Insert(value, group)
	return true
}

// release unregisters all of group's values from the value index.
func (l *LabelledSet[K, V]) release(group *SubSet[K, V]) {
	for _, v := range group.values {
		l.owners.Remove(v)
	}
}
