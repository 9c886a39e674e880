package internal

import (
	"fmt"
	"slices"
	"sync"

	labelledset "github.com/PeaPodTechnologies/LabelledSet"
)

// Group is a point in time copy of a labelled set group.
type Group struct {
	Key    string
	Values []int64
}

type VersionContainer[M any] struct {
	Group   Group
	Meta    M
	Version int64
}

// Delta describes the change to one group. Prev is nil for new groups and
// Next is nil for deleted ones.
type Delta[M any] struct {
	Prev *VersionContainer[M]
	Next *VersionContainer[M]
}

type versioned[M any] struct {
	Meta    M
	Version int64
}

// SyncLabelledSet guards a LabelledSet with a lock and keeps a version and
// metadata for each of its groups.
//
// Versions of a key only ever increase, also across Drop and re-creation, so
// a version observed for one incarnation of a group never matches a later
// one.
type SyncLabelledSet[M any] struct {
	mu    sync.RWMutex
	set   *labelledset.LabelledSet[string, int64]
	cfg   labelledset.Config
	items map[string]versioned[M]
	// last version of dropped keys
	tombstones map[string]int64
}

func NewSyncLabelledSet[M any](cfg labelledset.Config) *SyncLabelledSet[M] {
	return &SyncLabelledSet[M]{
		set:        labelledset.New[string, int64](cfg),
		cfg:        cfg,
		items:      make(map[string]versioned[M]),
		tombstones: make(map[string]int64),
	}
}

// Assign adds values to the group labelled key using the collision policy of
// LabelledSet.AddSubSet. It returns a Delta for every group whose contents
// changed, the target group first.
func (m *SyncLabelledSet[M]) Assign(key string, values []int64, overwrite bool, meta M, cond ...Cond[M]) ([]Delta[M], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	curr, _ := m.get(key)
	for _, conditional := range cond {
		if err := conditional(curr); err != nil {
			return nil, fmt.Errorf("assign condition error: %w", err)
		}
	}

	touched := m.touched(key, values)
	prev := m.snapshot(touched)
	m.set.AddSubSet(key, values, overwrite)

	var deltas []Delta[M]
	for _, k := range touched {
		before, existed := prev[k]
		after, _ := m.get(k)
		if existed && slices.Equal(before.Group.Values, after.Group.Values) {
			continue
		}
		item := m.item(k)
		item.Version++
		if k == key {
			item.Meta = meta
		}
		m.items[k] = item
		delete(m.tombstones, k)
		after.Meta, after.Version = item.Meta, item.Version

		d := Delta[M]{Next: &after}
		if existed {
			d.Prev = &before
		}
		deltas = append(deltas, d)
	}
	return deltas, nil
}

// Remove takes values out of their groups. Groups are kept even when they
// become empty.
func (m *SyncLabelledSet[M]) Remove(values []int64) []Delta[M] {
	m.mu.Lock()
	defer m.mu.Unlock()
	touched := m.touched("", values)
	prev := m.snapshot(touched)
	for _, v := range values {
		m.set.Remove(v)
	}
	deltas := make([]Delta[M], 0, len(touched))
	for _, k := range touched {
		before := prev[k]
		after, _ := m.get(k)
		item := m.items[k]
		item.Version++
		m.items[k] = item
		after.Version = item.Version
		deltas = append(deltas, Delta[M]{Prev: &before, Next: &after})
	}
	return deltas
}

// Drop deletes the group labelled key and all of its values.
func (m *SyncLabelledSet[M]) Drop(key string, cond ...Cond[M]) (deleted VersionContainer[M], exists bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted, exists = m.get(key)
	for _, conditional := range cond {
		if err := conditional(deleted); err != nil {
			return deleted, exists, fmt.Errorf("drop condition error: %w", err)
		}
	}
	if exists {
		m.set.RemoveKey(key)
		delete(m.items, key)
		m.tombstones[key] = deleted.Version
	}
	return deleted, exists, nil
}

func (m *SyncLabelledSet[M]) Get(key string) (VersionContainer[M], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.get(key)
}

// Owner returns the group that value belongs to.
func (m *SyncLabelledSet[M]) Owner(value int64) (VersionContainer[M], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	group := m.set.Owner(value)
	if group == nil {
		return VersionContainer[M]{}, false
	}
	return m.get(group.Key())
}

func (m *SyncLabelledSet[M]) List() []VersionContainer[M] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]VersionContainer[M], 0, m.set.Len())
	m.set.Range(func(g labelledset.Group[string, int64]) bool {
		cc, _ := m.get(g.Key())
		list = append(list, cc)
		return true
	})
	return list
}

// Replace discards the current contents and loads groups in order. Versions
// of keys that survive the replacement are carried over and incremented.
func (m *SyncLabelledSet[M]) Replace(groups []VersionContainer[M]) error {
	seen := make(KeySet, len(groups))
	for _, g := range groups {
		if seen.Has(g.Group.Key) {
			return fmt.Errorf("duplicate group %q", g.Group.Key)
		}
		seen.Add(g.Group.Key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	set := labelledset.New[string, int64](m.cfg)
	items := make(map[string]versioned[M], len(groups))
	for _, g := range groups {
		set.AddSubSet(g.Group.Key, g.Group.Values, true)
		prev := m.item(g.Group.Key)
		items[g.Group.Key] = versioned[M]{Meta: g.Meta, Version: prev.Version + 1}
		delete(m.tombstones, g.Group.Key)
	}
	for k, item := range m.items {
		if !seen.Has(k) {
			m.tombstones[k] = item.Version
		}
	}
	m.set, m.items = set, items
	return nil
}

func (m *SyncLabelledSet[M]) Stats() labelledset.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.Stats()
}

func (m *SyncLabelledSet[M]) Check() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.set.Check(); err != nil {
		return err
	}
	if len(m.items) != m.set.Len() {
		return fmt.Errorf("%w: %d versioned groups but %d in set", labelledset.ErrInvariant, len(m.items), m.set.Len())
	}
	return nil
}

// item returns the version state of key, resuming from its tombstone when
// the key was dropped before.
func (m *SyncLabelledSet[M]) item(key string) versioned[M] {
	if item, ok := m.items[key]; ok {
		return item
	}
	return versioned[M]{Version: m.tombstones[key]}
}

func (m *SyncLabelledSet[M]) get(key string) (VersionContainer[M], bool) {
	group := m.set.Lookup(key)
	if group == nil {
		return VersionContainer[M]{}, false
	}
	item := m.items[key]
	return VersionContainer[M]{
		Group:   Group{Key: key, Values: group.Values()},
		Meta:    item.Meta,
		Version: item.Version,
	}, true
}

// touched lists key (when not empty) followed by the distinct current owners
// of values.
func (m *SyncLabelledSet[M]) touched(key string, values []int64) []string {
	keys := make(KeySet)
	var out []string
	if key != "" {
		keys.Add(key)
		out = append(out, key)
	}
	for _, v := range values {
		owner := m.set.Owner(v)
		if owner == nil || keys.Has(owner.Key()) {
			continue
		}
		keys.Add(owner.Key())
		out = append(out, owner.Key())
	}
	return out
}

func (m *SyncLabelledSet[M]) snapshot(keys []string) map[string]VersionContainer[M] {
	out := make(map[string]VersionContainer[M], len(keys))
	for _, k := range keys {
		if cc, ok := m.get(k); ok {
			out[k] = cc
		}
	}
	return out
}
