// Package hashtable implements a fixed-bucket, separately chained hash table
// keyed by strings. Entries are never relocated once created, so callers may
// hold on to an *Entry for as long as its key stays in the table.
package hashtable

const (
	DefaultBuckets    = 16
	DefaultMultiplier = 31
)

type Entry[K ~string, V any] struct {
	Key   K
	Value V

	next *Entry[K, V]
}

type Config struct {
	// Buckets is the fixed number of chains. Defaults to DefaultBuckets.
	Buckets int
	// Multiplier is the polynomial hash constant. Defaults to
	// DefaultMultiplier.
	Multiplier uint32
}

type Table[K ~string, V any] struct {
	buckets []*Entry[K, V]
	mult    uint32
	count   int
}

func New[K ~string, V any](cfg Config) *Table[K, V] {
	if cfg.Buckets <= 0 {
		cfg.Buckets = DefaultBuckets
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = DefaultMultiplier
	}
	return &Table[K, V]{
		buckets: make([]*Entry[K, V], cfg.Buckets),
		mult:    cfg.Multiplier,
	}
}

func (t *Table[K, V]) hash(key K) int {
	var h uint32
	for i := 0; i < len(key); i++ {
		h = h*t.mult + uint32(key[i])
	}
	return int(h % uint32(len(t.buckets)))
}

// Set puts key in the table. When the key is absent a new entry is appended
// to its chain and created is true. When present, the stored value is
// replaced in place only if overwrite is set.
func (t *Table[K, V]) Set(key K, value V, overwrite bool) (entry *Entry[K, V], created bool) {
	i := t.hash(key)
	var last *Entry[K, V]
	for e := t.buckets[i]; e != nil; e = e.next {
		if e.Key == key {
			if overwrite {
				e.Value = value
			}
			return e, false
		}
		last = e
	}
	entry = &Entry[K, V]{Key: key, Value: value}
	if last == nil {
		t.buckets[i] = entry
	} else {
		last.next = entry
	}
	t.count++
	return entry, true
}

// Get returns the entry for key or nil.
func (t *Table[K, V]) Get(key K) *Entry[K, V] {
	for e := t.buckets[t.hash(key)]; e != nil; e = e.next {
		if e.Key == key {
			return e
		}
	}
	return nil
}

// Remove unlinks the entry for key. Other chains are untouched.
func (t *Table[K, V]) Remove(key K) bool {
	i := t.hash(key)
	var prev *Entry[K, V]
	for e := t.buckets[i]; e != nil; e = e.next {
		if e.Key != key {
			prev = e
			continue
		}
		if prev == nil {
			t.buckets[i] = e.next
		} else {
			prev.next = e.next
		}
		e.next = nil
		t.count--
		return true
	}
	return false
}

func (t *Table[K, V]) Len() int {
	return t.count
}

// Range calls fn for every entry in bucket order until fn returns false.
// The table must not be modified during the walk.
func (t *Table[K, V]) Range(fn func(*Entry[K, V]) bool) {
	for _, head := range t.buckets {
		for e := head; e != nil; e = e.next {
			if !fn(e) {
				return
			}
		}
	}
}

type Stats struct {
	Entries      int
	Buckets      int
	UsedBuckets  int
	LongestChain int
}

func (t *Table[K, V]) Stats() Stats {
	s := Stats{Entries: t.count, Buckets: len(t.buckets)}
	for _, head := range t.buckets {
		var n int
		for e := head; e != nil; e = e.next {
			n++
		}
		if n > 0 {
			s.UsedBuckets++
		}
		if n > s.LongestChain {
			s.LongestChain = n
		}
	}
	return s
}
