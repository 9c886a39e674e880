package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp/cmpopts"
	"gotest.tools/assert"
)

func TestAssignAndLookup(t *testing.T) {
	ctx := context.TODO()
	cache := NewDefaultCachingStore(CacheConfig{})
	source := SourceRef{Type: "test", Name: "testing"}

	entry, err := cache.Assign(ctx, Assignment{Source: source, Key: "pumps", Values: []int64{1, 2, 2}})
	assert.Check(t, err)
	assert.DeepEqual(t, entry, Entry{
		Meta:   Metadata{Source: source},
		Key:    "pumps",
		Values: []int64{1, 2},
	}, cmpopts.IgnoreFields(Metadata{}, "UpdatedAt"))

	single, err := cache.Get(ctx, "pumps")
	assert.Check(t, err)
	assert.Assert(t, single.Found)
	assert.Assert(t, len(single.ETag) > 10)

	single, err = cache.Get(ctx, "fans")
	assert.Check(t, err)
	assert.Assert(t, !single.Found)

	key, err := KeyOf(ctx, cache, 2)
	assert.Check(t, err)
	assert.Equal(t, key, "pumps")

	_, err = KeyOf(ctx, cache, 99)
	assert.Assert(t, errors.Is(err, ErrNotFound))

	values, err := Lookup(ctx, cache, "pumps")
	assert.Check(t, err)
	assert.DeepEqual(t, values, []int64{1, 2})

	_, err = Lookup(ctx, cache, "fans")
	assert.ErrorContains(t, err, `group "fans"`)
}

func TestAssignPolicies(t *testing.T) {
	ctx := context.TODO()
	testCases := []struct {
		Name      string
		Overwrite bool
		Expect    map[string][]int64
	}{
		{
			Name:      "merge skips owned values",
			Overwrite: false,
			Expect: map[string][]int64{
				"a": {1, 2},
				"b": {3, 4},
			},
		}, {
			Name:      "overwrite replaces and moves",
			Overwrite: true,
			Expect: map[string][]int64{
				"a": {1},
				"b": {2, 4},
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			cache := NewDefaultCachingStore(CacheConfig{})
			cache.Assign(ctx, Assignment{Key: "a", Values: []int64{1, 2}})
			cache.Assign(ctx, Assignment{Key: "b", Values: []int64{3}})

			_, err := cache.Assign(ctx, Assignment{Key: "b", Values: []int64{2, 4}, Overwrite: tc.Overwrite})
			assert.Check(t, err)

			set, err := cache.List(ctx, nil)
			assert.Check(t, err)
			actual := map[string][]int64{}
			for _, e := range set.Entries {
				actual[e.Key] = e.Values
			}
			assert.DeepEqual(t, actual, tc.Expect)
			assert.Check(t, cache.(Inspector).Check())
		})
	}
}

func TestRemoveAndDrop(t *testing.T) {
	ctx := context.TODO()
	cache := NewDefaultCachingStore(CacheConfig{})
	cache.Assign(ctx, Assignment{Key: "a", Values: []int64{1, 2, 3}})

	assert.Check(t, cache.Remove(ctx, 2, 42))
	values, err := Lookup(ctx, cache, "a")
	assert.Check(t, err)
	assert.DeepEqual(t, values, []int64{1, 3})

	assert.Check(t, cache.Remove(ctx, 1, 3))
	values, err = Lookup(ctx, cache, "a")
	assert.Check(t, err)
	assert.DeepEqual(t, values, []int64{})

	assert.Check(t, cache.Drop(ctx, "a"))
	err = cache.Drop(ctx, "a")
	assert.Assert(t, errors.Is(err, ErrNotFound))
	stats := cache.(Inspector).Stats()
	assert.Equal(t, stats.Groups, 0)
	assert.Equal(t, stats.Values, 0)
}

func TestKeys(t *testing.T) {
	ctx := context.TODO()
	t.Run("verbatim", func(t *testing.T) {
		cache := NewDefaultCachingStore(CacheConfig{})
		cache.Assign(ctx, Assignment{Key: "Pump", Values: []int64{1}})
		single, err := cache.Get(ctx, "PUMP")
		assert.Check(t, err)
		assert.Assert(t, !single.Found)

		_, err = cache.Assign(ctx, Assignment{Key: "", Values: []int64{1}})
		assert.Assert(t, errors.Is(err, ErrInvalidKey))
	})
	t.Run("folded", func(t *testing.T) {
		cache := NewDefaultCachingStore(CacheConfig{FoldKeys: true})
		cache.Assign(ctx, Assignment{Key: "Pump", Values: []int64{1}})
		cache.Assign(ctx, Assignment{Key: "PUMP", Values: []int64{2}})
		single, err := cache.Get(ctx, "pUmP")
		assert.Check(t, err)
		assert.Assert(t, single.Found)
		assert.Equal(t, single.Key, "pump")
		assert.DeepEqual(t, single.Values, []int64{1, 2})
	})
	t.Run("custom", func(t *testing.T) {
		cache := NewDefaultCachingStore(CacheConfig{Key: func(key string) (string, error) {
			if !strings.HasPrefix(key, "dev/") {
				return "", fmt.Errorf("%w: %q lacks dev/ prefix", ErrInvalidKey, key)
			}
			return key, nil
		}})
		_, err := cache.Assign(ctx, Assignment{Key: "pump", Values: []int64{1}})
		assert.ErrorContains(t, err, "lacks dev/ prefix")
		_, err = cache.Assign(ctx, Assignment{Key: "dev/pump", Values: []int64{1}})
		assert.Check(t, err)
	})
}

func TestReplace(t *testing.T) {
	cache := NewDefaultCachingStore(CacheConfig{})
	source := SourceRef{Name: "testing"}

	entries := []Entry{
		{Meta: Metadata{Source: source}, Key: "1", Values: []int64{1, 2}},
		{Meta: Metadata{Source: source}, Key: "2", Values: []int64{}},
	}
	err := cache.Replace(context.TODO(), entries)
	assert.Check(t, err)
	all, err := cache.List(context.TODO(), &Selector{})
	assert.Check(t, err)
	assert.DeepEqual(t, all.Entries, entries)

	err = cache.Replace(context.TODO(), append(entries, Entry{Key: "1"}))
	assert.ErrorContains(t, err, `duplicate group "1"`)
}

func TestList(t *testing.T) {
	cache := NewDefaultCachingStore(CacheConfig{})
	source := SourceRef{Name: "testing"}

	entries := make([]Entry, 0, 100)
	for i := 0; i < 100; i++ {
		entries = append(entries, Entry{
			Meta:   Metadata{Source: source},
			Key:    fmt.Sprint(i),
			Values: []int64{int64(i)},
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return strings.Compare(entries[i].Key, entries[j].Key) < 0
	})

	err := cache.Replace(context.TODO(), entries)
	assert.Check(t, err)
	all, err := cache.List(context.TODO(), &Selector{})
	assert.Check(t, err)
	assert.DeepEqual(t, all.Entries, entries)

	var response Set
	var paged []Entry
	for more := true; more; more = (response.Continue != "") {
		response, err = cache.List(context.TODO(), &Selector{Limit: 12, Continue: response.Continue})
		assert.Check(t, err)
		paged = append(paged, response.Entries...)
		if response.Continue != "" {
			assert.Equal(t, len(response.Entries), 12)
		}
	}
	assert.Equal(t, len(all.Entries), len(paged))
	assert.DeepEqual(t, all.Entries, paged)

	desc, err := cache.List(context.TODO(), &Selector{Ordering: Descending, Limit: 1})
	assert.Check(t, err)
	assert.Equal(t, desc.Entries[0].Key, "99")

	_, err = cache.List(context.TODO(), &Selector{Continue: "not a token"})
	assert.ErrorContains(t, err, "invalid continue token")
}

func TestConditionalAssign(t *testing.T) {
	cache := NewDefaultCachingStore(CacheConfig{})
	ctx := context.Background()

	_, err := cache.Assign(ctx, Assignment{Key: "A", Values: []int64{1}})
	assert.Check(t, err)

	_, err = cache.Assign(WithIfNoneMatch(ctx), Assignment{Key: "A", Values: []int64{2}})
	assert.Assert(t, errors.Is(err, ErrExists))
	_, err = cache.Assign(WithIfNoneMatch(ctx), Assignment{Key: "B", Values: []int64{2}})
	assert.Check(t, err)

	resp, err := cache.Get(ctx, "A")
	assert.Check(t, err)

	ifMatchCtx := WithIfMatch(ctx, resp.ETag)
	_, err = cache.Assign(ifMatchCtx, Assignment{Key: "A", Values: []int64{3}})
	assert.Check(t, err)

	_, err = cache.Assign(ifMatchCtx, Assignment{Key: "A", Values: []int64{4}})
	assert.ErrorContains(t, err, "assign condition error")
	assert.Assert(t, errors.Is(err, ErrVersionMismatch))

	err = cache.Drop(ifMatchCtx, "A")
	assert.ErrorContains(t, err, "drop condition error")

	_, err = cache.Assign(WithIfMatch(ctx, "garbage"), Assignment{Key: "A", Values: []int64{4}})
	assert.ErrorContains(t, err, "invalid ETag")
}

func TestETagStaleAfterDrop(t *testing.T) {
	cache := NewDefaultCachingStore(CacheConfig{})
	ctx := context.Background()

	_, err := cache.Assign(ctx, Assignment{Key: "a", Values: []int64{1}})
	assert.Check(t, err)
	resp, err := cache.Get(ctx, "a")
	assert.Check(t, err)
	stale := resp.ETag

	assert.Check(t, cache.Drop(ctx, "a"))
	_, err = cache.Assign(ctx, Assignment{Key: "a", Values: []int64{99}})
	assert.Check(t, err)

	_, err = cache.Assign(WithIfMatch(ctx, stale), Assignment{Key: "a", Values: []int64{2}})
	assert.Assert(t, errors.Is(err, ErrVersionMismatch))
	err = cache.Drop(WithIfMatch(ctx, stale), "a")
	assert.Assert(t, errors.Is(err, ErrVersionMismatch))

	values, err := Lookup(ctx, cache, "a")
	assert.Check(t, err)
	assert.DeepEqual(t, values, []int64{99})

	resp, err = cache.Get(ctx, "a")
	assert.Check(t, err)
	_, err = cache.Assign(WithIfMatch(ctx, resp.ETag), Assignment{Key: "a", Values: []int64{2}})
	assert.Check(t, err)
}

type event struct {
	Kind string
	Prev Entry
	Curr Entry
}

func TestCacheEventHandlers(t *testing.T) {
	ctx := context.TODO()
	source := SourceRef{Type: "test", Name: "handlers"}
	testCases := []struct {
		Name         string
		InitialState []Entry
		Do           func(stor Interface)
		Expect       []event
	}{
		{
			Name: "Add Group",
			Do: func(stor Interface) {
				stor.Assign(ctx, Assignment{Source: source, Key: "a", Values: []int64{1}})
			},
			Expect: []event{
				{Kind: "add", Curr: Entry{Meta: Metadata{Source: source}, Key: "a", Values: []int64{1}}},
			},
		}, {
			Name:         "Re-Assign NOOP",
			InitialState: []Entry{{Key: "a", Values: []int64{1}}},
			Do: func(stor Interface) {
				stor.Assign(ctx, Assignment{Source: source, Key: "a", Values: []int64{1}})
			},
		}, {
			Name:         "Assign More",
			InitialState: []Entry{{Key: "a", Values: []int64{1}}},
			Do: func(stor Interface) {
				stor.Assign(ctx, Assignment{Source: source, Key: "a", Values: []int64{2}})
			},
			Expect: []event{
				{
					Kind: "change",
					Prev: Entry{Key: "a", Values: []int64{1}},
					Curr: Entry{Meta: Metadata{Source: source}, Key: "a", Values: []int64{1, 2}},
				},
			},
		}, {
			Name: "Move Value",
			InitialState: []Entry{
				{Key: "a", Values: []int64{1, 2}},
				{Key: "b", Values: []int64{3}},
			},
			Do: func(stor Interface) {
				stor.Assign(ctx, Assignment{Source: source, Key: "b", Values: []int64{2}, Overwrite: true})
			},
			Expect: []event{
				{
					Kind: "change",
					Prev: Entry{Key: "b", Values: []int64{3}},
					Curr: Entry{Meta: Metadata{Source: source}, Key: "b", Values: []int64{2}},
				}, {
					Kind: "change",
					Prev: Entry{Key: "a", Values: []int64{1, 2}},
					Curr: Entry{Key: "a", Values: []int64{1}},
				},
			},
		}, {
			Name:         "Remove Value",
			InitialState: []Entry{{Key: "a", Values: []int64{1, 2}}},
			Do: func(stor Interface) {
				stor.Remove(ctx, 1, 5)
			},
			Expect: []event{
				{
					Kind: "change",
					Prev: Entry{Key: "a", Values: []int64{1, 2}},
					Curr: Entry{Key: "a", Values: []int64{2}},
				},
			},
		}, {
			Name:         "Drop Group",
			InitialState: []Entry{{Key: "a", Values: []int64{1}}},
			Do: func(stor Interface) {
				stor.Drop(ctx, "a")
			},
			Expect: []event{
				{Kind: "delete", Prev: Entry{Key: "a", Values: []int64{1}}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			var events []event
			cache := NewDefaultCachingStore(CacheConfig{
				EventHandlers: EventHandlerFuncs{
					OnAdd: func(e Entry) {
						events = append(events, event{Kind: "add", Curr: e})
					},
					OnChange: func(prev, curr Entry) {
						events = append(events, event{Kind: "change", Prev: prev, Curr: curr})
					},
					OnDelete: func(e Entry) {
						events = append(events, event{Kind: "delete", Prev: e})
					},
				},
			})

			assert.Check(t, cache.Replace(ctx, tc.InitialState))
			tc.Do(cache)
			assert.DeepEqual(t, events, tc.Expect, cmpopts.IgnoreFields(Metadata{}, "UpdatedAt"), cmpopts.EquateEmpty())
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.TODO()
	cache := NewDefaultCachingStore(CacheConfig{})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			key := fmt.Sprintf("worker-%d", w%3)
			for i := 0; i < 200; i++ {
				value := int64(i % 50)
				switch i % 4 {
				case 0, 1:
					cache.Assign(ctx, Assignment{Key: key, Values: []int64{value}, Overwrite: i%8 == 0})
				case 2:
					cache.Remove(ctx, value)
				case 3:
					cache.Owner(ctx, value)
					cache.List(ctx, &Selector{Limit: 2})
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Check(t, cache.(Inspector).Check())
}
