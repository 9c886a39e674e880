package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	labelledset "github.com/PeaPodTechnologies/LabelledSet"
	"github.com/PeaPodTechnologies/LabelledSet/store/internal"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// KeyFunc normalizes a group key before it reaches the labelled set. It
// returns an error for keys that may not be stored.
type KeyFunc func(key string) (string, error)

type objectCache struct {
	storage *internal.SyncLabelledSet[Metadata]

	keyFunc KeyFunc

	eventHandlers EventHandlerFuncs
}

type CacheConfig struct {
	Key KeyFunc
	// FoldKeys makes keys case-insensitive when Key is not set.
	FoldKeys bool
	// Set configures the underlying labelled set.
	Set labelledset.Config

	EventHandlers EventHandlerFuncs
}

type EventHandlerFuncs struct {
	OnAdd    func(entry Entry)
	OnChange func(prev, curr Entry)
	OnDelete func(entry Entry)
}

// Inspector is implemented by stores that can report on the labelled set
// behind them.
type Inspector interface {
	Stats() labelledset.Stats
	Check() error
}

func NewDefaultCachingStore(cfg CacheConfig) Interface {
	if cfg.Key == nil {
		cfg.Key = keyVerbatim
		if cfg.FoldKeys {
			cfg.Key = keyFolded
		}
	}
	return &objectCache{
		storage:       internal.NewSyncLabelledSet[Metadata](cfg.Set),
		keyFunc:       cfg.Key,
		eventHandlers: cfg.EventHandlers,
	}
}

func (c *objectCache) Get(ctx context.Context, key string) (result Single, err error) {
	key, err = c.keyFunc(key)
	if err != nil {
		return result, fmt.Errorf("error getting key for get: %w", err)
	}
	cc, ok := c.storage.Get(key)
	if ok {
		result.Found = true
		result.Entry = toEntry(cc)
		result.ETag = getETag(cc)
	}
	return result, nil
}

func (c *objectCache) Owner(ctx context.Context, value int64) (result Single, err error) {
	cc, ok := c.storage.Owner(value)
	if ok {
		result.Found = true
		result.Entry = toEntry(cc)
		result.ETag = getETag(cc)
	}
	return result, nil
}

func (c *objectCache) Assign(ctx context.Context, a Assignment) (Entry, error) {
	key, err := c.keyFunc(a.Key)
	if err != nil {
		return Entry{}, fmt.Errorf("error getting key for assign: %w", err)
	}
	conds, err := getConditionals(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("error extracting conditional from context: %w", err)
	}
	meta := Metadata{Source: a.Source, UpdatedAt: time.Now()}
	deltas, err := c.storage.Assign(key, a.Values, a.Overwrite, meta, conds...)
	if err != nil {
		return Entry{}, err
	}
	c.notify(deltas)
	cc, _ := c.storage.Get(key)
	return toEntry(cc), nil
}

func (c *objectCache) Remove(ctx context.Context, values ...int64) error {
	c.notify(c.storage.Remove(values))
	return nil
}

func (c *objectCache) Drop(ctx context.Context, key string) error {
	key, err := c.keyFunc(key)
	if err != nil {
		return fmt.Errorf("error getting key for drop: %w", err)
	}
	conds, err := getConditionals(ctx)
	if err != nil {
		return fmt.Errorf("error extracting conditional from context: %w", err)
	}
	deleted, ok, err := c.storage.Drop(key, conds...)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: group %q", ErrNotFound, key)
	}
	c.notify([]internal.Delta[Metadata]{{Prev: &deleted}})
	return nil
}

func (c *objectCache) applySelector(result Set, sel Selector) (Set, error) {
	sort.Slice(result.Entries, func(i, j int) bool {
		delta := strings.Compare(result.Entries[i].Key, result.Entries[j].Key)
		if sel.Ordering == Descending {
			return delta >= 0
		}
		return delta < 0
	})
	offset := sel.Offset
	if sel.Continue != "" {
		var err error
		offset, err = decodeCacheContinue(sel.Continue)
		if err != nil {
			return result, err
		}
	}

	if offset >= len(result.Entries) {
		result.Entries = result.Entries[0:0] // empty resultset
	} else {
		result.Entries = result.Entries[offset:]
	}

	if sel.Limit > 0 && len(result.Entries) > sel.Limit {
		result.Entries = result.Entries[:sel.Limit]
		result.Continue = encodeCacheContinue(offset + sel.Limit)
	}
	return result, nil
}

func (c *objectCache) List(ctx context.Context, opts *Selector) (Set, error) {
	var result Set
	all := c.storage.List()
	result.Entries = make([]Entry, len(all))
	for i := range all {
		result.Entries[i] = toEntry(all[i])
	}
	if opts != nil {
		return c.applySelector(result, *opts)
	}
	return result, nil
}

func (c *objectCache) Replace(_ context.Context, entries []Entry) error {
	groups := make([]internal.VersionContainer[Metadata], 0, len(entries))
	for _, entry := range entries {
		key, err := c.keyFunc(entry.Key)
		if err != nil {
			return fmt.Errorf("error getting key for replace: %w", err)
		}
		groups = append(groups, internal.VersionContainer[Metadata]{
			Group: internal.Group{Key: key, Values: entry.Values},
			Meta:  entry.Meta,
		})
	}
	return c.storage.Replace(groups)
}

func (c *objectCache) Stats() labelledset.Stats {
	return c.storage.Stats()
}

func (c *objectCache) Check() error {
	return c.storage.Check()
}

func (c *objectCache) notify(deltas []internal.Delta[Metadata]) {
	for _, d := range deltas {
		switch {
		case d.Prev == nil && d.Next != nil:
			if c.eventHandlers.OnAdd != nil {
				c.eventHandlers.OnAdd(toEntry(*d.Next))
			}
		case d.Prev != nil && d.Next == nil:
			if c.eventHandlers.OnDelete != nil {
				c.eventHandlers.OnDelete(toEntry(*d.Prev))
			}
		case d.Prev != nil && d.Next != nil:
			if c.eventHandlers.OnChange != nil {
				c.eventHandlers.OnChange(toEntry(*d.Prev), toEntry(*d.Next))
			}
		}
	}
}

func toEntry(cc internal.VersionContainer[Metadata]) Entry {
	return Entry{
		Meta:   cc.Meta,
		Key:    cc.Group.Key,
		Values: cc.Group.Values,
	}
}

func keyVerbatim(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	return key, nil
}

// keyFolded normalizes to NFC and applies Unicode case folding so that
// "Pump", "PUMP" and "pump" label the same group.
func keyFolded(key string) (string, error) {
	key, err := keyVerbatim(key)
	if err != nil {
		return key, err
	}
	return cases.Fold().String(norm.NFC.String(key)), nil
}
