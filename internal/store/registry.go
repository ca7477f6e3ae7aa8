package store

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/rowstore/internal/client"
	"github.com/alfredjeanlab/rowstore/internal/model"
)

// LookupContainerFilter lets a lookup see rows of the current container, its
// parents and its workbooks.
const LookupContainerFilter = "CurrentOrParentAndWorkbooks"

// LookupConfig carries the settings used when a lookup store is first
// created. Later Get calls for the same key ignore it.
type LookupConfig struct {
	Container string
	ViewName  string
	Timeout   time.Duration
}

// Registry hands out one shared, read-only Store per lookup target. Stores
// are created lazily and never evicted, so every caller asking for a key gets
// the same instance for the registry's lifetime.
type Registry struct {
	client client.QueryClient
	logger *slog.Logger

	mu     sync.Mutex
	stores map[model.LookupKey]*Store
}

// NewRegistry creates an empty registry whose stores read through c.
func NewRegistry(c client.QueryClient, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		client: c,
		logger: logger,
		stores: make(map[model.LookupKey]*Store),
	}
}

// Get returns the store for key, creating it on first use. Creating a store
// does not load it.
func (r *Registry) Get(key model.LookupKey, cfg LookupConfig) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[key]; ok {
		return s
	}

	columns := []string{key.KeyColumn}
	sort := key.KeyColumn
	if key.DisplayColumn != "" && key.DisplayColumn != key.KeyColumn {
		columns = append(columns, key.DisplayColumn)
		sort = key.DisplayColumn
	}
	s := New(r.client, Config{
		SchemaName:      key.Schema,
		QueryName:       key.Query,
		ViewName:        cfg.ViewName,
		Columns:         columns,
		Sort:            sort,
		ContainerPath:   cfg.Container,
		ContainerFilter: LookupContainerFilter,
		ShowAll:         true,
		Timeout:         cfg.Timeout,
		ReadOnly:        true,
		Registry:        r,
		Logger:          r.logger,
	})
	r.stores[key] = s
	r.logger.Debug("lookup store created", "key", key.String())
	return s
}

// Len returns the number of lookup stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Keys returns the registered keys sorted by their string form.
func (r *Registry) Keys() []model.LookupKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]model.LookupKey, 0, len(r.stores))
	for k := range r.stores {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b model.LookupKey) int {
		return strings.Compare(a.String(), b.String())
	})
	return keys
}

// Lookup is one consumer's view of a shared lookup store. The shared store
// is never modified; the optional "no value" record lives in the view.
type Lookup struct {
	store       *Store
	key         model.LookupKey
	nullCaption string
	nullRecord  *Record
}

func newLookup(s *Store, key model.LookupKey, includeNull bool, nullCaption string) *Lookup {
	l := &Lookup{store: s, key: key, nullCaption: nullCaption}
	if includeNull {
		values := map[string]any{key.KeyColumn: nil}
		if key.DisplayColumn != "" && key.DisplayColumn != key.KeyColumn {
			values[key.DisplayColumn] = nullCaption
		}
		l.nullRecord = &Record{
			values:   values,
			display:  map[string]string{key.KeyColumn: nullCaption},
			original: map[string]any{},
			state:    model.StateClean,
		}
	}
	return l
}

// Store returns the shared store behind the view.
func (l *Lookup) Store() *Store { return l.store }

// Key returns the lookup target.
func (l *Lookup) Key() model.LookupKey { return l.key }

// Load loads the shared store unless it is already loaded.
func (l *Lookup) Load(ctx context.Context) error {
	return l.store.EnsureLoaded(ctx)
}

// Records returns the lookup's options, led by the "no value" record when
// the view was created with one.
func (l *Lookup) Records() []*Record {
	recs := l.store.Records()
	if l.nullRecord == nil {
		return recs
	}
	return append([]*Record{l.nullRecord}, recs...)
}

// DisplayValue returns the display column for the row whose key column
// equals key. A nil key shows the null caption; an unknown key shows as
// "[key]".
func (l *Lookup) DisplayValue(key any) string {
	if model.IsBlank(key) {
		return l.nullCaption
	}
	want := model.KeyString(key)
	display := l.key.DisplayColumn
	if display == "" {
		display = l.key.KeyColumn
	}
	for _, r := range l.store.Records() {
		if model.KeyString(r.Get(l.key.KeyColumn)) == want {
			return model.FormatValue(r.Get(display))
		}
	}
	return "[" + want + "]"
}
