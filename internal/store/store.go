// Package store implements the synchronized record store: a client-side
// cache of server rows that tracks per-row changes, sends them back as one
// atomic saveRows request and reconciles the server's answer.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alfredjeanlab/rowstore/internal/client"
	"github.com/alfredjeanlab/rowstore/internal/events"
	"github.com/alfredjeanlab/rowstore/internal/filter"
	"github.com/alfredjeanlab/rowstore/internal/idgen"
	"github.com/alfredjeanlab/rowstore/internal/model"
)

var (
	// ErrNotUpdatable is returned for writes to a read-only store.
	ErrNotUpdatable = errors.New("store is not updatable")
	// ErrCommitVetoed is returned when a before-commit listener cancels a commit.
	ErrCommitVetoed = errors.New("commit vetoed by listener")
	// ErrSaveInProgress is returned when an operation needs a record that is
	// part of an in-flight commit.
	ErrSaveInProgress = errors.New("record save in progress")
	// ErrUnknownField is returned when setting a field the store does not have.
	ErrUnknownField = errors.New("unknown field")
	// ErrForeignRecord is returned when a record belongs to another store.
	ErrForeignRecord = errors.New("record does not belong to this store")
)

// DefaultNullCaption is shown for the "no value" option of a lookup.
const DefaultNullCaption = "[none]"

// Config describes the query a Store reads and writes.
type Config struct {
	SchemaName string
	QueryName  string
	// SQL makes the store read an ad-hoc query. Such stores are read-only.
	SQL string

	ViewName string
	Columns  []string
	Sort     string // e.g. "-Created,Name"
	// Filters are the base filters. They are always applied, in addition to
	// the user filters.
	Filters    []filter.Filter
	Parameters map[string]string // query.param.<name>

	ContainerPath   string
	ContainerFilter string
	IgnoreFilter    bool

	MaxRows int
	Offset  int
	ShowAll bool

	// Timeout bounds each request the store makes. Zero means no limit
	// beyond the caller's context.
	Timeout time.Duration

	ReadOnly          bool
	NoValidationCheck bool
	NullCaption       string

	// Registry shares lookup stores. A store without one gets a private registry.
	Registry  *Registry
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Store is a cache of the rows of one query.
type Store struct {
	client    client.QueryClient
	cfg       Config
	registry  *Registry
	publisher events.Publisher
	logger    *slog.Logger

	mu          sync.RWMutex
	records     []*Record
	byKey       map[string]*Record // model.KeyString(id); phantoms are not in here
	byInternal  map[string]*Record
	fields      *model.Fields
	columns     []model.ColumnModel
	idName      string
	title       string
	rowCount    int
	loaded      bool
	loadErr     error
	userFilters []filter.Filter
	sort        string
	offset      int
	maxRows     int

	loads singleflight.Group

	listeners listeners
}

// New creates a store over the query described by cfg. Nothing is loaded
// until Load is called.
func New(c client.QueryClient, cfg Config) *Store {
	if cfg.SQL != "" {
		cfg.ReadOnly = true
	}
	if cfg.NullCaption == "" {
		cfg.NullCaption = DefaultNullCaption
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	reg := cfg.Registry
	if reg == nil {
		reg = NewRegistry(c, logger)
	}
	return &Store{
		client:     c,
		cfg:        cfg,
		registry:   reg,
		publisher:  pub,
		logger:     logger.With("schema", cfg.SchemaName, "query", cfg.queryLabel()),
		byKey:      make(map[string]*Record),
		byInternal: make(map[string]*Record),
		sort:       cfg.Sort,
		offset:     cfg.Offset,
		maxRows:    cfg.MaxRows,
	}
}

func (c *Config) queryLabel() string {
	if c.QueryName == "" && c.SQL != "" {
		return "sql"
	}
	return c.QueryName
}

// Source identifies the store's query in published events.
func (s *Store) Source() events.Source {
	return events.Source{
		Container: s.cfg.ContainerPath,
		Schema:    s.cfg.SchemaName,
		Query:     s.cfg.queryLabel(),
	}
}

// ReadOnly reports whether the store rejects writes.
func (s *Store) ReadOnly() bool { return s.cfg.ReadOnly }

// Registry returns the lookup registry the store uses.
func (s *Store) Registry() *Registry { return s.registry }

// --- Loading ---

// Load reads the rows matching the base and user filters, sort and page, and
// replaces the cached records. Concurrent calls share one request. On failure
// the error is also kept for LoadError and the previous records stay.
func (s *Store) Load(ctx context.Context) error {
	_, err, _ := s.loads.Do("load", func() (any, error) {
		return nil, s.load(ctx)
	})
	return err
}

// EnsureLoaded loads the store unless it has loaded successfully before.
func (s *Store) EnsureLoaded(ctx context.Context) error {
	if s.Loaded() {
		return nil
	}
	return s.Load(ctx)
}

func (s *Store) load(ctx context.Context) error {
	s.mu.RLock()
	params := s.queryParams(false)
	s.mu.RUnlock()

	resp, err := s.client.SelectRows(ctx, &client.SelectRowsRequest{
		ContainerPath: s.cfg.ContainerPath,
		Params:        params,
		SQL:           s.cfg.SQL,
		Timeout:       s.cfg.Timeout,
	})
	if err != nil {
		err = fmt.Errorf("loading %s.%s: %w", s.cfg.SchemaName, s.cfg.queryLabel(), err)
		s.mu.Lock()
		s.loadErr = err
		s.mu.Unlock()
		s.logger.Warn("load failed", "error", err)
		s.fireLoad(ctx, 0, err)
		return err
	}

	fields := model.NewFields(resp.MetaData.FieldMetas())
	records := make([]*Record, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		records = append(records, s.newLoadedRecord(row, fields, resp.MetaData.ID))
	}

	s.mu.Lock()
	if !s.fields.Equal(fields) {
		s.fields = fields
	}
	s.columns = resp.ColumnModel
	s.idName = resp.MetaData.ID
	s.title = resp.MetaData.Title
	s.rowCount = resp.RowCount
	s.records = records
	s.byKey = make(map[string]*Record, len(records))
	s.byInternal = make(map[string]*Record, len(records))
	for _, r := range records {
		s.byInternal[r.internalID] = r
		if r.id != nil {
			s.byKey[model.KeyString(r.id)] = r
		}
	}
	s.loaded = true
	s.loadErr = nil
	s.mu.Unlock()

	s.logger.Debug("loaded", "rows", len(records), "row_count", resp.RowCount)
	s.fireLoad(ctx, resp.RowCount, nil)
	return nil
}

func (s *Store) newLoadedRecord(row client.Row, fields *model.Fields, idName string) *Record {
	values, extended, err := model.ConvertValues(row.Values, fields)
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		// Keep what the server sent for fields that do not convert.
		for _, fe := range ve.Errors {
			values[fe.Field] = row.Values[fe.Field]
		}
		s.logger.Debug("row values did not convert", "error", err)
	}
	r := &Record{
		owner:      s,
		internalID: idgen.NewInternalID(),
		values:     values,
		extended:   extended,
		display:    maps.Clone(row.Display),
		original:   maps.Clone(values),
		state:      model.StateClean,
	}
	if v, ok := values[idName]; ok {
		r.id = v
	} else {
		r.id = extended[idName]
	}
	return r
}

// queryParams builds the request parameters. Callers hold s.mu.
func (s *Store) queryParams(export bool) url.Values {
	const region = filter.DefaultRegion
	params := url.Values{}
	params.Set("schemaName", s.cfg.SchemaName)
	if s.cfg.SQL == "" {
		params.Set(region+".queryName", s.cfg.QueryName)
	}
	if s.cfg.ViewName != "" {
		params.Set(region+".viewName", s.cfg.ViewName)
	}
	if len(s.cfg.Columns) > 0 {
		params.Set(region+".columns", strings.Join(s.cfg.Columns, ","))
	}
	if s.sort != "" {
		params.Set(region+".sort", s.sort)
	}
	if s.cfg.ContainerFilter != "" {
		params.Set(region+".containerFilterName", s.cfg.ContainerFilter)
	}
	if s.cfg.IgnoreFilter {
		params.Set(region+".ignoreFilter", "1")
	}
	for _, name := range slices.Sorted(maps.Keys(s.cfg.Parameters)) {
		params.Set(region+".param."+name, s.cfg.Parameters[name])
	}

	switch {
	case export || s.cfg.ShowAll:
		params.Set(region+".showRows", "all")
	default:
		if s.maxRows > 0 {
			params.Set(region+".maxRows", strconv.Itoa(s.maxRows))
		}
		if s.offset > 0 {
			params.Set(region+".offset", strconv.Itoa(s.offset))
		}
	}
	if !export {
		params.Set("apiVersion", "9.1")
	}

	filter.AppendParams(params, region, s.cfg.Filters)
	filter.AppendParams(params, region, s.userFilters)
	return params
}

// Loaded reports whether the store has loaded successfully.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// LoadError returns the error of the last failed load, cleared by the next
// successful one.
func (s *Store) LoadError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// RowCount is the server's total row count for the query, which may exceed
// the number of cached records when paging.
func (s *Store) RowCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rowCount
}

// Title returns the query title reported by the server.
func (s *Store) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

// Columns returns the column model of the last load.
func (s *Store) Columns() []model.ColumnModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.columns)
}

// IDName returns the name of the primary-key field.
func (s *Store) IDName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idName
}

// Fields returns the field table. It is nil before the first load.
func (s *Store) Fields() *model.Fields {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields
}

// CanonicalFieldName returns the store's spelling of name, or "".
func (s *Store) CanonicalFieldName(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields.Canonical(name)
}

// --- Filters, sort and paging ---

// UserFilters returns the replaceable filters applied on top of the base filters.
func (s *Store) UserFilters() []filter.Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.userFilters)
}

// SetUserFilters replaces the user filters. They apply from the next load.
func (s *Store) SetUserFilters(filters []filter.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userFilters = slices.Clone(filters)
}

// SetSort sorts by a single field from the next load.
func (s *Store) SetSort(field string, desc bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if field == "" {
		s.sort = ""
		return
	}
	s.sort = filter.SortParam(field, desc)
}

// SetPage sets the offset and page size used by the next load.
func (s *Store) SetPage(offset, maxRows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = max(offset, 0)
	s.maxRows = max(maxRows, 0)
}

// --- Records ---

// Records returns the cached records in order.
func (s *Store) Records() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// Count returns the number of cached records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// GetByID returns the record with the given primary key, or nil.
func (s *Store) GetByID(id any) *Record {
	if model.IsBlank(id) {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byKey[model.KeyString(id)]
}

// GetByInternalID returns the record with the given internal id, or nil.
func (s *Store) GetByInternalID(id string) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byInternal[id]
}

// IndexOf returns the position of r, or -1.
func (s *Store) IndexOf(r *Record) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Index(s.records, r)
}

// ModifiedRecords returns the records with unsent changes.
func (s *Store) ModifiedRecords() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, r := range s.records {
		if r.State() == model.StateDirty {
			out = append(out, r)
		}
	}
	return out
}

// IsUpdateInProgress reports whether r is part of an in-flight commit.
func (s *Store) IsUpdateInProgress(r *Record) bool {
	return r.SaveInProgress()
}

// owns reports whether r is cached by s. Callers hold s.mu.
func (s *Store) owns(r *Record) bool {
	return r != nil && s.byInternal[r.internalID] == r
}

// AddRecord inserts a phantom record at index (appending when index is out
// of range). Every known field is present, defaulting to nil.
func (s *Store) AddRecord(initial map[string]any, index int) (*Record, error) {
	if s.cfg.ReadOnly {
		return nil, ErrNotUpdatable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	canonical := make(map[string]any, len(initial))
	for k, v := range initial {
		if name := s.fields.Canonical(k); name != "" {
			k = name
		}
		canonical[k] = v
	}
	values, extended, err := model.ConvertValues(canonical, s.fields)
	if err != nil {
		return nil, err
	}
	for _, name := range s.fields.Names() {
		if _, ok := values[name]; !ok {
			values[name] = nil
		}
	}
	if s.fields.Len() == 0 {
		// Nothing to validate against before the first load.
		maps.Copy(values, extended)
		extended = nil
	}

	r := &Record{
		owner:      s,
		internalID: idgen.NewInternalID(),
		values:     values,
		extended:   extended,
		original:   maps.Clone(values),
		state:      model.StateDirty,
		phantom:    true,
	}
	if index < 0 || index > len(s.records) {
		index = len(s.records)
	}
	s.records = slices.Insert(s.records, index, r)
	s.byInternal[r.internalID] = r
	return r, nil
}

// Set changes one field of r. The value is converted to the field's type.
// A record whose fields all return to their committed values becomes clean
// again. Fields edited while a commit is in flight are kept when that commit
// is reconciled, and the record stays dirty.
func (s *Store) Set(r *Record, name string, value any) error {
	return s.SetValues(r, map[string]any{name: value})
}

// SetValues changes several fields of r at once. Either all values are
// applied or none are.
func (s *Store) SetValues(r *Record, values map[string]any) error {
	if s.cfg.ReadOnly {
		return ErrNotUpdatable
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.owns(r) {
		return ErrForeignRecord
	}

	converted := make(map[string]any, len(values))
	var ve model.ValidationError
	for k, v := range values {
		meta := s.fields.Get(s.fields.Canonical(k))
		if meta == nil {
			if s.fields.Len() > 0 {
				return fmt.Errorf("%w: %s", ErrUnknownField, k)
			}
			converted[k] = v
			continue
		}
		cv, err := meta.Convert(v)
		if err != nil {
			ve.Errors = append(ve.Errors, model.FieldError{Field: meta.Name, Message: err.Error()})
			continue
		}
		converted[meta.Name] = cv
	}
	if ve.HasErrors() {
		return &ve
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range converted {
		r.values[k] = v
		delete(r.display, k)
		delete(r.serverErrors, k)
		if r.state == model.StatePending {
			if r.editedWhilePending == nil {
				r.editedWhilePending = make(map[string]bool)
			}
			r.editedWhilePending[k] = true
		}
	}
	switch {
	case r.state == model.StatePending:
	case r.phantom || !r.matchesOriginal():
		r.state = model.StateDirty
	default:
		r.state = model.StateClean
	}
	return nil
}

// Reject discards the local changes of r.
func (s *Store) Reject(r *Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.owns(r) {
		return ErrForeignRecord
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == model.StatePending {
		return ErrSaveInProgress
	}
	r.values = maps.Clone(r.original)
	r.serverErrors = nil
	if !r.phantom {
		r.state = model.StateClean
	}
	return nil
}

// DeleteRecords deletes the given records on the server in one request and
// then reloads the store. Phantom records are only dropped locally. Nothing
// is applied if the request fails.
func (s *Store) DeleteRecords(ctx context.Context, records []*Record) error {
	if s.cfg.ReadOnly {
		return ErrNotUpdatable
	}
	if len(records) == 0 {
		return nil
	}

	s.mu.RLock()
	idName := s.idName
	var (
		rows     []map[string]any
		keys     []any
		phantoms []*Record
	)
	for _, r := range records {
		if !s.owns(r) {
			s.mu.RUnlock()
			return ErrForeignRecord
		}
		r.mu.RLock()
		pending, phantom, id := r.state == model.StatePending, r.phantom, r.id
		r.mu.RUnlock()
		if pending {
			s.mu.RUnlock()
			return ErrSaveInProgress
		}
		if phantom {
			phantoms = append(phantoms, r)
			continue
		}
		rows = append(rows, map[string]any{idName: id})
		keys = append(keys, id)
	}
	s.mu.RUnlock()

	if len(rows) > 0 {
		if idName == "" {
			return fmt.Errorf("deleting rows: primary key of %s.%s is unknown", s.cfg.SchemaName, s.cfg.QueryName)
		}
		_, err := s.client.DeleteRows(ctx, &client.DeleteRowsRequest{
			SchemaName:    s.cfg.SchemaName,
			QueryName:     s.cfg.QueryName,
			ContainerPath: s.cfg.ContainerPath,
			Rows:          rows,
			Timeout:       s.cfg.Timeout,
		})
		if err != nil {
			return fmt.Errorf("deleting rows: %w", err)
		}
	}

	s.mu.Lock()
	for _, r := range phantoms {
		s.remove(r)
	}
	s.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}
	s.logger.Info("rows deleted", "count", len(rows))
	s.publish(ctx, events.TopicRowsDeleted, events.RowsDeleted{Source: s.Source(), Keys: keys})
	s.fireCommitComplete(ctx, &CommitResult{Deleted: keys})
	return s.Load(ctx)
}

// remove drops r from the cache. Callers hold s.mu.
func (s *Store) remove(r *Record) {
	if i := slices.Index(s.records, r); i >= 0 {
		s.records = slices.Delete(s.records, i, i+1)
	}
	delete(s.byInternal, r.internalID)
	if r.id != nil && s.byKey[model.KeyString(r.id)] == r {
		delete(s.byKey, model.KeyString(r.id))
	}
}

// --- Lookups ---

// GetLookupStore returns the shared lookup store for a lookup field, or nil
// when the field is unknown or not a lookup. With includeNull, the returned
// view lists a "no value" record first.
func (s *Store) GetLookupStore(fieldName string, includeNull bool) *Lookup {
	s.mu.RLock()
	meta := s.fields.Get(s.fields.Canonical(fieldName))
	s.mu.RUnlock()
	if meta == nil || !meta.IsLookup() {
		return nil
	}

	container := meta.Lookup.Container
	if container == "" {
		container = s.cfg.ContainerPath
	}
	key := meta.Lookup.Key()
	ls := s.registry.Get(key, LookupConfig{
		Container: container,
		ViewName:  meta.Lookup.ViewName,
		Timeout:   s.cfg.Timeout,
	})
	return newLookup(ls, key, includeNull, s.cfg.NullCaption)
}

// --- Export ---

// ExportData streams every row matching the base and user filters to w in
// the given format. It does not change the store.
func (s *Store) ExportData(ctx context.Context, format client.ExportFormat, w io.Writer) (int64, error) {
	s.mu.RLock()
	params := s.queryParams(true)
	s.mu.RUnlock()

	rc, err := s.client.Export(ctx, &client.ExportRequest{
		ContainerPath: s.cfg.ContainerPath,
		Format:        format,
		Params:        params,
		SQL:           s.cfg.SQL,
		Timeout:       s.cfg.Timeout,
	})
	if err != nil {
		return 0, fmt.Errorf("exporting %s.%s: %w", s.cfg.SchemaName, s.cfg.queryLabel(), err)
	}
	defer rc.Close()

	n, err := io.Copy(w, rc)
	if err != nil {
		return n, fmt.Errorf("writing export: %w", err)
	}
	return n, nil
}
