package store

import (
	"context"
	"errors"
	"io"
	"maps"
	"strings"
	"sync"
	"testing"

	"github.com/alfredjeanlab/rowstore/internal/client"
	"github.com/alfredjeanlab/rowstore/internal/model"
)

// mockClient is an in-memory QueryClient for store tests. Requests are
// recorded; responses come from the configurable funcs.
type mockClient struct {
	mu sync.Mutex

	selectFn func(*client.SelectRowsRequest) (*client.SelectRowsResponse, error)
	saveFn   func(*client.SaveRowsRequest) (*client.SaveRowsResponse, error)

	deleteErr  error
	exportBody string
	exportErr  error

	selects []*client.SelectRowsRequest
	saves   []*client.SaveRowsRequest
	deletes []*client.DeleteRowsRequest
	exports []*client.ExportRequest
}

func newMockClient() *mockClient {
	m := &mockClient{}
	m.selectFn = func(req *client.SelectRowsRequest) (*client.SelectRowsResponse, error) {
		switch req.Params.Get("query.queryName") {
		case "Colors":
			return colorsResponse(), nil
		case "Users":
			return usersResponse(), nil
		default:
			return peopleResponse(), nil
		}
	}
	m.saveFn = echoSave(100)
	return m
}

func (m *mockClient) SelectRows(_ context.Context, req *client.SelectRowsRequest) (*client.SelectRowsResponse, error) {
	m.mu.Lock()
	m.selects = append(m.selects, req)
	fn := m.selectFn
	m.mu.Unlock()
	return fn(req)
}

func (m *mockClient) SaveRows(_ context.Context, req *client.SaveRowsRequest) (*client.SaveRowsResponse, error) {
	m.mu.Lock()
	m.saves = append(m.saves, req)
	fn := m.saveFn
	m.mu.Unlock()
	return fn(req)
}

func (m *mockClient) DeleteRows(_ context.Context, req *client.DeleteRowsRequest) (*client.DeleteRowsResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, req)
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	return &client.DeleteRowsResponse{RowsAffected: len(req.Rows)}, nil
}

func (m *mockClient) Export(_ context.Context, req *client.ExportRequest) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports = append(m.exports, req)
	if m.exportErr != nil {
		return nil, m.exportErr
	}
	return io.NopCloser(strings.NewReader(m.exportBody)), nil
}

func (m *mockClient) Close() error { return nil }

func (m *mockClient) selectCount(query string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, req := range m.selects {
		if req.Params.Get("query.queryName") == query {
			n++
		}
	}
	return n
}

func (m *mockClient) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

func (m *mockClient) lastSave() *client.SaveRowsRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saves) == 0 {
		return nil
	}
	return m.saves[len(m.saves)-1]
}

// echoSave answers saveRows like the query service: every row is echoed
// with its old keys, and inserted rows get the next key starting at first.
func echoSave(first int) func(*client.SaveRowsRequest) (*client.SaveRowsResponse, error) {
	var mu sync.Mutex
	next := first
	return func(req *client.SaveRowsRequest) (*client.SaveRowsResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		resp := &client.SaveRowsResponse{}
		for _, cmd := range req.Commands {
			res := client.CommandResult{Command: cmd.Command, RowsAffected: len(cmd.Rows)}
			for _, row := range cmd.Rows {
				values := make(map[string]any, len(row.Values)+1)
				for k, v := range row.Values {
					values[k] = jsonValue(v)
				}
				if cmd.Command == client.CommandInsert {
					values["Key"] = float64(next)
					next++
				}
				res.Rows = append(res.Rows, client.CommandRow{Values: values, OldKeys: maps.Clone(row.OldKeys)})
			}
			resp.Result = append(resp.Result, res)
		}
		return resp, nil
	}
}

// jsonValue mimics a JSON round trip for the numeric types the store sends.
func jsonValue(v any) any {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return v
}

func failSave(err error) func(*client.SaveRowsRequest) (*client.SaveRowsResponse, error) {
	return func(*client.SaveRowsRequest) (*client.SaveRowsResponse, error) {
		return nil, err
	}
}

var errBoom = errors.New("boom")

func peopleResponse() *client.SelectRowsResponse {
	return &client.SelectRowsResponse{
		RowCount: 2,
		Rows: []client.Row{
			{
				Values:  map[string]any{"Key": float64(1), "FirstName": "Ann", "Age": float64(30), "Color": float64(2), "Notes": "first", "Color/Name": "Blue"},
				Display: map[string]string{"Color": "Blue"},
			},
			{
				Values: map[string]any{"Key": float64(2), "FirstName": "Bob", "Age": nil, "Color": nil, "Notes": nil},
			},
		},
		ColumnModel: []model.ColumnModel{
			{DataIndex: "Key", Hidden: true, Required: true},
			{DataIndex: "FirstName", Required: true},
			{DataIndex: "Age"},
			{DataIndex: "Color"},
			{DataIndex: "Notes"},
			{DataIndex: "Owner"},
		},
		MetaData: client.MetaData{
			ID:    "Key",
			Title: "People",
			Fields: []client.FieldDescriptor{
				{Name: "Key", Type: "int"},
				{Name: "FirstName", Type: "string"},
				{Name: "Age", Type: "int"},
				{Name: "Color", Type: "int", Lookup: &client.LookupDescriptor{Schema: "lists", Table: "Colors", KeyColumn: "Key", DisplayColumn: "Name"}},
				{Name: "Notes", Type: "string"},
				{Name: "Owner", Type: "int", Lookup: &client.LookupDescriptor{SchemaName: "core", QueryName: "Users", KeyColumn: "UserId", DisplayColumn: "DisplayName"}},
			},
		},
	}
}

func colorsResponse() *client.SelectRowsResponse {
	return &client.SelectRowsResponse{
		RowCount: 2,
		Rows: []client.Row{
			{Values: map[string]any{"Key": float64(2), "Name": "Blue"}},
			{Values: map[string]any{"Key": float64(1), "Name": "Red"}},
		},
		MetaData: client.MetaData{
			ID:     "Key",
			Fields: []client.FieldDescriptor{{Name: "Key", Type: "int"}, {Name: "Name", Type: "string"}},
		},
	}
}

func usersResponse() *client.SelectRowsResponse {
	return &client.SelectRowsResponse{
		RowCount: 1,
		Rows:     []client.Row{{Values: map[string]any{"UserId": float64(1001), "DisplayName": "ann"}}},
		MetaData: client.MetaData{
			ID:     "UserId",
			Fields: []client.FieldDescriptor{{Name: "UserId", Type: "int"}, {Name: "DisplayName", Type: "string"}},
		},
	}
}

// recordingPublisher captures published subjects in order.
type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	events   []any
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

// newPeopleStore returns a loaded store over lists.People.
func newPeopleStore(t *testing.T, m *mockClient, cfg Config) *Store {
	t.Helper()
	cfg.SchemaName = "lists"
	if cfg.QueryName == "" && cfg.SQL == "" {
		cfg.QueryName = "People"
	}
	s := New(m, cfg)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return s
}
