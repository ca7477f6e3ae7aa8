// Package client provides a transport-agnostic interface for the query
// service and an HTTP/JSON implementation that talks to its REST actions.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/url"
	"time"

	"github.com/alfredjeanlab/rowstore/internal/model"
)

// QueryClient is the interface the record store uses to read and write rows.
// It is implemented by HTTPClient and can be faked in tests.
type QueryClient interface {
	// Reads
	SelectRows(ctx context.Context, req *SelectRowsRequest) (*SelectRowsResponse, error)

	// Writes
	SaveRows(ctx context.Context, req *SaveRowsRequest) (*SaveRowsResponse, error)
	DeleteRows(ctx context.Context, req *DeleteRowsRequest) (*DeleteRowsResponse, error)

	// Export streams a file download. The caller must close the reader.
	Export(ctx context.Context, req *ExportRequest) (io.ReadCloser, error)

	// Lifecycle
	Close() error
}

// CommandType names a saveRows command.
type CommandType string

const (
	CommandInsert CommandType = "insertWithKeys"
	CommandUpdate CommandType = "updateChangingKeys"
	CommandDelete CommandType = "delete"
)

// SelectRowsRequest holds parameters for reading rows. Params are sent as-is;
// when SQL is set the request goes to executeSql instead of selectRows.
type SelectRowsRequest struct {
	ContainerPath string
	Params        url.Values
	SQL           string
	Timeout       time.Duration
}

// SelectRowsResponse is the response from SelectRows.
type SelectRowsResponse struct {
	RowCount    int                 `json:"rowCount"`
	Rows        []Row               `json:"rows"`
	ColumnModel []model.ColumnModel `json:"columnModel,omitempty"`
	MetaData    MetaData            `json:"metaData"`
}

// MetaData describes the rows of a SelectRowsResponse.
type MetaData struct {
	ID     string            `json:"id"`
	Title  string            `json:"title,omitempty"`
	Fields []FieldDescriptor `json:"fields"`
}

// FieldDescriptor is a column as described by the query service.
type FieldDescriptor struct {
	Name     string            `json:"name"`
	Type     string            `json:"type,omitempty"`
	JSONType string            `json:"jsonType,omitempty"`
	Required bool              `json:"required,omitempty"`
	Hidden   bool              `json:"hidden,omitempty"`
	Caption  string            `json:"caption,omitempty"`
	Lookup   *LookupDescriptor `json:"lookup,omitempty"`
}

// LookupDescriptor is the lookup target of a column. The service has used
// both long and short names for the schema, query and container.
type LookupDescriptor struct {
	SchemaName    string `json:"schemaName,omitempty"`
	Schema        string `json:"schema,omitempty"`
	QueryName     string `json:"queryName,omitempty"`
	Table         string `json:"table,omitempty"`
	KeyColumn     string `json:"keyColumn,omitempty"`
	DisplayColumn string `json:"displayColumn,omitempty"`
	ContainerPath string `json:"containerPath,omitempty"`
	Container     string `json:"container,omitempty"`
	ViewName      string `json:"viewName,omitempty"`
}

// FieldMeta converts the descriptor into a model.FieldMeta.
func (d FieldDescriptor) FieldMeta() model.FieldMeta {
	typ := d.JSONType
	if typ == "" {
		typ = d.Type
	}
	m := model.FieldMeta{
		Name:     d.Name,
		Type:     model.ParseFieldType(typ),
		Required: d.Required,
		Hidden:   d.Hidden,
		Caption:  d.Caption,
	}
	if l := d.Lookup; l != nil {
		m.Lookup = &model.Lookup{
			Schema:        firstNonEmpty(l.SchemaName, l.Schema),
			Query:         firstNonEmpty(l.QueryName, l.Table),
			KeyColumn:     l.KeyColumn,
			DisplayColumn: l.DisplayColumn,
			Container:     firstNonEmpty(l.ContainerPath, l.Container),
			ViewName:      l.ViewName,
		}
	}
	return m
}

// FieldMetas converts every descriptor in the metadata.
func (m MetaData) FieldMetas() []model.FieldMeta {
	out := make([]model.FieldMeta, len(m.Fields))
	for i, f := range m.Fields {
		out[i] = f.FieldMeta()
	}
	return out
}

// Row is one result row. Values in the extended format
// ({"value": v, "displayValue": d}) are unwrapped into Values and Display.
type Row struct {
	Values  map[string]any
	Display map[string]string
}

// UnmarshalJSON accepts both plain and extended row formats.
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	r.Values = make(map[string]any, len(raw))
	for k, v := range raw {
		if obj, ok := v.(map[string]any); ok {
			if val, has := obj["value"]; has {
				r.Values[k] = val
				if d, ok := obj["displayValue"].(string); ok {
					if r.Display == nil {
						r.Display = make(map[string]string)
					}
					r.Display[k] = d
				}
				continue
			}
		}
		r.Values[k] = v
	}
	return nil
}

// MarshalJSON writes the plain format.
func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Values)
}

// CommandRow is one row of a saveRows command or result. OldKeys locates the
// row server-side even when the key itself is being changed.
type CommandRow struct {
	Values  map[string]any `json:"values"`
	OldKeys map[string]any `json:"oldKeys,omitempty"`
}

// Command is a batched insert-like or update-like operation on one query.
type Command struct {
	SchemaName string       `json:"schemaName"`
	QueryName  string       `json:"queryName"`
	Command    CommandType  `json:"command"`
	Rows       []CommandRow `json:"rows"`
}

// SaveRowsRequest holds the commands sent as one atomic write.
type SaveRowsRequest struct {
	ContainerPath string        `json:"containerPath,omitempty"`
	Commands      []Command     `json:"commands"`
	Timeout       time.Duration `json:"-"`
}

// SaveRowsResponse has one result per submitted command, in order.
type SaveRowsResponse struct {
	Result []CommandResult `json:"result"`
}

// CommandResult is the server's answer for one command.
type CommandResult struct {
	Command      CommandType  `json:"command,omitempty"`
	RowsAffected int          `json:"rowsAffected,omitempty"`
	Rows         []CommandRow `json:"rows"`
}

// DeleteRowsRequest deletes rows by primary key.
type DeleteRowsRequest struct {
	SchemaName    string           `json:"schemaName"`
	QueryName     string           `json:"queryName"`
	ContainerPath string           `json:"containerPath,omitempty"`
	Rows          []map[string]any `json:"rows"`
	Timeout       time.Duration    `json:"-"`
}

// DeleteRowsResponse is the response from DeleteRows.
type DeleteRowsResponse struct {
	RowsAffected int `json:"rowsAffected"`
}

// ExportFormat selects the export file type.
type ExportFormat string

const (
	FormatExcel ExportFormat = "excel"
	FormatTSV   ExportFormat = "tsv"
)

// ParseExportFormat returns the format named by s; anything other than
// "tsv" means excel.
func ParseExportFormat(s string) ExportFormat {
	if s == string(FormatTSV) {
		return FormatTSV
	}
	return FormatExcel
}

// ExportRequest holds parameters for a file export.
type ExportRequest struct {
	ContainerPath string
	Format        ExportFormat
	Params        url.Values
	SQL           string
	Timeout       time.Duration
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
