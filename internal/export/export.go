// Package export writes store exports to files, S3 buckets and git repos.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alfredjeanlab/rowstore/internal/client"
	"github.com/alfredjeanlab/rowstore/internal/events"
)

// Source produces an export of its rows. *store.Store implements it.
type Source interface {
	ExportData(ctx context.Context, format client.ExportFormat, w io.Writer) (int64, error)
	Source() events.Source
}

// Destination stores one export under name.
type Destination interface {
	Write(ctx context.Context, name string, data []byte) error
}

// Extension returns the file extension for format, including the dot.
func Extension(format client.ExportFormat) string {
	if format == client.FormatTSV {
		return ".tsv"
	}
	return ".xlsx"
}

// ContentType returns the MIME type for format.
func ContentType(format client.ExportFormat) string {
	if format == client.FormatTSV {
		return "text/tab-separated-values"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileName names an export of src taken at t, e.g.
// "lists.People-20261016T093000Z.tsv".
func FileName(src events.Source, format client.ExportFormat, t time.Time) string {
	base := src.Schema
	if src.Query != "" {
		base += "." + src.Query
	}
	base = strings.NewReplacer("/", "_", " ", "_").Replace(base)
	if base == "" {
		base = "export"
	}
	return base + "-" + t.UTC().Format("20060102T150405Z") + Extension(format)
}

// Snapshot buffers one export of src.
func Snapshot(ctx context.Context, src Source, format client.ExportFormat) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := src.ExportData(ctx, format, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Run exports src once and writes the result to every destination. All
// destinations are attempted; the first failure is returned.
func Run(ctx context.Context, src Source, format client.ExportFormat, name string, dests ...Destination) (int, error) {
	data, err := Snapshot(ctx, src, format)
	if err != nil {
		return 0, err
	}
	var firstErr error
	for i, d := range dests {
		if err := d.Write(ctx, name, data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("destination %d: %w", i, err)
		}
	}
	return len(data), firstErr
}
