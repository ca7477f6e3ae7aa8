package export

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/rowstore/internal/client"
	"github.com/alfredjeanlab/rowstore/internal/events"
	"github.com/alfredjeanlab/rowstore/internal/store"
)

var _ Source = (*store.Store)(nil)

// fakeSource serves a fixed export body.
type fakeSource struct {
	body  string
	err   error
	calls atomic.Int64

	mu      sync.Mutex
	formats []client.ExportFormat
}

func (s *fakeSource) ExportData(_ context.Context, format client.ExportFormat, w io.Writer) (int64, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.formats = append(s.formats, format)
	s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	n, err := io.WriteString(w, s.body)
	return int64(n), err
}

func (s *fakeSource) Source() events.Source {
	return events.Source{Container: "/home", Schema: "lists", Query: "People"}
}

// memDestination records writes by name.
type memDestination struct {
	mu     sync.Mutex
	writes map[string][]byte
	order  []string
	err    error
}

func (d *memDestination) Write(_ context.Context, name string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if d.writes == nil {
		d.writes = make(map[string][]byte)
	}
	d.writes[name] = append([]byte(nil), data...)
	d.order = append(d.order, name)
	return nil
}

func (d *memDestination) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}

func TestFileName(t *testing.T) {
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.FixedZone("X", 2*3600))
	tests := []struct {
		src    events.Source
		format client.ExportFormat
		want   string
	}{
		{events.Source{Schema: "lists", Query: "People"}, client.FormatTSV, "lists.People-20261016T073000Z.tsv"},
		{events.Source{Schema: "lists", Query: "People"}, client.FormatExcel, "lists.People-20261016T073000Z.xlsx"},
		{events.Source{Schema: "core"}, client.FormatTSV, "core-20261016T073000Z.tsv"},
		{events.Source{Schema: "a/b", Query: "my query"}, client.FormatTSV, "a_b.my_query-20261016T073000Z.tsv"},
		{events.Source{}, client.FormatTSV, "export-20261016T073000Z.tsv"},
	}
	for _, tt := range tests {
		if got := FileName(tt.src, tt.format, at); got != tt.want {
			t.Errorf("FileName(%+v, %s) = %q, want %q", tt.src, tt.format, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := ContentType(client.FormatTSV); got != "text/tab-separated-values" {
		t.Errorf("ContentType(tsv) = %q", got)
	}
	if got := ContentType(client.FormatExcel); !strings.Contains(got, "spreadsheetml") {
		t.Errorf("ContentType(excel) = %q", got)
	}
}

func TestRun(t *testing.T) {
	src := &fakeSource{body: "Key\tName\n1\tAnn\n"}
	a, b := &memDestination{}, &memDestination{}

	n, err := Run(context.Background(), src, client.FormatTSV, "people.tsv", a, b)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n != len(src.body) {
		t.Errorf("Run() = %d bytes, want %d", n, len(src.body))
	}
	for _, d := range []*memDestination{a, b} {
		if got := string(d.writes["people.tsv"]); got != src.body {
			t.Errorf("destination got %q", got)
		}
	}
	if src.calls.Load() != 1 || src.formats[0] != client.FormatTSV {
		t.Errorf("source called %d times with %v", src.calls.Load(), src.formats)
	}
}

func TestRun_DestinationErrorDoesNotStopOthers(t *testing.T) {
	errDisk := errors.New("disk full")
	bad, good := &memDestination{err: errDisk}, &memDestination{}

	_, err := Run(context.Background(), &fakeSource{body: "x"}, client.FormatTSV, "x.tsv", bad, good)
	if !errors.Is(err, errDisk) {
		t.Fatalf("Run() error = %v, want %v", err, errDisk)
	}
	if good.count() != 1 {
		t.Error("later destinations must still be written")
	}
}

func TestRun_SourceError(t *testing.T) {
	errExport := errors.New("export failed")
	d := &memDestination{}
	if _, err := Run(context.Background(), &fakeSource{err: errExport}, client.FormatTSV, "x.tsv", d); !errors.Is(err, errExport) {
		t.Fatalf("Run() error = %v", err)
	}
	if d.count() != 0 {
		t.Error("nothing may be written when the export fails")
	}
}

func TestFileDestination(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	d := NewFileDestination(dir)

	if err := d.Write(context.Background(), "people.tsv", []byte("v1")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := d.Write(context.Background(), "people.tsv", []byte("v2")); err != nil {
		t.Fatalf("second Write() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "people.tsv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v2" {
		t.Errorf("file = %q, want v2", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "people.tsv.tmp")); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestFileDestination_StripsDirectories(t *testing.T) {
	dir := t.TempDir()
	d := NewFileDestination(dir)
	if err := d.Write(context.Background(), "../../escape.tsv", []byte("x")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.tsv")); err != nil {
		t.Errorf("export not written inside the directory: %v", err)
	}
}
