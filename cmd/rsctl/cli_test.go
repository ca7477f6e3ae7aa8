package main

import (
	"bytes"
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// fakeQueryService serves lists.People and lists.Colors from memory.
type fakeQueryService struct {
	mu      sync.Mutex
	people  map[float64]map[string]any
	nextKey float64
	deleted []any
	exports []string
}

func newFakeQueryService() *fakeQueryService {
	return &fakeQueryService{
		people: map[float64]map[string]any{
			1: {"Key": 1.0, "Name": "Ann", "Color": 2.0},
			2: {"Key": 2.0, "Name": "Bob", "Color": nil},
		},
		nextKey: 100,
	}
}

func (f *fakeQueryService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.HasSuffix(r.URL.Path, "/selectRows.api"):
		if r.URL.Query().Get("query.queryName") == "Colors" {
			writeTestJSON(w, map[string]any{
				"rowCount": 2,
				"rows":     []any{map[string]any{"Key": 2, "Label": "Blue"}, map[string]any{"Key": 1, "Label": "Red"}},
				"metaData": map[string]any{"id": "Key", "fields": []any{
					map[string]any{"name": "Key", "type": "int"},
					map[string]any{"name": "Label", "type": "string"},
				}},
			})
			return
		}
		var rows []any
		for _, k := range []float64{1, 2, 100, 101} {
			if row, ok := f.people[k]; ok {
				rows = append(rows, row)
			}
		}
		writeTestJSON(w, map[string]any{
			"rowCount": len(rows),
			"rows":     rows,
			"metaData": map[string]any{"id": "Key", "title": "People", "fields": []any{
				map[string]any{"name": "Key", "type": "int"},
				map[string]any{"name": "Name", "type": "string", "required": true},
				map[string]any{"name": "Color", "type": "int", "lookup": map[string]any{
					"schemaName": "lists", "queryName": "Colors", "keyColumn": "Key", "displayColumn": "Label",
				}},
			}},
		})
	case strings.HasSuffix(r.URL.Path, "/saveRows.api"):
		var req struct {
			Commands []struct {
				Command string `json:"command"`
				Rows    []struct {
					Values  map[string]any `json:"values"`
					OldKeys map[string]any `json:"oldKeys"`
				} `json:"rows"`
			} `json:"commands"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		var result []any
		for _, cmd := range req.Commands {
			var rows []any
			for _, row := range cmd.Rows {
				key, _ := row.OldKeys["Key"].(float64)
				if cmd.Command == "insertWithKeys" {
					key = f.nextKey
					f.nextKey++
					f.people[key] = map[string]any{"Key": key}
				}
				for k, v := range row.Values {
					f.people[key][k] = v
				}
				f.people[key]["Key"] = key
				rows = append(rows, map[string]any{"values": f.people[key], "oldKeys": row.OldKeys})
			}
			result = append(result, map[string]any{"command": cmd.Command, "rows": rows})
		}
		writeTestJSON(w, map[string]any{"result": result})
	case strings.HasSuffix(r.URL.Path, "/deleteRows.api"):
		var req struct {
			Rows []map[string]any `json:"rows"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, row := range req.Rows {
			f.deleted = append(f.deleted, row["Key"])
			delete(f.people, row["Key"].(float64))
		}
		writeTestJSON(w, map[string]any{"rowsAffected": len(req.Rows)})
	case strings.HasSuffix(r.URL.Path, "/exportRowsTsv.view"), strings.HasSuffix(r.URL.Path, "/exportRowsExcel.view"):
		f.exports = append(f.exports, r.URL.Path)
		w.Header().Set("Content-Type", "text/tab-separated-values")
		_, _ = w.Write([]byte("Key\tName\n1\tAnn\n"))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeQueryService) person(key float64) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.people[key])
}

func (f *fakeQueryService) counts() (people, deleted, exports int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.people), len(f.deleted), len(f.exports)
}

func writeTestJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// resetFlags restores every flag of cmd and its children to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// isolateEnv clears the settings rsctl reads from the environment and the
// remotes file.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"ROWSTORE_URL", "ROWSTORE_TOKEN", "ROWSTORE_CONTAINER", "ROWSTORE_TIMEOUT", "ROWSTORE_NATS_URL", "NO_COLOR", "CLICOLOR", "CLICOLOR_FORCE"} {
		t.Setenv(k, "")
	}
	remoteOnce = sync.Once{}
	remoteCache = Remote{}
	resetFlags(rootCmd)
}

// runCLI executes rsctl against srv with a clean environment.
func runCLI(t *testing.T, srv *httptest.Server, args ...string) (string, string, error) {
	t.Helper()
	isolateEnv(t)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--url", srv.URL, "--container", "/home", "-s", "lists", "-q", "People"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func startFakeService(t *testing.T) (*fakeQueryService, *httptest.Server) {
	t.Helper()
	svc := newFakeQueryService()
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)
	return svc, srv
}

func TestCLI_Rows(t *testing.T) {
	_, srv := startFakeService(t)

	out, _, err := runCLI(t, srv, "rows")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	for _, want := range []string{"KEY", "NAME", "Ann", "Bob", "2 rows (2 total)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, _, err = runCLI(t, srv, "rows", "--json")
	if err != nil {
		t.Fatalf("rows --json: %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(rows) != 2 || rows[0]["Name"] != "Ann" || rows[0]["Key"] != 1.0 {
		t.Errorf("rows = %v", rows)
	}
}

func TestCLI_RowsRequiresQuery(t *testing.T) {
	_, srv := startFakeService(t)
	isolateEnv(t)
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"--url", srv.URL, "rows"})
	if err := rootCmd.ExecuteContext(context.Background()); err == nil || !strings.Contains(err.Error(), "--schema") {
		t.Fatalf("error = %v, want a missing --schema error", err)
	}
}

func TestCLI_InsertUpdateDelete(t *testing.T) {
	svc, srv := startFakeService(t)

	out, _, err := runCLI(t, srv, "insert", "--set", "Name=Cy", "--set", "Color=1")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !strings.Contains(out, "100") || !strings.Contains(out, "Cy") {
		t.Errorf("insert output:\n%s", out)
	}
	if row := svc.person(100); row["Name"] != "Cy" || row["Color"] != 1.0 {
		t.Errorf("stored row = %v", row)
	}

	if _, _, err := runCLI(t, srv, "update", "1", "--set", "Name=Annie"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if row := svc.person(1); row["Name"] != "Annie" {
		t.Errorf("updated row = %v", row)
	}

	out, _, err = runCLI(t, srv, "delete", "2", "100")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, deleted, _ := svc.counts(); !strings.Contains(out, "deleted 2 rows") || deleted != 2 {
		t.Errorf("delete output %q, deleted %d", out, deleted)
	}
}

func TestCLI_InsertMissingRequired(t *testing.T) {
	svc, srv := startFakeService(t)

	_, stderr, err := runCLI(t, srv, "insert", "--set", "Color=1")
	if err == nil {
		t.Fatal("expected an error for a missing required field")
	}
	if !strings.Contains(stderr, "Name") {
		t.Errorf("stderr should name the field:\n%s", stderr)
	}
	if people, _, _ := svc.counts(); people != 2 {
		t.Error("invalid row must not be sent")
	}
}

func TestCLI_UpdateErrors(t *testing.T) {
	_, srv := startFakeService(t)

	if _, _, err := runCLI(t, srv, "update", "99", "--set", "Name=x"); err == nil || !strings.Contains(err.Error(), "no row") {
		t.Errorf("update unknown key error = %v", err)
	}
	if _, _, err := runCLI(t, srv, "update", "1"); err == nil {
		t.Error("update without --set should fail")
	}
	if _, _, err := runCLI(t, srv, "update", "1", "--set", "Nope=1"); err == nil {
		t.Error("update of an unknown field should fail")
	}
}

func TestCLI_Lookup(t *testing.T) {
	_, srv := startFakeService(t)

	out, _, err := runCLI(t, srv, "lookup", "Color", "--include-null")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 || !strings.Contains(lines[1], "[none]") || !strings.Contains(lines[2], "Blue") {
		t.Errorf("lookup output:\n%s", out)
	}

	if _, _, err := runCLI(t, srv, "lookup", "Name"); err == nil {
		t.Error("lookup of a plain column should fail")
	}
}

func TestCLI_Export(t *testing.T) {
	svc, srv := startFakeService(t)

	out, _, err := runCLI(t, srv, "export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out != "Key\tName\n1\tAnn\n" {
		t.Errorf("stdout = %q", out)
	}

	dir := t.TempDir()
	if _, _, err := runCLI(t, srv, "export", "--out", dir, "--name", "people.tsv"); err != nil {
		t.Fatalf("export --out: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "people.tsv"))
	if err != nil || string(data) != "Key\tName\n1\tAnn\n" {
		t.Errorf("file = %q, %v", data, err)
	}
	if _, _, exports := svc.counts(); exports != 2 {
		t.Errorf("exports = %d, want 2", exports)
	}

	if _, _, err := runCLI(t, srv, "export", "--format", "csv"); err == nil {
		t.Error("unknown format should fail")
	}
}
