package export

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/rowstore/internal/client"
)

func TestSchedulerStartStop(t *testing.T) {
	src := &fakeSource{body: "Key\n1\n"}
	dest := &memDestination{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	sched := NewScheduler(src, client.FormatTSV, []Destination{dest}, 50*time.Millisecond, "people.tsv", logger)
	sched.Start(context.Background())

	// Initial export plus at least one tick.
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	if n := dest.count(); n < 2 {
		t.Fatalf("expected at least 2 writes, got %d", n)
	}
	dest.mu.Lock()
	defer dest.mu.Unlock()
	for _, name := range dest.order {
		if name != "people.tsv" {
			t.Errorf("write named %q, want the fixed name", name)
		}
	}

	after := src.calls.Load()
	time.Sleep(70 * time.Millisecond)
	if src.calls.Load() != after {
		t.Error("scheduler kept exporting after Stop")
	}
}

func TestScheduler_TimestampedNames(t *testing.T) {
	dest := &memDestination{}
	sched := NewScheduler(&fakeSource{body: "x"}, client.FormatExcel, []Destination{dest}, time.Hour, "", nil)
	sched.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	sched.Stop()

	if dest.count() != 1 {
		t.Fatalf("writes = %d, want the initial export only", dest.count())
	}
	name := dest.order[0]
	if !strings.HasPrefix(name, "lists.People-") || !strings.HasSuffix(name, ".xlsx") {
		t.Errorf("name = %q", name)
	}
}

func TestScheduler_ContextCancel(t *testing.T) {
	src := &fakeSource{err: errors.New("unreachable")}
	ctx, cancel := context.WithCancel(context.Background())
	sched := NewScheduler(src, client.FormatTSV, nil, 20*time.Millisecond, "x.tsv", nil)
	sched.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the parent context was canceled")
	}
	if src.calls.Load() < 2 {
		t.Errorf("failed exports must not stop the schedule, calls = %d", src.calls.Load())
	}
}
