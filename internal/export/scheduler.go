package export

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/rowstore/internal/client"
)

// Scheduler exports a source to its destinations at a fixed interval.
type Scheduler struct {
	src      Source
	format   client.ExportFormat
	dests    []Destination
	interval time.Duration
	logger   *slog.Logger
	// name picks the export name for each run; it defaults to FileName.
	name func(time.Time) string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. A fixed name overwrites the same export
// on every run; an empty one names each run by FileName.
func NewScheduler(src Source, format client.ExportFormat, dests []Destination, interval time.Duration, fixedName string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Scheduler{
		src:      src,
		format:   format,
		dests:    dests,
		interval: interval,
		logger:   logger,
	}
	if fixedName != "" {
		s.name = func(time.Time) string { return fixedName }
	} else {
		s.name = func(t time.Time) string { return FileName(src.Source(), format, t) }
	}
	return s
}

// Start runs an export immediately, then on each tick until ctx is done or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current export to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.once(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.once(ctx)
		}
	}
}

func (s *Scheduler) once(ctx context.Context) {
	name := s.name(time.Now())
	n, err := Run(ctx, s.src, s.format, name, s.dests...)
	if err != nil {
		s.logger.Error("export failed", "name", name, "err", err)
		return
	}
	s.logger.Info("export completed", "name", name, "destinations", len(s.dests), "bytes", n)
}
