// Package scheduler runs cron-driven autosaves of open documents into the
// document library.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/diagrama/internal/logging"
	"github.com/rendis/diagrama/internal/store"
)

// DefaultSpec is the autosave schedule when none is configured.
const DefaultSpec = "@every 5m"

// Target is a document the scheduler autosaves. session.Locked satisfies
// it, so autosave runs under the same lock as every other caller.
type Target interface {
	DocumentID() string
	Autosave(ctx context.Context) (bool, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithKeepRevisions prunes each document to its newest n revisions after a
// successful autosave. 0 keeps everything.
func WithKeepRevisions(n int) Option {
	return func(s *Scheduler) { s.keep = n }
}

// Scheduler autosaves registered targets on their cron schedules.
type Scheduler struct {
	library store.DocumentStore
	parser  cron.Parser
	cron    *cron.Cron
	logger  *slog.Logger
	keep    int

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	targets map[cron.EntryID]Target

	saving sync.Map // document id -> struct{} while an autosave runs
}

// NewScheduler creates a Scheduler. library may be nil when revisions are
// never pruned.
func NewScheduler(library store.DocumentStore, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Scheduler{
		library:  library,
		parser:   parser,
		cron:     cron.New(cron.WithParser(parser)),
		logger:   logger,
		targets:  make(map[cron.EntryID]Target),
		ctx:      context.Background(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Add schedules t with a cron expression or descriptor such as "@every 5m".
// An empty spec uses DefaultSpec.
func (s *Scheduler) Add(spec string, t Target) (cron.EntryID, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return 0, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	id, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		s.runTarget(ctx, t)
	})
	if err != nil {
		return 0, fmt.Errorf("schedule autosave: %w", err)
	}

	s.mu.Lock()
	s.targets[id] = t
	s.mu.Unlock()
	s.logger.Info("autosave scheduled", slog.String("document_id", t.DocumentID()), slog.String("spec", spec))
	return id, nil
}

// Remove unschedules a target.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
	s.mu.Lock()
	delete(s.targets, id)
	s.mu.Unlock()
}

// Start launches the cron loop. Jobs see a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.cron.Start()
	s.logger.Info("scheduler started")
	return nil
}

// Stop waits for running autosaves and shuts down the loop.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	cancel()

	s.logger.Info("scheduler stopped")
	return nil
}

// RunOnce autosaves every registered target now and returns how many wrote
// a revision. Used for a final save on shutdown.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	s.mu.Lock()
	targets := make([]Target, 0, len(s.targets))
	for _, t := range s.targets {
		targets = append(targets, t)
	}
	s.mu.Unlock()

	saved := 0
	for _, t := range targets {
		if s.runTarget(ctx, t) {
			saved++
		}
	}
	return saved
}

// runTarget autosaves t unless an autosave of the same document is still
// running.
func (s *Scheduler) runTarget(ctx context.Context, t Target) bool {
	docID := t.DocumentID()
	if !s.claim(docID) {
		return false
	}
	defer s.release(docID)

	ctx = logging.WithAction(logging.WithDocumentID(ctx, docID), "autosave")
	log := logging.LogWith(ctx, s.logger)

	saved, err := t.Autosave(ctx)
	if err != nil {
		log.Error("autosave failed", slog.String("error", err.Error()))
		return false
	}
	if !saved {
		log.Debug("autosave skipped: no changes")
		return false
	}
	if s.keep > 0 && s.library != nil {
		pruned, err := s.library.PruneRevisions(ctx, docID, s.keep)
		if err != nil {
			log.Warn("revision pruning failed", slog.String("error", err.Error()))
		} else if pruned > 0 {
			log.Debug("revisions pruned", slog.Int64("count", pruned))
		}
	}
	return true
}

// claim marks docID as saving. It fails while another autosave of the same
// document is running.
func (s *Scheduler) claim(docID string) bool {
	_, busy := s.saving.LoadOrStore(docID, struct{}{})
	return !busy
}

func (s *Scheduler) release(docID string) { s.saving.Delete(docID) }

// NextRun reports when spec fires next after from.
func (s *Scheduler) NextRun(spec string, from time.Time) (time.Time, error) {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	return sched.Next(from), nil
}

// NextAutosave reports when the target scheduled as id is saved next. It is
// zero before Start.
func (s *Scheduler) NextAutosave(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}
