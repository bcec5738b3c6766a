package deckservice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/deckdoctor/internal/analysis"
	"github.com/starford/deckdoctor/internal/apperr"
	"github.com/starford/deckdoctor/internal/llm"
	"github.com/starford/deckdoctor/internal/models"
)

// RunError describes why a run failed.
type RunError struct {
	Message    string        `json:"message"`
	Kind       llm.ErrorKind `json:"kind,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	RetryAfter int           `json:"retry_after,omitempty"`
}

func newRunError(err error) *RunError {
	re := &RunError{Message: err.Error()}
	var le *llm.Error
	if errors.As(err, &le) {
		re.Kind = le.Kind
		re.Suggestion = le.Suggestion
		re.RetryAfter = le.RetryAfter
	}
	return re
}

// Run is one deck analysis.
type Run struct {
	ID       string
	DeckID   int64
	DeckName string

	mu         sync.Mutex
	status     analysis.Status
	total      int
	done       int
	results    []models.CardAnalysis
	err        *RunError
	cancelled  bool
	startedAt  time.Time
	finishedAt time.Time
	cancel     context.CancelFunc
}

// RunSnapshot is a point-in-time copy of a Run.
type RunSnapshot struct {
	ID              string                `json:"id"`
	DeckID          int64                 `json:"deck_id"`
	DeckName        string                `json:"deck_name"`
	Status          analysis.Status       `json:"status"`
	Total           int                   `json:"total"`
	Done            int                   `json:"done"`
	CancelRequested bool                  `json:"cancel_requested,omitempty"`
	Results         []models.CardAnalysis `json:"results,omitempty"`
	Error           *RunError             `json:"error,omitempty"`
	StartedAt       time.Time             `json:"started_at"`
	FinishedAt      *time.Time            `json:"finished_at,omitempty"`
}

func (r *Run) snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := RunSnapshot{
		ID:              r.ID,
		DeckID:          r.DeckID,
		DeckName:        r.DeckName,
		Status:          r.status,
		Total:           r.total,
		Done:            r.done,
		CancelRequested: r.cancelled,
		Results:         append([]models.CardAnalysis(nil), r.results...),
		Error:           r.err,
		StartedAt:       r.startedAt,
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		snap.FinishedAt = &t
	}
	return snap
}

func (r *Run) progress(p analysis.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = p.Total
	r.done = p.Done
	if p.Analysis != nil {
		r.results = append(r.results, *p.Analysis)
	}
}

func (r *Run) finish(res analysis.RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = res.Status
	r.results = res.Results
	r.done = len(res.Results)
	r.finishedAt = time.Now().UTC()
	if res.Err != nil {
		r.err = newRunError(res.Err)
	}
}

func (r *Run) finishedTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finishedAt
}

func (r *Run) requestCancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return fmt.Errorf("run %s already %s: %w", r.ID, r.status, apperr.ErrConflict)
	}
	r.cancelled = true
	r.cancel()
	return nil
}

// Finished runs stay queryable until they are older than finishedRunTTL or
// pushed out by newer ones beyond maxFinishedRuns.
const (
	finishedRunTTL  = time.Hour
	maxFinishedRuns = 50
)

// registry tracks runs by id and enforces one active run per deck.
type registry struct {
	mu       sync.Mutex
	runs     map[string]*Run
	active   map[int64]string
	finished []*Run // oldest first
	ttl      time.Duration
	keep     int
	now      func() time.Time
}

func newRegistry() *registry {
	return &registry{
		runs:   make(map[string]*Run),
		active: make(map[int64]string),
		ttl:    finishedRunTTL,
		keep:   maxFinishedRuns,
		now:    time.Now,
	}
}

func (g *registry) start(deck *models.Deck, cancel context.CancelFunc) (*Run, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evict()
	if id, busy := g.active[deck.ID]; busy {
		return nil, fmt.Errorf("deck %q already has run %s: %w", deck.Name, id, apperr.ErrConflict)
	}
	run := &Run{
		ID:        uuid.NewString(),
		DeckID:    deck.ID,
		DeckName:  deck.Name,
		status:    analysis.StatusRunning,
		startedAt: g.now().UTC(),
		cancel:    cancel,
	}
	g.runs[run.ID] = run
	g.active[deck.ID] = run.ID
	return run, nil
}

// release marks a finished run inactive and keeps it for later lookups.
func (g *registry) release(run *Run) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[run.DeckID] == run.ID {
		delete(g.active, run.DeckID)
	}
	g.finished = append(g.finished, run)
	g.evict()
}

// evict drops expired finished runs and the oldest ones beyond the limit.
// Callers hold g.mu.
func (g *registry) evict() {
	cutoff := g.now().Add(-g.ttl)
	n := 0
	for n < len(g.finished) {
		run := g.finished[n]
		if len(g.finished)-n <= g.keep && run.finishedTime().After(cutoff) {
			break
		}
		delete(g.runs, run.ID)
		n++
	}
	g.finished = append(g.finished[:0:0], g.finished[n:]...)
}

func (g *registry) get(id string) (*Run, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	run, ok := g.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, apperr.ErrNotFound)
	}
	return run, nil
}

// publish sends a run event with a compact payload.
func (s *Service) publish(kind string, run *Run, p *analysis.Progress) {
	if s.pub == nil {
		return
	}
	snap := run.snapshot()
	snap.Results = nil
	payload := map[string]any{"run": snap}
	if p != nil {
		payload["progress"] = p
	}
	s.pub.PublishRun(kind, run.ID, payload)
}
