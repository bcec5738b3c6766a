package analysis

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/deckdoctor/internal/models"
)

// Status is the state of a deck analysis run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the run has finished.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Default run settings.
const (
	DefaultMaxAnalysisCards = 100
	DefaultRequestDelay     = 2000 * time.Millisecond
	DefaultBatchSize        = 5
)

// Config controls a deck run.
type Config struct {
	MaxAnalysisCards int
	Concurrent       bool
	RequestDelay     time.Duration
	BatchSize        int
}

// ProgressKind tells what a Progress event reports.
type ProgressKind string

const (
	ProgressCached    ProgressKind = "cached"
	ProgressStarted   ProgressKind = "started"
	ProgressCompleted ProgressKind = "completed"
)

// Progress is emitted as a run advances. Analysis is set for cached and
// completed events.
type Progress struct {
	Kind     ProgressKind         `json:"kind"`
	CardID   int64                `json:"card_id"`
	Done     int                  `json:"done"`
	Total    int                  `json:"total"`
	Analysis *models.CardAnalysis `json:"analysis,omitempty"`
}

// ProgressFunc receives progress events on the run's goroutine.
type ProgressFunc func(Progress)

// RunRequest is the input of a deck run. Existing maps card IDs to results
// from an earlier run; entries without an error are not re-analyzed.
type RunRequest struct {
	Cards    []CardInput
	Existing map[int64]models.CardAnalysis
}

// RunResult is what a run accumulated. Results are never discarded on
// failure or cancellation.
type RunResult struct {
	Status  Status
	Results []models.CardAnalysis
	Err     error
}

// Orchestrator drives deck runs over a CardAnalyzer.
type Orchestrator struct {
	analyzer CardAnalyzer
	cfg      Config
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator applies defaults to cfg. A negative RequestDelay disables
// the delay.
func NewOrchestrator(a CardAnalyzer, cfg Config) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxAnalysisCards <= 0 {
		cfg.MaxAnalysisCards = DefaultMaxAnalysisCards
	}
	if cfg.RequestDelay < 0 {
		cfg.RequestDelay = 0
	}
	return &Orchestrator{analyzer: a, cfg: cfg, sleep: sleepCtx}
}

// Run analyzes the cards of one deck. Cancelling ctx stops the run at the
// next card (serial) or batch (concurrent) boundary and returns
// StatusCancelled with a nil error. In-flight provider calls are not
// aborted. The first analysis error ends the run with StatusFailed; the
// error is both returned and stored in the result.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest, progress ProgressFunc) (RunResult, error) {
	if progress == nil {
		progress = func(Progress) {}
	}
	cards := req.Cards
	if len(cards) > o.cfg.MaxAnalysisCards {
		cards = cards[:o.cfg.MaxAnalysisCards]
	}

	r := &runState{total: len(cards), progress: progress}
	var fresh []CardInput
	for _, in := range cards {
		if prev, ok := req.Existing[in.Card.ID]; ok && prev.OK() {
			r.add(ProgressCached, in.Card.ID, &prev)
			continue
		}
		fresh = append(fresh, in)
	}
	slog.Debug("analysis run",
		slog.Int("total", len(cards)),
		slog.Int("cached", len(r.results)),
		slog.Int("new", len(fresh)),
		slog.Bool("concurrent", o.cfg.Concurrent),
	)

	if o.cfg.Concurrent {
		return r.finish(o.runBatches(ctx, fresh, r))
	}
	return r.finish(o.runSerial(ctx, fresh, r))
}

func (o *Orchestrator) runSerial(ctx context.Context, cards []CardInput, r *runState) (Status, error) {
	for i, in := range cards {
		if ctx.Err() != nil {
			return StatusCancelled, nil
		}
		r.emit(ProgressStarted, in.Card.ID, nil)
		slog.Debug("analyzing card", slog.Int64("card_id", in.Card.ID))

		res, err := o.analyzer.Analyze(context.WithoutCancel(ctx), in)
		if err != nil {
			slog.Warn("card analysis failed", slog.Int64("card_id", in.Card.ID), slog.String("error", err.Error()))
			return StatusFailed, err
		}
		r.add(ProgressCompleted, in.Card.ID, &res)

		if i < len(cards)-1 {
			if err := o.sleep(ctx, o.cfg.RequestDelay); err != nil {
				return StatusCancelled, nil
			}
		}
	}
	return StatusCompleted, nil
}

func (o *Orchestrator) runBatches(ctx context.Context, cards []CardInput, r *runState) (Status, error) {
	size := o.cfg.BatchSize
	for start := 0; start < len(cards); start += size {
		if ctx.Err() != nil {
			return StatusCancelled, nil
		}
		batch := cards[start:min(start+size, len(cards))]
		slog.Debug("analyzing batch", slog.Int("start", start), slog.Int("size", len(batch)))

		results := make([]models.CardAnalysis, len(batch))
		done := make([]bool, len(batch))
		var g errgroup.Group
		g.SetLimit(size)
		for j, in := range batch {
			r.emit(ProgressStarted, in.Card.ID, nil)
			g.Go(func() error {
				res, err := o.analyzer.Analyze(context.WithoutCancel(ctx), in)
				if err != nil {
					return err
				}
				results[j], done[j] = res, true
				return nil
			})
		}
		err := g.Wait()

		if ctx.Err() != nil {
			return StatusCancelled, nil
		}
		for j := range batch {
			if done[j] {
				r.add(ProgressCompleted, batch[j].Card.ID, &results[j])
			}
		}
		if err != nil {
			slog.Warn("batch analysis failed", slog.Int("start", start), slog.String("error", err.Error()))
			return StatusFailed, err
		}

		if start+size < len(cards) {
			if err := o.sleep(ctx, o.cfg.RequestDelay); err != nil {
				return StatusCancelled, nil
			}
		}
	}
	return StatusCompleted, nil
}

type runState struct {
	total    int
	results  []models.CardAnalysis
	progress ProgressFunc
}

func (r *runState) add(kind ProgressKind, cardID int64, res *models.CardAnalysis) {
	r.results = append(r.results, *res)
	r.emit(kind, cardID, res)
}

func (r *runState) emit(kind ProgressKind, cardID int64, res *models.CardAnalysis) {
	r.progress(Progress{Kind: kind, CardID: cardID, Done: len(r.results), Total: r.total, Analysis: res})
}

func (r *runState) finish(status Status, err error) (RunResult, error) {
	return RunResult{Status: status, Results: r.results, Err: err}, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
