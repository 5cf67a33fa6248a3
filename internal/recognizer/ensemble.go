package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/feature"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

// DefaultThreshold is the inclusive confidence a probe needs to be recognized.
const DefaultThreshold = 0.85

// ErrStalePlan is returned when a plan is committed after another update
// has already replaced the state it was staged from.
var ErrStalePlan = errors.New("training plan is stale")

// Config holds ensemble decision settings.
type Config struct {
	Threshold float64
	Policy    FusionPolicy
}

func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, Policy: DefaultFusionPolicy()}
}

// TrainReport lists which optional matchers hold a trained model after a
// training run and why the others do not.
type TrainReport struct {
	Active []string          `json:"active"`
	Failed map[string]string `json:"failed,omitempty"`
}

// Degraded reports whether only the baseline matcher is available.
func (r TrainReport) Degraded() bool {
	return len(r.Active) == 0
}

type state struct {
	training map[string][]imaging.NormalizedImage
	models   map[string]Model
}

// Plan is a staged training run. Nothing is visible to matching until
// Commit.
type Plan struct {
	base   *state
	next   *state
	Report TrainReport
}

// Ensemble runs every available matcher on a probe and keeps the single
// most confident opinion. There is no voting.
type Ensemble struct {
	extractor feature.Embedder
	baseline  *FeatureMatcher
	matchers  []Matcher
	threshold float64
	logger    *slog.Logger

	mu    sync.Mutex
	state atomic.Pointer[state]
}

// NewEnsemble wires the matchers. A nil gallery disables the baseline
// matcher. Matchers are consulted in the given order.
func NewEnsemble(extractor feature.Embedder, gallery *Gallery, cfg Config, logger *slog.Logger, matchers ...Matcher) *Ensemble {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Policy == (FusionPolicy{}) {
		cfg.Policy = DefaultFusionPolicy()
	}

	e := &Ensemble{
		extractor: extractor,
		matchers:  matchers,
		threshold: cfg.Threshold,
		logger:    logger.With("component", "recognizer"),
	}
	if gallery != nil {
		e.baseline = NewFeatureMatcher(gallery, cfg.Policy)
	}
	e.state.Store(&state{training: map[string][]imaging.NormalizedImage{}, models: map[string]Model{}})
	return e
}

func (e *Ensemble) Threshold() float64 { return e.threshold }

// Matchers returns the configured matcher names, baseline first.
func (e *Ensemble) Matchers() []string {
	var names []string
	if e.baseline != nil {
		names = append(names, e.baseline.Name())
	}
	for _, m := range e.matchers {
		names = append(names, m.Name())
	}
	return names
}

// Ready returns the optional matchers that currently hold a model.
func (e *Ensemble) Ready() []string {
	st := e.state.Load()
	var out []string
	for _, m := range e.matchers {
		if st.models[m.Name()] != nil {
			out = append(out, m.Name())
		}
	}
	return out
}

// Identities returns how many identities the optional matchers are trained on.
func (e *Ensemble) Identities() int {
	return len(e.state.Load().training)
}

// Stage merges samples into the retained training set, replacing any
// earlier samples of the same identities, drops the removed identities and
// fits every optional matcher on the result. Matchers that fail to fit are
// reported and left without a model.
func (e *Ensemble) Stage(ctx context.Context, samples []Sample, remove ...string) (*Plan, error) {
	base := e.state.Load()

	training := make(map[string][]imaging.NormalizedImage, len(base.training)+1)
	for id, imgs := range base.training {
		training[id] = imgs
	}
	for _, id := range remove {
		delete(training, id)
	}
	replaced := map[string]bool{}
	for _, s := range samples {
		if !replaced[s.IdentityID] {
			training[s.IdentityID] = nil
			replaced[s.IdentityID] = true
		}
		training[s.IdentityID] = append(training[s.IdentityID], s.Image)
	}

	all := flatten(training)
	next := &state{training: training, models: map[string]Model{}}
	report := TrainReport{Failed: map[string]string{}}

	for _, m := range e.matchers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		model, err := m.Fit(ctx, all)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			report.Failed[m.Name()] = err.Error()
			e.logger.WarnContext(ctx, "matcher training skipped",
				"matcher", m.Name(),
				"samples", len(all),
				"error", err,
			)
			continue
		}
		next.models[m.Name()] = model
		report.Active = append(report.Active, m.Name())
		e.logger.DebugContext(ctx, "matcher trained",
			"matcher", m.Name(),
			"samples", len(all),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if len(report.Active) == 0 && e.baseline == nil {
		return nil, domain.ErrMatcherUnavailable.WithError(fmt.Errorf("no matcher could be trained on %d samples", len(all)))
	}
	if len(report.Failed) == 0 {
		report.Failed = nil
	}
	return &Plan{base: base, next: next, Report: report}, nil
}

// Commit publishes a staged plan atomically.
func (e *Ensemble) Commit(p *Plan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.CompareAndSwap(p.base, p.next) {
		return ErrStalePlan
	}
	return nil
}

// Train stages and commits in one step.
func (e *Ensemble) Train(ctx context.Context, samples []Sample) (TrainReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.Stage(ctx, samples)
	if err != nil {
		return TrainReport{}, err
	}
	e.state.Store(p.next)
	return p.Report, nil
}

// Remove drops an identity from the training set and retrains.
func (e *Ensemble) Remove(ctx context.Context, identityID string) (TrainReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.Stage(ctx, nil, identityID)
	if err != nil {
		return TrainReport{}, err
	}
	e.state.Store(p.next)
	return p.Report, nil
}

// MatchProbe scores a normalized probe with every available matcher. The
// highest confidence wins; the probe is recognized when that confidence
// reaches the threshold. Matchers that fail at prediction time are
// recorded in the breakdown and skipped.
func (e *Ensemble) MatchProbe(ctx context.Context, img imaging.NormalizedImage) (domain.RecognitionResult, error) {
	st := e.state.Load()

	var (
		result = domain.RecognitionResult{Breakdown: []domain.MatcherScore{}}
		best   domain.MatcherScore
		have   bool
	)
	consider := func(score domain.MatcherScore) {
		result.Breakdown = append(result.Breakdown, score)
		if score.Err != "" || score.IdentityID == "" {
			return
		}
		if !have || score.Confidence > best.Confidence {
			best = score
			have = true
		}
	}

	for _, m := range e.matchers {
		if err := ctx.Err(); err != nil {
			return domain.RecognitionResult{}, err
		}
		model := st.models[m.Name()]
		if model == nil {
			continue
		}
		p, err := model.Predict(ctx, img)
		if err != nil {
			e.logger.WarnContext(ctx, "matcher prediction failed", "matcher", m.Name(), "error", err)
			consider(domain.MatcherScore{Matcher: m.Name(), Err: err.Error()})
			continue
		}
		consider(domain.MatcherScore{
			Matcher:     m.Name(),
			IdentityID:  p.IdentityID,
			Confidence:  feature.Clamp01(p.Confidence),
			RawDistance: p.Distance,
		})
	}

	if e.baseline != nil {
		vec, err := e.extractor.Extract(img)
		if err != nil {
			return domain.RecognitionResult{}, err
		}
		p, err := e.baseline.Match(vec)
		if err != nil {
			return domain.RecognitionResult{}, err
		}
		if p.IdentityID != "" {
			consider(domain.MatcherScore{
				Matcher:     e.baseline.Name(),
				IdentityID:  p.IdentityID,
				Confidence:  feature.Clamp01(p.Confidence),
				RawDistance: p.Distance,
			})
		}
	} else if len(result.Breakdown) == 0 {
		return domain.RecognitionResult{}, domain.ErrMatcherUnavailable
	}

	if !have {
		return result, nil
	}

	result.Candidate = best.IdentityID
	result.Confidence = best.Confidence
	if best.Confidence >= e.threshold {
		id := best.IdentityID
		result.IdentityID = &id
		result.Recognized = true
	}
	return result, nil
}

func flatten(training map[string][]imaging.NormalizedImage) []Sample {
	ids := make([]string, 0, len(training))
	for id := range training {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Sample
	for _, id := range ids {
		for _, img := range training[id] {
			out = append(out, Sample{IdentityID: id, Image: img})
		}
	}
	return out
}
