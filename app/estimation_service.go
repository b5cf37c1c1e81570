package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"time"

	"kickchoice/domain/choice"
	"kickchoice/domain/core"
	"kickchoice/domain/run"
	"kickchoice/internal/config"
	"kickchoice/internal/dataset"
	"kickchoice/internal/errors"
	"kickchoice/internal/estimation"
	"kickchoice/internal/likelihood"
	"kickchoice/internal/model"
	"kickchoice/internal/penalty"
	"kickchoice/internal/report"
	"kickchoice/ports"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// CodeVersion is recorded in every run manifest
const CodeVersion = "v0.3.0"

var tracer = otel.Tracer("kickchoice/app")

// EstimationService runs estimations end to end: data preparation,
// likelihood compilation, optimization and persistence
type EstimationService struct {
	runs   ports.RunRepository
	events ports.RunEventPublisher
	config config.EstimationConfig
	slots  *semaphore.Weighted
}

// EstimateRequest describes one estimation. Zero values fall back to the
// service configuration.
type EstimateRequest struct {
	// Model names a catalogue variant. Ignored when Definition is set.
	Model string
	// Definition overrides the catalogue with a user-supplied model.
	Definition *model.Definition
	// Panel groups shots by shooter for a user-supplied Definition.
	Panel bool

	Table      *dataset.RawTable
	DataSource string

	DrawMethod    string
	Draws         int
	Seed          *uint64
	MaxIterations int
}

// NewEstimationService creates the service. runs may be nil, in which case
// results are returned but not stored.
func NewEstimationService(runs ports.RunRepository, cfg config.EstimationConfig) *EstimationService {
	slots := cfg.MaxConcurrentRuns
	if slots < 1 {
		slots = 1
	}
	return &EstimationService{
		runs:   runs,
		config: cfg,
		slots:  semaphore.NewWeighted(int64(slots)),
	}
}

// WithEvents publishes run lifecycle events to pub
func (s *EstimationService) WithEvents(pub ports.RunEventPublisher) *EstimationService {
	s.events = pub
	return s
}

func (s *EstimationService) publish(r *run.Run, t run.EventType, message string) {
	if s.events == nil {
		return
	}
	s.events.Publish(run.Event{
		RunID:     r.ID,
		Type:      t,
		ModelName: r.Manifest.ModelName,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// Estimate runs the request. A failed estimation still returns its run,
// marked failed, alongside the error. The request table is not modified.
func (s *EstimationService) Estimate(ctx context.Context, req EstimateRequest) (*run.Run, error) {
	if req.Table == nil || req.Table.Len() == 0 {
		return nil, errors.InvalidInput("estimation request has no data")
	}
	variant, err := s.variant(req)
	if err != nil {
		return nil, err
	}
	manifest, err := s.manifest(req, variant)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "EstimationService.Estimate", trace.WithAttributes(
		attribute.String("kickchoice.model", manifest.ModelName),
		attribute.String("kickchoice.draw_method", manifest.DrawMethod),
		attribute.Int("kickchoice.draws", manifest.Draws),
		attribute.Int("kickchoice.rows", req.Table.Len()),
	))
	defer span.End()

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(errors.ErrCanceled, "waiting for an estimation slot: "+err.Error())
	}
	defer s.slots.Release(1)

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	r := &run.Run{
		ID:          core.NewRunID(),
		Manifest:    manifest,
		Fingerprint: manifest.Fingerprint(),
		CreatedAt:   time.Now().UTC(),
	}
	span.SetAttributes(attribute.String("kickchoice.run_id", r.ID.String()))
	log.Printf("[EstimationService] run %s: model %s, %d rows from %q, fingerprint %s",
		r.ID, manifest.ModelName, req.Table.Len(), manifest.DataSource, r.Fingerprint.Short())
	s.publish(r, run.EventStarted, "")

	result, err := s.estimate(ctx, variant, req.Table.Clone(), manifest)
	if err != nil {
		r.Status = run.StatusFailed
		r.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, errors.GetCode(err))
		log.Printf("[EstimationService] run %s failed: %v", r.ID, err)
		if saveErr := s.save(context.WithoutCancel(ctx), r); saveErr != nil {
			log.Printf("[EstimationService] failed to store failed run %s: %v", r.ID, saveErr)
		}
		s.publish(r, run.EventFailed, err.Error())
		return r, err
	}

	r.Status = run.StatusCompleted
	r.Result = result
	span.SetAttributes(
		attribute.Float64("kickchoice.log_likelihood", result.LogLikelihood),
		attribute.Bool("kickchoice.converged", result.Converged),
	)
	if err := s.save(ctx, r); err != nil {
		return r, err
	}
	s.publish(r, run.EventCompleted, fmt.Sprintf("LL %.4f after %d iterations", result.LogLikelihood, result.Iterations))
	return r, nil
}

func (s *EstimationService) variant(req EstimateRequest) (penalty.Variant, error) {
	if req.Definition != nil {
		return penalty.Custom(*req.Definition, req.Panel), nil
	}
	name := req.Model
	if name == "" {
		name = s.config.Model
	}
	return penalty.Lookup(name)
}

func (s *EstimationService) manifest(req EstimateRequest, variant penalty.Variant) (run.Manifest, error) {
	spec, err := variant.Specification()
	if err != nil {
		return run.Manifest{}, errors.Wrapf(err, "model %s", variant.Name)
	}
	method := req.DrawMethod
	if method == "" {
		method = s.config.DrawMethod
	}
	drawMethod, err := likelihood.ParseDrawMethod(method)
	if err != nil {
		return run.Manifest{}, err
	}
	m := run.Manifest{
		ModelName:         spec.Name(),
		ModelDefinition:   spec.Definition().Fingerprint(),
		DataSource:        req.DataSource,
		DataHash:          HashTable(req.Table),
		DrawMethod:        string(drawMethod),
		Draws:             firstPositive(req.Draws, s.config.Draws),
		Seed:              s.config.Seed,
		MaxIterations:     firstPositive(req.MaxIterations, s.config.MaxIterations),
		GradientTolerance: s.config.GradientTolerance,
		CodeVersion:       CodeVersion,
	}
	if req.Seed != nil {
		m.Seed = *req.Seed
	}
	if err := m.Validate(); err != nil {
		return run.Manifest{}, err
	}
	return m, nil
}

func (s *EstimationService) estimate(ctx context.Context, variant penalty.Variant, table *dataset.RawTable, m run.Manifest) (*choice.Result, error) {
	spec, err := variant.Specification()
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", variant.Name)
	}
	prepared, err := variant.Prepare(table)
	if err != nil {
		return nil, err
	}
	for _, sc := range prepared.Scalings {
		log.Printf("[EstimationService] standardized %s (mean %.4f, sd %.4f)", sc.Column, sc.Mean, sc.StdDev)
	}

	data, err := likelihood.Compile(spec, prepared.Panel)
	if err != nil {
		return nil, err
	}
	var draws *likelihood.DrawSet
	if spec.HasRandomEffects() {
		draws, err = likelihood.GenerateDraws(likelihood.DrawMethod(m.DrawMethod), data.NumGroups(), m.Draws, spec.NumDrawDimensions(), m.Seed)
		if err != nil {
			return nil, err
		}
	}
	obj, err := likelihood.NewObjective(data, draws, s.config.Workers)
	if err != nil {
		return nil, err
	}

	estimator := estimation.NewEstimator(estimation.Options{
		MaxIterations:     m.MaxIterations,
		GradientTolerance: m.GradientTolerance,
		Verbose:           s.config.Verbose,
	})
	result, err := estimator.Estimate(ctx, obj, spec.Registry())
	if err != nil {
		return nil, err
	}
	result.ModelName = spec.Name()
	return result, nil
}

func (s *EstimationService) save(ctx context.Context, r *run.Run) error {
	if s.runs == nil {
		return nil
	}
	if err := s.runs.Save(ctx, r); err != nil {
		return errors.Wrapf(err, "failed to store run %s", r.ID)
	}
	return nil
}

// Get returns a stored run
func (s *EstimationService) Get(ctx context.Context, id core.RunID) (*run.Run, error) {
	if s.runs == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "run %s: persistence is disabled", id)
	}
	return s.runs.Get(ctx, id)
}

// List returns stored runs, newest first
func (s *EstimationService) List(ctx context.Context, filters ports.RunFilters) ([]run.Summary, error) {
	if s.runs == nil {
		return []run.Summary{}, nil
	}
	return s.runs.List(ctx, filters)
}

// Compare loads completed runs and compares their fits
func (s *EstimationService) Compare(ctx context.Context, ids []core.RunID) (*report.Comparison, error) {
	if len(ids) < 2 {
		return nil, errors.InvalidInput("comparison needs at least two runs")
	}
	results := make([]*choice.Result, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if r.Result == nil {
			return nil, errors.Newf(errors.CodeInvalidInput, "run %s has no result (status %s)", id, r.Status)
		}
		results = append(results, r.Result)
	}
	return report.Compare(results), nil
}

// Models lists the catalogue variants
func (s *EstimationService) Models() []penalty.Variant {
	var out []penalty.Variant
	for _, name := range penalty.Names() {
		v, _ := penalty.Lookup(name)
		out = append(out, v)
	}
	return out
}

// HashTable hashes a table's headers and cells in order
func HashTable(t *dataset.RawTable) core.Hash {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(t.Headers)
	_ = w.WriteAll(t.Records())
	return core.NewHash(buf.Bytes())
}

func firstPositive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
