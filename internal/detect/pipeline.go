// Package detect ties the stages together: record sanitization, URL
// normalization, feature extraction, the two-stage scorer, the rule
// override engine, and the threshold gate. One call in, one verdict per
// record out, order preserved.
package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/logsieve/logsieve/internal/accesslog"
	"github.com/logsieve/logsieve/internal/attack"
	"github.com/logsieve/logsieve/internal/features"
	"github.com/logsieve/logsieve/internal/model"
	"github.com/logsieve/logsieve/internal/normalize"
	"github.com/logsieve/logsieve/internal/observability"
	"github.com/logsieve/logsieve/internal/patterns"
	"github.com/logsieve/logsieve/internal/policy"
	"github.com/logsieve/logsieve/internal/registry"
	"github.com/logsieve/logsieve/internal/rules"
)

// DefaultWorkers bounds per-batch verdict assembly concurrency.
const DefaultWorkers = 8

// Pipeline is the assembled detector. Immutable after New and safe for
// concurrent batches.
type Pipeline struct {
	registry   *registry.Registry
	table      *patterns.Table
	engine     *rules.Engine
	thresholds policy.Thresholds
	logger     *slog.Logger
	metrics    *observability.Metrics
	workers    int
}

// Options configures pipeline construction.
type Options struct {
	Registry   *registry.Registry
	Table      *patterns.Table
	Thresholds policy.Thresholds
	Flags      policy.Flags
	Factors    policy.Factors
	CacheSize  int
	Workers    int
	Logger     *slog.Logger
	Metrics    *observability.Metrics
}

// New validates the policy pieces and assembles a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Registry == nil {
		return nil, errors.New("detect: registry is required")
	}
	if opts.Table == nil {
		return nil, errors.New("detect: pattern table is required")
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	if err := opts.Factors.Validate(); err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	engine, err := rules.New(opts.Table, opts.Flags, opts.Factors, opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	return &Pipeline{
		registry:   opts.Registry,
		table:      opts.Table,
		engine:     engine,
		thresholds: opts.Thresholds,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		workers:    opts.Workers,
	}, nil
}

// Engine exposes the rule engine, mainly for cache statistics.
func (p *Pipeline) Engine() *rules.Engine { return p.engine }

// Predict classifies a batch of records and returns one verdict per record
// in input order. Scoring unavailability fails open: a missing model or an
// internal panic yields an all-benign batch and a logged error, never a
// dropped batch. A feature-column mismatch with the active bundle is a
// configuration fault and is the one condition returned as an error.
func (p *Pipeline) Predict(ctx context.Context, records []accesslog.Record) (verdicts []accesslog.Verdict, err error) {
	start := time.Now()
	defer func() {
		p.metrics.ObserveBatch(time.Since(start).Seconds())
		if r := recover(); r != nil {
			p.logger.Error("prediction panic, answering benign",
				"panic", r, "stack", string(debug.Stack()))
			p.metrics.ObserveFailOpen()
			verdicts = benignBatch(len(records))
			err = nil
		}
	}()

	if len(records) == 0 {
		return []accesslog.Verdict{}, nil
	}

	bundle, err := p.registry.LoadActive()
	if err != nil {
		if errors.Is(err, registry.ErrNoModel) {
			p.logger.Warn("no trained model available, answering benign", "records", len(records))
		} else {
			p.logger.Error("model load failed, answering benign", "error", err)
		}
		p.metrics.ObserveFailOpen()
		return benignBatch(len(records)), nil
	}

	sanitized := make([]accesslog.Record, len(records))
	urls := make([]string, len(records))
	for i, rec := range records {
		sanitized[i] = rec.Sanitized()
		urls[i] = normalize.Normalize(sanitized[i].URL)
	}

	extractor := features.New(p.table, bundle.MethodEncoder, bundle.AgentEncoder)
	if err := extractor.ValidateColumns(bundle.Meta.PatternCols); err != nil {
		return nil, fmt.Errorf("feature columns incompatible with model %s: %w", bundle.Meta.Version, err)
	}
	batch, err := extractor.Extract(sanitized, urls)
	if err != nil {
		return nil, fmt.Errorf("feature extraction: %w", err)
	}

	binary, err := bundle.ScoreBinary(batch)
	if err != nil {
		return nil, fmt.Errorf("binary scoring: %w", err)
	}

	var selected []int
	for i, prob := range binary {
		if prob >= p.thresholds.Binary {
			selected = append(selected, i)
		}
	}
	typeScores, err := bundle.ScoreType(batch, selected)
	if err != nil {
		// Stage 2 failure degrades to untyped verdicts, it does not
		// drop the batch.
		p.logger.Error("type scoring failed, continuing untyped", "error", err)
		typeScores = make([]model.TypeScore, batch.N)
	}

	verdicts = make([]accesslog.Verdict, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range records {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			verdicts[i] = p.classifyOne(sanitized[i], urls[i], binary[i], typeScores[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, v := range verdicts {
		p.metrics.ObservePrediction(v.IsAttack, v.AttackType)
	}
	return verdicts, nil
}

// classifyOne merges the classifier nomination with the rule outcome and
// applies the threshold gate and the two adjustment stages.
func (p *Pipeline) classifyOne(rec accesslog.Record, url string, binaryProb float64, ts model.TypeScore) accesslog.Verdict {
	path, query := normalize.SplitPathQuery(url)
	label, score := ts.Label, ts.Score
	if label == "" {
		score = binaryProb
	}

	rctx := &rules.Context{
		URL:       url,
		Path:      path,
		Query:     query,
		Method:    rec.Method,
		UserAgent: strings.ToLower(rec.UserAgent),
		Status:    int(rec.StatusCode),
		Label:     label,
		Score:     score,
	}

	out := p.engine.Evaluate(rctx)
	var isAttack bool
	switch {
	case out.Fired && out.Override:
		p.metrics.ObserveRuleHit(out.Rule)
		label, score = out.Label, out.Score
		isAttack = label != ""
	case out.Fired:
		p.metrics.ObserveRuleHit(out.Rule)
		label, score = out.Label, out.Score
		isAttack = label != "" && binaryProb >= p.thresholds.Binary &&
			p.thresholds.Accept(label, score)
	default:
		isAttack = binaryProb >= p.thresholds.Binary &&
			(label == "" || p.thresholds.Accept(label, score))
	}

	if boosted, ok := p.engine.Boost(rctx, score); ok {
		score = boosted
		label = attack.Webshell
		isAttack = p.thresholds.Accept(label, score)
	}

	if damped, ok := p.engine.Dampen(rctx, score); ok {
		score = damped
		if isAttack {
			if label != "" {
				isAttack = p.thresholds.Accept(label, score)
			} else {
				isAttack = score >= p.thresholds.Binary
			}
		}
	}

	if !isAttack {
		return accesslog.Verdict{IsAttack: false, AttackScore: score}
	}
	if label == "" {
		label = p.engine.FallbackLabel(url)
	}
	return accesslog.Verdict{IsAttack: true, AttackScore: score, AttackType: label}
}

func benignBatch(n int) []accesslog.Verdict {
	out := make([]accesslog.Verdict, n)
	for i := range out {
		out[i] = accesslog.Benign
	}
	return out
}
