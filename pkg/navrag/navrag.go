// Package navrag is the collision-avoidance reasoning engine: it classifies a
// navigational situation, retrieves the governing COLREGs rules and tribunal
// precedents from a knowledge store, asks a language model for a narrative
// analysis, and synthesizes a ranked action plan with a reasoning trace.
package navrag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cognicore/navrag/pkg/navrag/action"
	"github.com/cognicore/navrag/pkg/navrag/classify"
	"github.com/cognicore/navrag/pkg/navrag/internalerr"
	"github.com/cognicore/navrag/pkg/navrag/metrics"
	"github.com/cognicore/navrag/pkg/navrag/narrative"
	"github.com/cognicore/navrag/pkg/navrag/rank"
	"github.com/cognicore/navrag/pkg/navrag/retrieve"
	"github.com/cognicore/navrag/pkg/navrag/situation"
	"github.com/cognicore/navrag/pkg/navrag/store"
	"github.com/cognicore/navrag/pkg/navrag/trace"
)

var tracer = otel.Tracer("navrag")

// Options configures an Engine. Only Store is required.
type Options struct {
	Store      store.Store
	Classifier *classify.Classifier
	Generator  narrative.Generator
	Actions    *action.Table
	Logger     *zap.Logger
	Metrics    *metrics.Collector
	Verbosity  trace.Verbosity

	RuleLimit        int
	CaseLimit        int
	QueryTimeout     time.Duration
	NarrativeTimeout time.Duration
	MaxPromptBytes   int
	Temperature      float32
	MaxTokens        int
}

// Engine runs analyses. It holds only immutable collaborators and is safe
// for concurrent use; every call gets its own trace.
type Engine struct {
	store      store.Store
	classifier *classify.Classifier
	retriever  *retrieve.Retriever
	narrator   *narrative.Analyzer
	synth      *action.Synthesizer
	logger     *zap.Logger
	metrics    *metrics.Collector
	verbosity  trace.Verbosity
	ids        *trace.IDSource
}

// New creates an Engine with the given dependencies
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: engine requires a store", internalerr.ErrInvalidConfig)
	}
	if opts.Classifier == nil {
		opts.Classifier = classify.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Verbosity != trace.VerbosityFull {
		opts.Verbosity = trace.VerbositySummary
	}

	return &Engine{
		store:      opts.Store,
		classifier: opts.Classifier,
		retriever: retrieve.NewRetriever(opts.Store, retrieve.Config{
			RuleLimit:    opts.RuleLimit,
			CaseLimit:    opts.CaseLimit,
			QueryTimeout: opts.QueryTimeout,
		}),
		narrator: narrative.NewAnalyzer(opts.Generator, narrative.Config{
			Params:         narrative.Params{Temperature: opts.Temperature, MaxTokens: opts.MaxTokens},
			Timeout:        opts.NarrativeTimeout,
			MaxPromptBytes: opts.MaxPromptBytes,
		}),
		synth:     action.NewSynthesizer(opts.Actions),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		verbosity: opts.Verbosity,
		ids:       trace.NewIDSource(),
	}, nil
}

// Close cleanly shuts down the engine's store
func (e *Engine) Close() error {
	return e.store.Close()
}

// Ping checks that the knowledge store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", internalerr.ErrStoreUnavailable, err)
	}
	return nil
}

// Support reports graph support for every tag the classifier can produce.
func (e *Engine) Support(ctx context.Context) (retrieve.GraphContext, error) {
	return e.retriever.Context(ctx, e.classifier.Tags())
}

// Response is the result of one analysis.
type Response struct {
	AnalysisID        string                `json:"analysis_id"`
	ScenarioID        string                `json:"scenario_id,omitempty"`
	Situation         situation.Situation   `json:"situation"`
	Perception        situation.Perception  `json:"perception"`
	GraphContext      retrieve.GraphContext `json:"graph_context"`
	RelevantRules     []store.Rule          `json:"relevant_rules"`
	RelevantCases     []store.Case          `json:"relevant_cases"`
	Analysis          string                `json:"analysis"`
	NarrativeDegraded bool                  `json:"narrative_degraded"`
	Recommendations   action.Recommendation `json:"recommendations"`
	ReasoningTrace    []trace.Step          `json:"reasoning_trace"`
}

// Analyze runs the pipeline with the engine's default verbosity.
func (e *Engine) Analyze(ctx context.Context, in situation.Input) (*Response, error) {
	return e.AnalyzeWithVerbosity(ctx, in, e.verbosity)
}

// AnalyzeWithVerbosity runs the pipeline. It fails with ErrStoreUnavailable
// when rules or cases cannot be retrieved and with ErrCancelled when ctx is
// done; no partial response is returned. Narrative failures degrade instead.
func (e *Engine) AnalyzeWithVerbosity(ctx context.Context, in situation.Input, v trace.Verbosity) (*Response, error) {
	id := e.ids.NewID()
	ctx, span := tracer.Start(ctx, "navrag.Analyze",
		oteltrace.WithAttributes(
			attribute.String("navrag.analysis_id", id),
			attribute.String("navrag.scenario_id", in.ScenarioID.String()),
		),
	)
	defer span.End()

	log := e.logger.With(zap.String("analysis_id", id))
	rec := trace.New(v)
	began := time.Now()

	resp, err := e.run(ctx, in, rec, log)
	if err != nil {
		outcome := metrics.OutcomeError
		switch {
		case errors.Is(err, internalerr.ErrCancelled):
			outcome = metrics.OutcomeCancelled
			log.Info("analysis cancelled", zap.Error(err))
		case errors.Is(err, internalerr.ErrStoreUnavailable):
			outcome = metrics.OutcomeUnavailable
			log.Error("knowledge retrieval failed", zap.Error(err))
		default:
			log.Error("analysis failed", zap.Error(err))
		}
		e.metrics.Analysis(outcome)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp.AnalysisID = id
	if resp.NarrativeDegraded {
		e.metrics.Analysis(metrics.OutcomeDegraded)
	} else {
		e.metrics.Analysis(metrics.OutcomeOK)
	}
	span.SetAttributes(
		attribute.Int("navrag.rules", len(resp.RelevantRules)),
		attribute.Int("navrag.cases", len(resp.RelevantCases)),
		attribute.Bool("navrag.narrative_degraded", resp.NarrativeDegraded),
	)
	log.Debug("analysis complete",
		zap.Strings("situation_types", resp.GraphContext.Tags),
		zap.Int("rules", len(resp.RelevantRules)),
		zap.Int("cases", len(resp.RelevantCases)),
		zap.Bool("narrative_degraded", resp.NarrativeDegraded),
		zap.Duration("elapsed", time.Since(began)),
	)
	return resp, nil
}

func (e *Engine) run(ctx context.Context, in situation.Input, rec *trace.Recorder, log *zap.Logger) (*Response, error) {
	// 1. Perception
	start := time.Now()
	p := situation.Normalize(in)
	e.record(rec, trace.Step{
		Name:        trace.StepPerception,
		Description: "Normalize the reported situation",
		Results:     p,
		Rationale: fmt.Sprintf("visibility %q, own ship %q, %d target vessel(s)",
			p.Visibility, p.OwnShip.Type, p.TargetCount),
	}, start)

	// 2. Graph context
	start = time.Now()
	sctx, span := tracer.Start(ctx, "navrag.GraphContext")
	tags := e.classifier.Classify(p)
	gc, err := e.retriever.Context(sctx, tags)
	rationale := "situation types: " + strings.Join(tags, ", ")
	if err != nil {
		if errors.Is(err, internalerr.ErrCancelled) {
			endSpan(span, err)
			return nil, err
		}
		log.Warn("knowledge context unavailable", zap.Strings("situation_types", tags), zap.Error(err))
		e.metrics.ContextError()
		span.RecordError(err)
		rationale += "; context lookup failed: " + err.Error()
	} else if len(gc.Unsupported) > 0 {
		rationale += "; no graph support for: " + strings.Join(gc.Unsupported, ", ")
	}
	span.SetAttributes(attribute.StringSlice("navrag.situation_types", tags))
	span.End()
	e.record(rec, trace.Step{
		Name:        trace.StepGraphContext,
		Description: "Classify the situation and resolve its knowledge graph context",
		Query:       e.store.Statement(store.QuerySituationContext),
		Results:     gc,
		Rationale:   rationale,
	}, start)

	// 3. Rules
	start = time.Now()
	sctx, span = tracer.Start(ctx, "navrag.RuleRetrieval")
	rules, err := e.retriever.Rules(sctx, tags)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	e.record(rec, trace.Step{
		Name:        trace.StepRules,
		Description: "Retrieve the COLREGs rules that apply to the situation types",
		Query:       e.store.Statement(store.QueryRules),
		Results:     ruleMatches(tags, rules),
		Rationale:   fmt.Sprintf("%d rule(s) by legal weight: %s", len(rules), strings.Join(rank.IDs(rules), ", ")),
	}, start)

	// 4. Cases
	start = time.Now()
	sctx, span = tracer.Start(ctx, "navrag.CaseRetrieval")
	cases, err := e.retriever.Cases(sctx, rank.IDs(rules))
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	caseIDs := make([]string, len(cases))
	for i, c := range cases {
		caseIDs[i] = c.CaseID
	}
	e.record(rec, trace.Step{
		Name:        trace.StepCases,
		Description: "Retrieve tribunal precedents that violated the retrieved rules",
		Query:       e.store.Statement(store.QueryCases),
		Results:     caseIDs,
		Rationale:   fmt.Sprintf("%d precedent case(s): %s", len(cases), strings.Join(caseIDs, ", ")),
	}, start)

	// 5. Narrative
	start = time.Now()
	sctx, span = tracer.Start(ctx, "navrag.NarrativeAnalysis")
	nres, err := e.narrator.Analyze(sctx, p, rules, cases)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	rationale = "language model analysis"
	if nres.Degraded {
		rationale = "fallback used: " + nres.Reason
		e.metrics.Fallback(fallbackReason(nres.Reason))
		log.Warn("narrative analysis degraded", zap.String("reason", nres.Reason))
	}
	e.record(rec, trace.Step{
		Name:        trace.StepNarrative,
		Description: "Generate a narrative risk analysis",
		Query:       nres.Prompt,
		Results:     nres.Text,
		Rationale:   rationale,
	}, start)

	// 6. Action
	start = time.Now()
	recommendation := e.synth.Synthesize(in, p, rules, cases)
	e.record(rec, trace.Step{
		Name:        trace.StepAction,
		Description: "Synthesize prioritized actions, warnings and legal basis",
		Results:     recommendation,
		Rationale: fmt.Sprintf("%s: %d action(s), %d warning(s), %d lesson(s)",
			recommendation.Source, len(recommendation.PriorityActions),
			len(recommendation.Warnings), len(recommendation.KeyLessons)),
	}, start)

	resp := &Response{
		ScenarioID:        in.ScenarioID.String(),
		Situation:         in.Situation,
		Perception:        p,
		GraphContext:      gc,
		RelevantRules:     rules,
		RelevantCases:     cases,
		Analysis:          nres.Text,
		NarrativeDegraded: nres.Degraded,
		Recommendations:   recommendation,
		ReasoningTrace:    rec.Steps(),
	}
	if rec.Verbosity() == trace.VerbositySummary {
		summarize(resp)
	}
	return resp, nil
}

func (e *Engine) record(rec *trace.Recorder, s trace.Step, start time.Time) {
	s.Duration = time.Since(start)
	e.metrics.ObserveStage(s.Name, s.Duration)
	rec.Record(s)
}

func endSpan(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type ruleMatch struct {
	ID          string  `json:"id"`
	LegalWeight float64 `json:"legal_weight"`
	Overlap     float64 `json:"situation_overlap"`
}

func ruleMatches(tags []string, rules []store.Rule) []ruleMatch {
	out := make([]ruleMatch, len(rules))
	for i, r := range rules {
		out[i] = ruleMatch{ID: r.ID, LegalWeight: r.LegalWeight, Overlap: rank.Overlap(tags, r.Situations)}
	}
	return out
}

func fallbackReason(reason string) string {
	switch reason {
	case narrative.ReasonDisabled:
		return "disabled"
	case narrative.ErrEmptyResponse.Error():
		return "empty"
	}
	return "generator_error"
}

// summarize drops long text fields from rules and cases.
func summarize(resp *Response) {
	for i := range resp.RelevantRules {
		resp.RelevantRules[i].FullText = ""
	}
	for i := range resp.RelevantCases {
		resp.RelevantCases[i].IncidentDescription = ""
		resp.RelevantCases[i].Analysis = ""
	}
}
