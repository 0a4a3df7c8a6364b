package navrag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/cognicore/navrag/pkg/navrag/action"
	"github.com/cognicore/navrag/pkg/navrag/internalerr"
	"github.com/cognicore/navrag/pkg/navrag/knowledge"
	"github.com/cognicore/navrag/pkg/navrag/metrics"
	"github.com/cognicore/navrag/pkg/navrag/narrative"
	"github.com/cognicore/navrag/pkg/navrag/situation"
	"github.com/cognicore/navrag/pkg/navrag/store"
	"github.com/cognicore/navrag/pkg/navrag/store/memstore"
	"github.com/cognicore/navrag/pkg/navrag/trace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newMemStore(t *testing.T) *memstore.Store {
	t.Helper()
	base, err := knowledge.Default()
	if err != nil {
		t.Fatalf("knowledge.Default: %v", err)
	}
	return memstore.FromBase(base)
}

func scenario(t *testing.T, id string) situation.Input {
	t.Helper()
	cat, err := knowledge.DefaultScenarios()
	if err != nil {
		t.Fatalf("DefaultScenarios: %v", err)
	}
	sc, ok := cat.Get(id)
	if !ok {
		t.Fatalf("scenario %s missing", id)
	}
	return sc.Input
}

func newEngine(t *testing.T, s store.Store, gen narrative.Generator, v trace.Verbosity) *Engine {
	t.Helper()
	eng, err := New(Options{Store: s, Generator: gen, Verbosity: v})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng
}

// failingStore fails every query with err.
type failingStore struct {
	*memstore.Store
	err error
}

func (f *failingStore) SituationContext(context.Context, []string) ([]store.SituationCount, error) {
	return nil, f.err
}

func (f *failingStore) RulesForSituations(context.Context, []string, int) ([]store.Rule, error) {
	return nil, f.err
}

func (f *failingStore) CasesViolating(context.Context, []string, int) ([]store.Case, error) {
	return nil, f.err
}

// contextOnlyFailure breaks just the context resolver.
type contextOnlyFailure struct {
	*memstore.Store
}

func (contextOnlyFailure) SituationContext(context.Context, []string) ([]store.SituationCount, error) {
	return nil, errors.New("graph overloaded")
}

func ruleIDs(rules []store.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.ID
	}
	return out
}

func caseIDs(cases []store.Case) []string {
	out := make([]string, len(cases))
	for i, c := range cases {
		out[i] = c.CaseID
	}
	return out
}

func stepNames(steps []trace.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Name
	}
	return out
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestAnalyzeFogScenario(t *testing.T) {
	var prompts []string
	gen := narrative.GeneratorFunc(func(_ context.Context, prompt string, p narrative.Params) (string, error) {
		prompts = append(prompts, prompt)
		if p.Temperature != narrative.DefaultTemperature || p.MaxTokens != narrative.DefaultMaxTokens {
			return "", fmt.Errorf("unexpected params %+v", p)
		}
		return "Immediate collision risk with a drifting fishing vessel.", nil
	})
	eng := newEngine(t, newMemStore(t), gen, trace.VerbosityFull)

	resp, err := eng.Analyze(context.Background(), scenario(t, "scenario_001"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if resp.AnalysisID == "" || resp.ScenarioID != "scenario_001" {
		t.Fatalf("unexpected ids %q %q", resp.AnalysisID, resp.ScenarioID)
	}
	wantTags := []string{"restricted visibility", "crossing", "vessel-category duty"}
	if diff := cmp.Diff(wantTags, resp.GraphContext.Tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
	wantRules := []string{"rule_19", "rule_15", "rule_08", "rule_16", "rule_18"}
	if diff := cmp.Diff(wantRules, ruleIDs(resp.RelevantRules)); diff != "" {
		t.Fatalf("rules mismatch (-want +got):\n%s", diff)
	}
	wantCases := []string{"KMST-2022-007", "KMST-2023-001", "KMST-2024-012"}
	if diff := cmp.Diff(wantCases, caseIDs(resp.RelevantCases)); diff != "" {
		t.Fatalf("cases mismatch (-want +got):\n%s", diff)
	}

	if resp.NarrativeDegraded || !strings.Contains(resp.Analysis, "fishing vessel") {
		t.Fatalf("unexpected narrative %q degraded=%v", resp.Analysis, resp.NarrativeDegraded)
	}
	if len(prompts) != 1 || !strings.Contains(prompts[0], "rule_19") {
		t.Fatalf("prompt should cite retrieved rules: %v", prompts)
	}

	rec := resp.Recommendations
	if rec.Source != action.SourceGroundTruth {
		t.Fatalf("expected ground truth source, got %s", rec.Source)
	}
	var actions []string
	for _, a := range rec.PriorityActions {
		actions = append(actions, a.Action)
	}
	wantActions := []string{"Reduce speed immediately", "Alter course to starboard", "Sound fog signal"}
	if diff := cmp.Diff(wantActions, actions); diff != "" {
		t.Fatalf("actions mismatch (-want +got):\n%s", diff)
	}
	if len(rec.LegalBasis) == 0 {
		t.Fatal("legal basis must not be empty")
	}
	if len(rec.Warnings) == 0 || rec.Warnings[len(rec.Warnings)-1].Severity != action.SeverityCritical {
		t.Fatalf("expected a critical CPA warning, got %+v", rec.Warnings)
	}

	wantSteps := []string{
		trace.StepPerception, trace.StepGraphContext, trace.StepRules,
		trace.StepCases, trace.StepNarrative, trace.StepAction,
	}
	if diff := cmp.Diff(wantSteps, stepNames(resp.ReasoningTrace)); diff != "" {
		t.Fatalf("trace mismatch (-want +got):\n%s", diff)
	}
	for i, s := range resp.ReasoningTrace {
		if s.Ordinal != i+1 {
			t.Fatalf("step %d has ordinal %d", i, s.Ordinal)
		}
		if s.Rationale == "" {
			t.Fatalf("step %q has no rationale", s.Name)
		}
	}
	if resp.ReasoningTrace[2].Query == "" || resp.ReasoningTrace[2].Results == nil {
		t.Fatal("full verbosity should keep query and results")
	}
	if resp.RelevantRules[0].FullText == "" {
		t.Fatal("full verbosity should keep rule text")
	}
}

func TestAnalyzeSummaryVerbosity(t *testing.T) {
	eng := newEngine(t, newMemStore(t), nil, trace.VerbositySummary)

	resp, err := eng.Analyze(context.Background(), scenario(t, "scenario_001"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, s := range resp.ReasoningTrace {
		if s.Query != "" || s.Results != nil {
			t.Fatalf("summary step %q kept detail", s.Name)
		}
	}
	for _, r := range resp.RelevantRules {
		if r.FullText != "" {
			t.Fatalf("summary kept full text of %s", r.ID)
		}
	}

	full, err := eng.AnalyzeWithVerbosity(context.Background(), scenario(t, "scenario_001"), trace.VerbosityFull)
	if err != nil {
		t.Fatalf("AnalyzeWithVerbosity: %v", err)
	}
	if full.ReasoningTrace[1].Query == "" {
		t.Fatal("per-call verbosity ignored")
	}
	if full.AnalysisID == resp.AnalysisID {
		t.Fatal("analysis ids must be unique")
	}
}

func TestAnalyzeDegradesWhenGeneratorFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	gen := narrative.GeneratorFunc(func(context.Context, string, narrative.Params) (string, error) {
		return "", errors.New("quota exceeded")
	})
	eng, err := New(Options{Store: newMemStore(t), Generator: gen, Metrics: metrics.NewCollector(reg)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := eng.Analyze(context.Background(), scenario(t, "scenario_001"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !resp.NarrativeDegraded {
		t.Fatal("expected degraded narrative")
	}
	if resp.Analysis != narrative.Fallback(len(resp.RelevantRules), len(resp.RelevantCases)) {
		t.Fatalf("unexpected fallback %q", resp.Analysis)
	}
	if len(resp.Recommendations.PriorityActions) == 0 {
		t.Fatal("recommendations must survive a narrative failure")
	}
	if !strings.Contains(resp.ReasoningTrace[4].Rationale, "quota exceeded") {
		t.Fatalf("narrative step should explain the fallback: %q", resp.ReasoningTrace[4].Rationale)
	}
	if got := testutil.CollectAndCount(reg, "navrag_narrative_fallback_total"); got != 1 {
		t.Fatalf("expected one fallback series, got %d", got)
	}
}

func TestAnalyzeStoreUnavailable(t *testing.T) {
	s := &failingStore{Store: newMemStore(t), err: errors.New("connection refused")}
	eng := newEngine(t, s, nil, trace.VerbositySummary)

	resp, err := eng.Analyze(context.Background(), scenario(t, "scenario_002"))
	if !errors.Is(err, internalerr.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if resp != nil {
		t.Fatal("no partial response on store failure")
	}
}

func TestAnalyzeContextFailureIsNotFatal(t *testing.T) {
	eng := newEngine(t, contextOnlyFailure{newMemStore(t)}, nil, trace.VerbosityFull)

	resp, err := eng.Analyze(context.Background(), scenario(t, "scenario_001"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(resp.RelevantRules) == 0 {
		t.Fatal("rules should still be retrieved")
	}
	if !strings.Contains(resp.ReasoningTrace[1].Rationale, "context lookup failed") {
		t.Fatalf("graph step should record the failure: %q", resp.ReasoningTrace[1].Rationale)
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng := newEngine(t, newMemStore(t), nil, trace.VerbositySummary)

	_, err := eng.Analyze(ctx, scenario(t, "scenario_001"))
	if !errors.Is(err, internalerr.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestAnalyzeCancelledDuringNarrative(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := narrative.GeneratorFunc(func(gctx context.Context, _ string, _ narrative.Params) (string, error) {
		cancel()
		<-gctx.Done()
		return "", gctx.Err()
	})
	eng := newEngine(t, newMemStore(t), gen, trace.VerbositySummary)

	if _, err := eng.Analyze(ctx, scenario(t, "scenario_001")); !errors.Is(err, internalerr.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestAnalyzeEmptySituation(t *testing.T) {
	eng := newEngine(t, newMemStore(t), nil, trace.VerbosityFull)

	resp, err := eng.Analyze(context.Background(), situation.Input{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if resp.Perception.TargetCount != 0 || len(resp.ReasoningTrace) != 6 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Recommendations.Source == action.SourceGroundTruth {
		t.Fatal("live situation cannot have ground truth")
	}
	if _, err := json.Marshal(resp); err != nil {
		t.Fatalf("marshal: %v", err)
	}
}

func TestAnalyzeConcurrentTracesAreIsolated(t *testing.T) {
	eng := newEngine(t, newMemStore(t), nil, trace.VerbosityFull)
	inputs := []situation.Input{
		scenario(t, "scenario_001"),
		scenario(t, "scenario_002"),
		scenario(t, "scenario_003"),
	}

	const workers = 12
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  = map[string]bool{}
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(in situation.Input) {
			defer wg.Done()
			resp, err := eng.Analyze(context.Background(), in)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if len(resp.ReasoningTrace) != 6 {
				errs = append(errs, fmt.Errorf("trace has %d steps", len(resp.ReasoningTrace)))
			}
			if resp.ScenarioID != in.ScenarioID.String() {
				errs = append(errs, fmt.Errorf("response for %s carries %s", in.ScenarioID, resp.ScenarioID))
			}
			ids[resp.AnalysisID] = true
		}(inputs[i%len(inputs)])
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("concurrent analyses failed: %v", errs)
	}
	if len(ids) != workers {
		t.Fatalf("expected %d unique analysis ids, got %d", workers, len(ids))
	}
}

func TestSupportAndPing(t *testing.T) {
	eng := newEngine(t, newMemStore(t), nil, trace.VerbositySummary)
	defer eng.Close()

	if err := eng.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	gc, err := eng.Support(context.Background())
	if err != nil {
		t.Fatalf("Support: %v", err)
	}
	if len(gc.Counts) == 0 {
		t.Fatal("expected graph support for the default taxonomy")
	}
}
