package narrative

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cognicore/navrag/pkg/navrag/internalerr"
	"github.com/cognicore/navrag/pkg/navrag/situation"
	"github.com/cognicore/navrag/pkg/navrag/store"
)

func fogPerception() situation.Perception {
	return situation.Perception{
		Visibility:  "50m (dense fog)",
		OwnShip:     situation.Vessel{Type: "container ship"},
		TargetCount: 1,
		Targets: []situation.Contact{
			{ID: "target_001", Type: "fishing vessel", Bearing: "045", Distance: "0.5 nm", CPA: "0.1 nm", TCPA: "3 min"},
		},
	}
}

var (
	testRules = []store.Rule{
		{ID: "rule_19", Title: "Conduct of vessels in restricted visibility", LegalWeight: 1.0},
		{ID: "rule_15", Title: "Crossing situation", LegalWeight: 0.95},
	}
	testCases = []store.Case{
		{CaseID: "KMST-2023-001", Title: "Fog collision", Judgment: strings.Repeat("가", 150)},
	}
)

func TestAnalyzePassesFixedParams(t *testing.T) {
	var got Params
	var prompt string
	gen := GeneratorFunc(func(ctx context.Context, p string, params Params) (string, error) {
		got, prompt = params, p
		return "  High risk. Reduce speed.  ", nil
	})

	res, err := NewAnalyzer(gen, Config{}).Analyze(context.Background(), fogPerception(), testRules, testCases)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Degraded {
		t.Fatalf("unexpected degraded result: %s", res.Reason)
	}
	if res.Text != "High risk. Reduce speed." {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if got.Temperature != 0.3 || got.MaxTokens != 1000 {
		t.Fatalf("unexpected params %+v", got)
	}
	for _, want := range []string{"50m (dense fog)", "container ship", "Target vessels: 1", "rule_19", "(legal weight 1.00)", "KMST-2023-001"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, strings.Repeat("가", 101)) {
		t.Error("judgment not truncated to 100 runes")
	}
}

func TestAnalyzeAlwaysFailingGenerator(t *testing.T) {
	gen := GeneratorFunc(func(context.Context, string, Params) (string, error) {
		return "", errors.New("quota exceeded")
	})
	res, err := NewAnalyzer(gen, Config{}).Analyze(context.Background(), fogPerception(), testRules, testCases)
	if err != nil {
		t.Fatalf("Analyze should not fail: %v", err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
	want := "Narrative analysis unavailable. Baseline review: 2 applicable rules and 1 precedent cases retrieved; consult them directly."
	if res.Text != want {
		t.Fatalf("unexpected fallback %q", res.Text)
	}
	if res.Reason != "quota exceeded" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestAnalyzeEmptyAnswerAndNilGenerator(t *testing.T) {
	empty := GeneratorFunc(func(context.Context, string, Params) (string, error) { return " \n", nil })
	res, err := NewAnalyzer(empty, Config{}).Analyze(context.Background(), fogPerception(), nil, nil)
	if err != nil || !res.Degraded {
		t.Fatalf("expected degraded result for empty answer, got %+v %v", res, err)
	}

	res, err = NewAnalyzer(nil, Config{}).Analyze(context.Background(), fogPerception(), nil, nil)
	if err != nil || !res.Degraded {
		t.Fatalf("expected degraded result for nil generator, got %+v %v", res, err)
	}
	if res.Text != Fallback(0, 0) {
		t.Fatalf("unexpected fallback %q", res.Text)
	}
}

func TestAnalyzeTimeoutDegrades(t *testing.T) {
	slow := GeneratorFunc(func(ctx context.Context, _ string, _ Params) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	a := NewAnalyzer(slow, Config{Timeout: 10 * time.Millisecond})
	res, err := a.Analyze(context.Background(), fogPerception(), testRules, nil)
	if err != nil {
		t.Fatalf("generator timeout must degrade, got %v", err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
}

func TestAnalyzeCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := GeneratorFunc(func(context.Context, string, Params) (string, error) {
		cancel()
		return "too late", nil
	})
	_, err := NewAnalyzer(gen, Config{}).Analyze(ctx, fogPerception(), testRules, nil)
	if !errors.Is(err, internalerr.ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestPromptIsBounded(t *testing.T) {
	var rules []store.Rule
	for i := 0; i < 500; i++ {
		rules = append(rules, store.Rule{ID: "rule_x", Title: "항법 규칙 " + strings.Repeat("가", 20)})
	}
	prompt := BuildPrompt(fogPerception(), rules, nil, 1024)
	if len(prompt) > 1024 {
		t.Fatalf("prompt is %d bytes", len(prompt))
	}
	if !utf8.ValidString(prompt) {
		t.Fatal("bounding split a rune")
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain   text\n here", "plain text here"},
		{"<p>Keep <b>clear</b></p>", "Keep clear"},
		{"rule&nbsp;19 &amp; rule 8", "rule 19 & rule 8"},
		{"keep\u00a0clear", "keep clear"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := PlainText(tt.in); got != tt.want {
			t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("가나다", 5); got != "가나다" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("가나다", 2); got != "가나" {
		t.Fatalf("got %q", got)
	}
}
