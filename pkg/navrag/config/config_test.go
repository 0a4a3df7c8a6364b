package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cognicore/navrag/pkg/navrag/internalerr"
	"github.com/cognicore/navrag/pkg/navrag/situation"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Pipeline.RuleLimit != 5 || cfg.Pipeline.CaseLimit != 3 {
		t.Fatalf("unexpected limits %+v", cfg.Pipeline)
	}
	if cfg.LLM.Temperature != 0.3 || cfg.LLM.MaxTokens != 1000 {
		t.Fatalf("unexpected sampling %+v", cfg.LLM)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "navrag.yaml", `
store:
  backend: SQLite
  sqlite_path: /tmp/graph.db
llm:
  provider: openai
  model: gpt-4o-mini
pipeline:
  query_timeout: 2s
  verbosity: full
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != BackendSQLite || cfg.Store.SQLitePath != "/tmp/graph.db" {
		t.Fatalf("unexpected store %+v", cfg.Store)
	}
	if cfg.Pipeline.QueryTimeout != 2*time.Second {
		t.Fatalf("query_timeout = %v", cfg.Pipeline.QueryTimeout)
	}
	// untouched fields keep their defaults
	if cfg.Pipeline.NarrativeTimeout != 20*time.Second || cfg.Server.Addr != ":8080" {
		t.Fatalf("defaults lost: %+v %+v", cfg.Pipeline, cfg.Server)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"NAVRAG_STORE_BACKEND": "neo4j",
		"NEO4J_URI":            "neo4j://graph:7687",
		"NEO4J_USER":           "reader",
		"NAVRAG_LLM_PROVIDER":  "gemini",
		"GEMINI_API_KEY":       "g-key",
		"OPENAI_API_KEY":       "o-key",
		"NAVRAG_RULE_LIMIT":    "4",
		"NAVRAG_QUERY_TIMEOUT": "750ms",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Store.Backend != "neo4j" || cfg.Store.Neo4j.URI != "neo4j://graph:7687" || cfg.Store.Neo4j.Username != "reader" {
		t.Fatalf("unexpected store %+v", cfg.Store)
	}
	if cfg.LLM.APIKey != "g-key" {
		t.Fatalf("expected gemini key, got %q", cfg.LLM.APIKey)
	}
	if cfg.Pipeline.RuleLimit != 4 || cfg.Pipeline.QueryTimeout != 750*time.Millisecond {
		t.Fatalf("unexpected pipeline %+v", cfg.Pipeline)
	}
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{"NAVRAG_CASE_LIMIT": "three", "NAVRAG_NARRATIVE_TIMEOUT": "soon"}))
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "llama" }},
		{"provider without model", func(c *Config) { c.LLM.Provider = "openai" }},
		{"negative limit", func(c *Config) { c.Pipeline.RuleLimit = -1 }},
		{"rule limit above cap", func(c *Config) { c.Pipeline.RuleLimit = 6 }},
		{"case limit above cap", func(c *Config) { c.Pipeline.CaseLimit = 4 }},
		{"bad verbosity", func(c *Config) { c.Pipeline.Verbosity = "loud" }},
		{"neo4j without uri", func(c *Config) { c.Store.Backend = "neo4j"; c.Store.Neo4j.URI = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, internalerr.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoaderDefaults(t *testing.T) {
	comp, err := (&Loader{}).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if comp.Classifier == nil || comp.Actions == nil {
		t.Fatal("expected default components")
	}
	if _, ok := comp.Actions.Lookup("Rule 19"); !ok {
		t.Fatal("default action table misses rule_19")
	}
}

func TestLoaderTaxonomyFile(t *testing.T) {
	path := writeFile(t, "taxonomy.yaml", `
default_tag: open sea
predicates:
  - tag: ice
    field: visibility
    keywords: [Ice, floe]
`)
	comp, err := (&Loader{TaxonomyPath: path}).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var in situation.Input
	in.Situation.Visibility = "drifting ICE"
	tags := comp.Classifier.Classify(situation.Normalize(in))
	if len(tags) != 1 || tags[0] != "ice" {
		t.Fatalf("expected [ice], got %v", tags)
	}
	tags = comp.Classifier.Classify(situation.Normalize(situation.Input{}))
	if len(tags) != 1 || tags[0] != "open sea" {
		t.Fatalf("expected fallback [open sea], got %v", tags)
	}
}

func TestLoaderRejectsBadFiles(t *testing.T) {
	badField := writeFile(t, "taxonomy.yaml", "predicates:\n  - tag: x\n    field: colour\n")
	if _, err := (&Loader{TaxonomyPath: badField}).Load(); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for unknown field, got %v", err)
	}

	noAction := writeFile(t, "actions.yaml", "families:\n  - name: x\n    rules: [rule_19]\n")
	if _, err := (&Loader{ActionsPath: noAction}).Load(); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for family without action, got %v", err)
	}

	if _, err := (&Loader{ActionsPath: "/nonexistent/actions.yaml"}).Load(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoaderActionsFile(t *testing.T) {
	path := writeFile(t, "actions.yaml", `
families:
  - name: slow down
    rules: [Rule 19]
    action: Reduce to steerage way
    priority: 1
    details:
      target_speed: 3 knots
`)
	comp, err := (&Loader{ActionsPath: path}).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	f, ok := comp.Actions.Lookup("rule_19")
	if !ok || f.Details["target_speed"] != "3 knots" {
		t.Fatalf("unexpected family %+v", f)
	}
	if _, ok := comp.Actions.Lookup("rule_15"); ok {
		t.Fatal("file table should replace the defaults")
	}
}
