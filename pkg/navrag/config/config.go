package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/navrag/pkg/navrag/internalerr"
	"github.com/cognicore/navrag/pkg/navrag/retrieve"
	"github.com/cognicore/navrag/pkg/navrag/trace"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendNeo4j  = "neo4j"
)

// LLM providers.
const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config is the runtime configuration of the service and CLI.
type Config struct {
	Store         StoreConfig    `yaml:"store"`
	LLM           LLMConfig      `yaml:"llm"`
	Pipeline      PipelineConfig `yaml:"pipeline"`
	Server        ServerConfig   `yaml:"server"`
	ScenariosPath string         `yaml:"scenarios_path"`
	TaxonomyPath  string         `yaml:"taxonomy_path"`
	ActionsPath   string         `yaml:"actions_path"`
}

// StoreConfig selects and configures the knowledge store.
type StoreConfig struct {
	Backend       string      `yaml:"backend"`
	SQLitePath    string      `yaml:"sqlite_path"`
	KnowledgePath string      `yaml:"knowledge_path"` // empty uses the embedded base
	Neo4j         Neo4jConfig `yaml:"neo4j"`
}

// Neo4jConfig holds graph database credentials.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// LLMConfig configures the narrative generator.
type LLMConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Temperature       float32       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
}

// PipelineConfig bounds the reasoning pipeline.
type PipelineConfig struct {
	RuleLimit        int           `yaml:"rule_limit"`
	CaseLimit        int           `yaml:"case_limit"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`
	NarrativeTimeout time.Duration `yaml:"narrative_timeout"`
	MaxPromptBytes   int           `yaml:"max_prompt_bytes"`
	Verbosity        string        `yaml:"verbosity"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:    BackendMemory,
			SQLitePath: "navrag.db",
			Neo4j:      Neo4jConfig{URI: "neo4j://localhost:7687", Username: "neo4j"},
		},
		LLM: LLMConfig{
			Provider:          ProviderNone,
			RequestsPerSecond: 2,
			Burst:             2,
			Temperature:       0.3,
			MaxTokens:         1000,
			HTTPTimeout:       30 * time.Second,
		},
		Pipeline: PipelineConfig{
			RuleLimit:        retrieve.DefaultRuleLimit,
			CaseLimit:        retrieve.DefaultCaseLimit,
			QueryTimeout:     5 * time.Second,
			NarrativeTimeout: 20 * time.Second,
			MaxPromptBytes:   8 << 10,
			Verbosity:        string(trace.VerbositySummary),
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		_ = godotenv.Load()
		return
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Load reads path (optional) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", internalerr.ErrInvalidConfig, path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	var errs []error
	integer := func(dst *int, key string) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q", internalerr.ErrInvalidConfig, key, v))
				return
			}
			*dst = n
		}
	}
	duration := func(dst *time.Duration, key string) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q", internalerr.ErrInvalidConfig, key, v))
				return
			}
			*dst = d
		}
	}

	str(&c.Store.Backend, "NAVRAG_STORE_BACKEND")
	str(&c.Store.SQLitePath, "NAVRAG_SQLITE_PATH")
	str(&c.Store.KnowledgePath, "NAVRAG_KNOWLEDGE_PATH")
	str(&c.Store.Neo4j.URI, "NEO4J_URI")
	str(&c.Store.Neo4j.Username, "NEO4J_USERNAME", "NEO4J_USER")
	str(&c.Store.Neo4j.Password, "NEO4J_PASSWORD")
	str(&c.Store.Neo4j.Database, "NEO4J_DATABASE")

	str(&c.LLM.Provider, "NAVRAG_LLM_PROVIDER")
	str(&c.LLM.Model, "NAVRAG_LLM_MODEL")
	str(&c.LLM.BaseURL, "NAVRAG_LLM_BASE_URL")
	switch strings.ToLower(c.LLM.Provider) {
	case ProviderOpenAI:
		str(&c.LLM.APIKey, "NAVRAG_LLM_API_KEY", "OPENAI_API_KEY")
	case ProviderGemini:
		str(&c.LLM.APIKey, "NAVRAG_LLM_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	default:
		str(&c.LLM.APIKey, "NAVRAG_LLM_API_KEY")
	}

	integer(&c.Pipeline.RuleLimit, "NAVRAG_RULE_LIMIT")
	integer(&c.Pipeline.CaseLimit, "NAVRAG_CASE_LIMIT")
	duration(&c.Pipeline.QueryTimeout, "NAVRAG_QUERY_TIMEOUT")
	duration(&c.Pipeline.NarrativeTimeout, "NAVRAG_NARRATIVE_TIMEOUT")
	str(&c.Pipeline.Verbosity, "NAVRAG_VERBOSITY")

	str(&c.Server.Addr, "NAVRAG_ADDR")
	str(&c.ScenariosPath, "NAVRAG_SCENARIOS_PATH")
	str(&c.TaxonomyPath, "NAVRAG_TAXONOMY_PATH")
	str(&c.ActionsPath, "NAVRAG_ACTIONS_PATH")

	return errors.Join(errs...)
}

// Validate rejects unknown backends and providers and nonsensical limits.
func (c *Config) Validate() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite backend requires store.sqlite_path", internalerr.ErrInvalidConfig)
		}
	case BackendNeo4j:
		if c.Store.Neo4j.URI == "" {
			return fmt.Errorf("%w: neo4j backend requires store.neo4j.uri", internalerr.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", internalerr.ErrInvalidConfig, c.Store.Backend)
	}

	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	switch c.LLM.Provider {
	case "", ProviderNone:
		c.LLM.Provider = ProviderNone
	case ProviderOpenAI, ProviderGemini:
		if c.LLM.Model == "" {
			return fmt.Errorf("%w: llm.model is required for provider %s", internalerr.ErrInvalidConfig, c.LLM.Provider)
		}
	default:
		return fmt.Errorf("%w: unknown llm provider %q", internalerr.ErrInvalidConfig, c.LLM.Provider)
	}

	if c.Pipeline.RuleLimit < 0 || c.Pipeline.CaseLimit < 0 {
		return fmt.Errorf("%w: limits must not be negative", internalerr.ErrInvalidConfig)
	}
	if c.Pipeline.RuleLimit > retrieve.DefaultRuleLimit || c.Pipeline.CaseLimit > retrieve.DefaultCaseLimit {
		return fmt.Errorf("%w: rule_limit is capped at %d and case_limit at %d",
			internalerr.ErrInvalidConfig, retrieve.DefaultRuleLimit, retrieve.DefaultCaseLimit)
	}
	if c.Pipeline.QueryTimeout < 0 || c.Pipeline.NarrativeTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", internalerr.ErrInvalidConfig)
	}
	if _, err := trace.ParseVerbosity(c.Pipeline.Verbosity); err != nil {
		return err
	}
	return nil
}
