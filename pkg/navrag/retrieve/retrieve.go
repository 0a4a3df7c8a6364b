// Package retrieve resolves graph context and fetches capped, ranked rules
// and precedent cases from a knowledge store.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cognicore/navrag/pkg/navrag/internalerr"
	"github.com/cognicore/navrag/pkg/navrag/rank"
	"github.com/cognicore/navrag/pkg/navrag/store"
)

// DefaultRuleLimit and DefaultCaseLimit are also the maximums; a configured
// limit can only lower them.
const (
	DefaultRuleLimit    = 5
	DefaultCaseLimit    = 3
	DefaultQueryTimeout = 5 * time.Second
)

// Config bounds retrieval.
type Config struct {
	RuleLimit    int
	CaseLimit    int
	QueryTimeout time.Duration
}

// GraphContext summarizes how well the knowledge graph supports each tag.
type GraphContext struct {
	Tags        []string               `json:"situation_types"`
	Counts      []store.SituationCount `json:"counts"`
	Unsupported []string               `json:"unsupported,omitempty"`
}

// Retriever fetches rules and precedent cases for classified situations.
type Retriever struct {
	store store.Store
	cfg   Config
}

// NewRetriever creates a retriever. Zero config fields take the defaults and
// limits above the defaults are clamped.
func NewRetriever(s store.Store, cfg Config) *Retriever {
	if cfg.RuleLimit <= 0 {
		cfg.RuleLimit = DefaultRuleLimit
	}
	cfg.RuleLimit = min(cfg.RuleLimit, DefaultRuleLimit)
	if cfg.CaseLimit <= 0 {
		cfg.CaseLimit = DefaultCaseLimit
	}
	cfg.CaseLimit = min(cfg.CaseLimit, DefaultCaseLimit)
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	return &Retriever{store: s, cfg: cfg}
}

// Store returns the underlying store.
func (r *Retriever) Store() store.Store { return r.store }

// Context resolves per-tag rule and case counts. Tags the graph does not
// know, or that have no linked rules or cases, are listed as unsupported.
func (r *Retriever) Context(ctx context.Context, tags []string) (GraphContext, error) {
	gc := GraphContext{
		Tags:   append([]string{}, tags...),
		Counts: []store.SituationCount{},
	}
	if len(tags) == 0 {
		return gc, nil
	}

	qctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	counts, err := r.store.SituationContext(qctx, tags)
	if err != nil {
		return gc, classify(ctx, "situation context", err)
	}

	supported := make(map[string]bool, len(counts))
	for _, c := range counts {
		gc.Counts = append(gc.Counts, c)
		supported[c.SituationType] = c.RuleCount > 0 || c.CaseCount > 0
	}
	for _, tag := range tags {
		if !supported[tag] {
			gc.Unsupported = append(gc.Unsupported, tag)
		}
	}
	return gc, nil
}

// Rules returns at most RuleLimit rules linked to any tag, ordered by legal
// weight descending then id ascending.
func (r *Retriever) Rules(ctx context.Context, tags []string) ([]store.Rule, error) {
	if len(tags) == 0 {
		return []store.Rule{}, nil
	}

	qctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	rules, err := r.store.RulesForSituations(qctx, tags, r.cfg.RuleLimit)
	if err != nil {
		return nil, classify(ctx, "rules", err)
	}
	return rank.Rules(rules, r.cfg.RuleLimit), nil
}

// Cases returns at most CaseLimit cases that violated any of ruleIDs. An empty
// ruleIDs never reaches the store.
func (r *Retriever) Cases(ctx context.Context, ruleIDs []string) ([]store.Case, error) {
	if len(ruleIDs) == 0 {
		return []store.Case{}, nil
	}

	qctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	cases, err := r.store.CasesViolating(qctx, ruleIDs, r.cfg.CaseLimit)
	if err != nil {
		return nil, classify(ctx, "cases", err)
	}
	return rank.Cases(cases, r.cfg.CaseLimit), nil
}

// classify maps a store error to ErrCancelled when the caller's context is
// done and to ErrStoreUnavailable otherwise, including per-query timeouts.
func classify(parent context.Context, op string, err error) error {
	if cerr := parent.Err(); cerr != nil {
		return fmt.Errorf("%w: %s: %w", internalerr.ErrCancelled, op, cerr)
	}
	if errors.Is(err, internalerr.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", internalerr.ErrStoreUnavailable, op, err)
}
