// Package neo4jstore implements store.Store on a Neo4j graph holding
// (:Rule)-[:APPLIES_TO]->(:SituationType), (:Case)-[:VIOLATED]->(:Rule),
// (:Case)-[:OCCURRED_IN]->(:SituationType) and (:Case)-[:TEACHES]->(:Lesson).
package neo4jstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/cognicore/navrag/pkg/navrag/internalerr"
	"github.com/cognicore/navrag/pkg/navrag/knowledge"
	"github.com/cognicore/navrag/pkg/navrag/store"
)

const (
	situationContextCypher = `UNWIND $tags AS tag
MATCH (st:SituationType {name: tag})
OPTIONAL MATCH (r:Rule)-[:APPLIES_TO]->(st)
OPTIONAL MATCH (c:Case)-[:OCCURRED_IN]->(st)
RETURN st.name AS situation_type, count(DISTINCT r) AS rule_count, count(DISTINCT c) AS case_count`

	rulesCypher = `MATCH (r:Rule)-[:APPLIES_TO]->(st:SituationType)
WHERE st.name IN $tags
WITH DISTINCT r
MATCH (r)-[:APPLIES_TO]->(s:SituationType)
RETURN r.id AS id, r.title AS title, r.summary AS summary, r.full_text AS full_text,
       r.legal_weight AS legal_weight, collect(DISTINCT s.name) AS situations
ORDER BY legal_weight DESC, id ASC`

	casesCypher = `MATCH (c:Case)-[:VIOLATED]->(r:Rule)
WHERE r.id IN $rule_ids
WITH DISTINCT c
OPTIONAL MATCH (c)-[:TEACHES]->(l:Lesson)
RETURN c.case_id AS case_id, c.title AS title, c.situation_type AS situation_type,
       c.incident_description AS incident_description, c.analysis AS analysis,
       c.judgment AS judgment, c.penalty AS penalty, c.legal_weight AS legal_weight,
       collect(DISTINCT l.text) AS lessons
ORDER BY legal_weight DESC, case_id ASC`

	limitClause = "\nLIMIT $limit"
)

// Config holds connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	Database string // empty selects the server default
}

// Store implements store.Store over a neo4j.DriverWithContext.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// Open creates a driver and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("%w: neo4j connect %s: %w", internalerr.ErrStoreUnavailable, cfg.URI, err)
	}
	return &Store{driver: driver, database: cfg.Database}, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.driver.Close(context.Background())
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

func (s *Store) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if s.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(s.database))
	}
	res, err := neo4j.ExecuteQuery(ctx, s.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// SituationContext implements store.Store.
func (s *Store) SituationContext(ctx context.Context, tags []string) ([]store.SituationCount, error) {
	if len(tags) == 0 {
		return []store.SituationCount{}, nil
	}
	records, err := s.read(ctx, situationContextCypher, map[string]any{"tags": tags})
	if err != nil {
		return nil, err
	}
	out := make([]store.SituationCount, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		sc := situationCountFromRecord(rec)
		if _, dup := seen[sc.SituationType]; dup {
			continue
		}
		seen[sc.SituationType] = struct{}{}
		out = append(out, sc)
	}
	return out, nil
}

// RulesForSituations implements store.Store.
func (s *Store) RulesForSituations(ctx context.Context, tags []string, limit int) ([]store.Rule, error) {
	if len(tags) == 0 {
		return []store.Rule{}, nil
	}
	cypher, params := withLimit(rulesCypher, map[string]any{"tags": tags}, limit)
	records, err := s.read(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	out := make([]store.Rule, 0, len(records))
	for _, rec := range records {
		out = append(out, ruleFromRecord(rec))
	}
	return out, nil
}

// CasesViolating implements store.Store.
func (s *Store) CasesViolating(ctx context.Context, ruleIDs []string, limit int) ([]store.Case, error) {
	if len(ruleIDs) == 0 {
		return []store.Case{}, nil
	}
	cypher, params := withLimit(casesCypher, map[string]any{"rule_ids": ruleIDs}, limit)
	records, err := s.read(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	out := make([]store.Case, 0, len(records))
	for _, rec := range records {
		out = append(out, caseFromRecord(rec))
	}
	return out, nil
}

// Statement implements store.Store.
func (s *Store) Statement(q store.Query) string {
	switch q {
	case store.QuerySituationContext:
		return situationContextCypher
	case store.QueryRules:
		return rulesCypher + limitClause
	case store.QueryCases:
		return casesCypher + limitClause
	}
	return ""
}

// Seed merges every node and edge of b into the graph.
func (s *Store) Seed(ctx context.Context, b *knowledge.Base) error {
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithWritersRouting()}
	if s.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(s.database))
	}
	for _, stmt := range seedStatements(b) {
		if _, err := neo4j.ExecuteQuery(ctx, s.driver, stmt.cypher, stmt.params, neo4j.EagerResultTransformer, opts...); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	return nil
}

type statement struct {
	cypher string
	params map[string]any
}

func seedStatements(b *knowledge.Base) []statement {
	var out []statement
	for _, r := range b.Rules {
		out = append(out, statement{
			cypher: `MERGE (r:Rule {id: $id})
SET r.title = $title, r.category = $category, r.summary = $summary,
    r.full_text = $full_text, r.legal_weight = $legal_weight
FOREACH (name IN $situations | MERGE (st:SituationType {name: name}) MERGE (r)-[:APPLIES_TO]->(st))`,
			params: map[string]any{
				"id":           r.ID,
				"title":        r.Title,
				"category":     r.Category,
				"summary":      r.Summary,
				"full_text":    r.FullText,
				"legal_weight": r.LegalWeight,
				"situations":   r.TriggerSituations,
			},
		})
	}
	for _, c := range b.Cases {
		out = append(out, statement{
			cypher: `MERGE (c:Case {case_id: $case_id})
SET c.title = $title, c.situation_type = $situation_type,
    c.incident_description = $incident_description, c.analysis = $analysis,
    c.judgment = $judgment, c.penalty = $penalty, c.legal_weight = $legal_weight
FOREACH (_ IN CASE WHEN $situation_type <> '' THEN [1] ELSE [] END |
    MERGE (st:SituationType {name: $situation_type}) MERGE (c)-[:OCCURRED_IN]->(st))
FOREACH (rid IN $violated | MERGE (r:Rule {id: rid}) MERGE (c)-[:VIOLATED]->(r))
FOREACH (text IN $lessons | MERGE (l:Lesson {text: text}) MERGE (c)-[:TEACHES]->(l))`,
			params: map[string]any{
				"case_id":              c.CaseID,
				"title":                c.Title,
				"situation_type":       c.SituationType,
				"incident_description": c.IncidentDescription,
				"analysis":             c.Analysis,
				"judgment":             c.Judgment,
				"penalty":              c.Penalty,
				"legal_weight":         c.LegalWeight,
				"violated":             c.ColregsViolated,
				"lessons":              c.LessonsLearned,
			},
		})
	}
	return out
}

func withLimit(cypher string, params map[string]any, limit int) (string, map[string]any) {
	if limit <= 0 {
		return cypher, params
	}
	params["limit"] = int64(limit)
	return cypher + limitClause, params
}

func situationCountFromRecord(rec *neo4j.Record) store.SituationCount {
	return store.SituationCount{
		SituationType: stringValue(rec, "situation_type"),
		RuleCount:     int(intValue(rec, "rule_count")),
		CaseCount:     int(intValue(rec, "case_count")),
	}
}

func ruleFromRecord(rec *neo4j.Record) store.Rule {
	return store.Rule{
		ID:          stringValue(rec, "id"),
		Title:       stringValue(rec, "title"),
		Summary:     stringValue(rec, "summary"),
		FullText:    stringValue(rec, "full_text"),
		LegalWeight: floatValue(rec, "legal_weight"),
		Situations:  stringsValue(rec, "situations"),
	}
}

func caseFromRecord(rec *neo4j.Record) store.Case {
	return store.Case{
		CaseID:              stringValue(rec, "case_id"),
		Title:               stringValue(rec, "title"),
		SituationType:       stringValue(rec, "situation_type"),
		IncidentDescription: stringValue(rec, "incident_description"),
		Analysis:            stringValue(rec, "analysis"),
		Judgment:            stringValue(rec, "judgment"),
		Penalty:             stringValue(rec, "penalty"),
		LegalWeight:         floatValue(rec, "legal_weight"),
		Lessons:             stringsValue(rec, "lessons"),
	}
}

// Record accessors treat missing keys and nulls as zero values.

func stringValue(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func intValue(rec *neo4j.Record, key string) int64 {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func floatValue(rec *neo4j.Record, key string) float64 {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func stringsValue(rec *neo4j.Record, key string) []string {
	v, _ := rec.Get(key)
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
