package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/cognicore/navrag/pkg/navrag/knowledge"
	"github.com/cognicore/navrag/pkg/navrag/store"
)

const (
	situationContextSQL = `
SELECT st.name,
	(SELECT COUNT(DISTINCT rs.rule_id) FROM rule_situations rs WHERE rs.situation = st.name),
	(SELECT COUNT(DISTINCT c.case_id) FROM cases c WHERE c.situation_type = st.name)
FROM situation_types st
WHERE st.name IN (%s)`

	rulesSQL = `
SELECT r.id, r.title, r.summary, r.full_text, r.legal_weight
FROM rules r
WHERE r.id IN (SELECT rs.rule_id FROM rule_situations rs WHERE rs.situation IN (%s))
ORDER BY r.legal_weight DESC, r.id ASC
LIMIT ?`

	casesSQL = `
SELECT c.case_id, c.title, c.situation_type, c.incident_description, c.analysis,
	c.judgment, c.penalty, c.legal_weight
FROM cases c
WHERE c.case_id IN (SELECT cv.case_id FROM case_violations cv WHERE cv.rule_id IN (%s))
ORDER BY c.legal_weight DESC, c.case_id ASC
LIMIT ?`
)

// Store implements store.Store on a SQLite database file.
type Store struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled and creates the
// graph tables if needed.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS situation_types (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS rules (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	full_text TEXT NOT NULL DEFAULT '',
	legal_weight REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS rule_situations (
	rule_id TEXT NOT NULL,
	situation TEXT NOT NULL,
	PRIMARY KEY(rule_id, situation),
	FOREIGN KEY(rule_id) REFERENCES rules(id) ON DELETE CASCADE,
	FOREIGN KEY(situation) REFERENCES situation_types(name)
);

CREATE TABLE IF NOT EXISTS cases (
	case_id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	situation_type TEXT NOT NULL DEFAULT '',
	incident_description TEXT NOT NULL DEFAULT '',
	analysis TEXT NOT NULL DEFAULT '',
	judgment TEXT NOT NULL DEFAULT '',
	penalty TEXT NOT NULL DEFAULT '',
	legal_weight REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS case_violations (
	case_id TEXT NOT NULL,
	rule_id TEXT NOT NULL,
	PRIMARY KEY(case_id, rule_id),
	FOREIGN KEY(case_id) REFERENCES cases(case_id) ON DELETE CASCADE,
	FOREIGN KEY(rule_id) REFERENCES rules(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS case_lessons (
	case_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	lesson TEXT NOT NULL,
	PRIMARY KEY(case_id, position),
	FOREIGN KEY(case_id) REFERENCES cases(case_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_rule_situations_situation ON rule_situations(situation);
CREATE INDEX IF NOT EXISTS idx_case_violations_rule ON case_violations(rule_id);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// Import upserts every rule and case of b in a single transaction. Edges of
// imported nodes are replaced.
func (s *Store) Import(ctx context.Context, b *knowledge.Base) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range b.SituationTypes() {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO situation_types (name) VALUES (?)`, name); err != nil {
			return err
		}
	}

	const ruleStmt = `
INSERT INTO rules (id, title, category, summary, full_text, legal_weight)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title=excluded.title,
	category=excluded.category,
	summary=excluded.summary,
	full_text=excluded.full_text,
	legal_weight=excluded.legal_weight`

	for _, r := range b.Rules {
		if _, err := tx.ExecContext(ctx, ruleStmt, r.ID, r.Title, r.Category, r.Summary, r.FullText, r.LegalWeight); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM rule_situations WHERE rule_id = ?`, r.ID); err != nil {
			return err
		}
		for _, sit := range uniqueStrings(r.TriggerSituations) {
			if _, err := tx.ExecContext(ctx, `INSERT INTO rule_situations (rule_id, situation) VALUES (?, ?)`, r.ID, sit); err != nil {
				return fmt.Errorf("rule %s situation %q: %w", r.ID, sit, err)
			}
		}
	}

	const caseStmt = `
INSERT INTO cases (case_id, title, situation_type, incident_description, analysis, judgment, penalty, legal_weight)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(case_id) DO UPDATE SET
	title=excluded.title,
	situation_type=excluded.situation_type,
	incident_description=excluded.incident_description,
	analysis=excluded.analysis,
	judgment=excluded.judgment,
	penalty=excluded.penalty,
	legal_weight=excluded.legal_weight`

	for _, c := range b.Cases {
		if _, err := tx.ExecContext(ctx, caseStmt,
			c.CaseID, c.Title, c.SituationType, c.IncidentDescription,
			c.Analysis, c.Judgment, c.Penalty, c.LegalWeight,
		); err != nil {
			return fmt.Errorf("case %s: %w", c.CaseID, err)
		}
		if err := replaceCaseEdges(ctx, tx, c); err != nil {
			return fmt.Errorf("case %s: %w", c.CaseID, err)
		}
	}

	return tx.Commit()
}

func replaceCaseEdges(ctx context.Context, tx *sql.Tx, c knowledge.CaseDoc) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM case_violations WHERE case_id = ?`, c.CaseID); err != nil {
		return err
	}
	for _, rid := range uniqueStrings(c.ColregsViolated) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO case_violations (case_id, rule_id) VALUES (?, ?)`, c.CaseID, rid); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM case_lessons WHERE case_id = ?`, c.CaseID); err != nil {
		return err
	}
	for i, lesson := range uniqueStrings(c.LessonsLearned) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO case_lessons (case_id, position, lesson) VALUES (?, ?, ?)`, c.CaseID, i, lesson); err != nil {
			return err
		}
	}
	return nil
}

// SituationContext implements store.Store.
func (s *Store) SituationContext(ctx context.Context, tags []string) ([]store.SituationCount, error) {
	unique := uniqueStrings(tags)
	if len(unique) == 0 {
		return []store.SituationCount{}, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(situationContextSQL, placeholders(len(unique))), stringArgs(unique)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byName := make(map[string]store.SituationCount, len(unique))
	for rows.Next() {
		var sc store.SituationCount
		if err := rows.Scan(&sc.SituationType, &sc.RuleCount, &sc.CaseCount); err != nil {
			return nil, err
		}
		byName[sc.SituationType] = sc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]store.SituationCount, 0, len(byName))
	for _, tag := range unique {
		if sc, ok := byName[tag]; ok {
			out = append(out, sc)
		}
	}
	return out, nil
}

// RulesForSituations implements store.Store.
func (s *Store) RulesForSituations(ctx context.Context, tags []string, limit int) ([]store.Rule, error) {
	unique := uniqueStrings(tags)
	if len(unique) == 0 {
		return []store.Rule{}, nil
	}

	args := append(stringArgs(unique), sqlLimit(limit))
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(rulesSQL, placeholders(len(unique))), args...)
	if err != nil {
		return nil, err
	}

	results := []store.Rule{}
	for rows.Next() {
		var r store.Rule
		if err := rows.Scan(&r.ID, &r.Title, &r.Summary, &r.FullText, &r.LegalWeight); err != nil {
			rows.Close()
			return nil, err
		}
		results = append(results, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		sits, err := s.loadStringColumn(ctx, `SELECT situation FROM rule_situations WHERE rule_id = ? ORDER BY situation`, results[i].ID)
		if err != nil {
			return nil, err
		}
		results[i].Situations = sits
	}
	return results, nil
}

// CasesViolating implements store.Store.
func (s *Store) CasesViolating(ctx context.Context, ruleIDs []string, limit int) ([]store.Case, error) {
	unique := uniqueStrings(ruleIDs)
	if len(unique) == 0 {
		return []store.Case{}, nil
	}

	args := append(stringArgs(unique), sqlLimit(limit))
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(casesSQL, placeholders(len(unique))), args...)
	if err != nil {
		return nil, err
	}

	results := []store.Case{}
	for rows.Next() {
		var c store.Case
		if err := rows.Scan(&c.CaseID, &c.Title, &c.SituationType, &c.IncidentDescription,
			&c.Analysis, &c.Judgment, &c.Penalty, &c.LegalWeight); err != nil {
			rows.Close()
			return nil, err
		}
		results = append(results, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		lessons, err := s.loadStringColumn(ctx, `SELECT lesson FROM case_lessons WHERE case_id = ? ORDER BY position`, results[i].CaseID)
		if err != nil {
			return nil, err
		}
		results[i].Lessons = lessons
	}
	return results, nil
}

// Statement implements store.Store.
func (s *Store) Statement(q store.Query) string {
	var tmpl string
	switch q {
	case store.QuerySituationContext:
		tmpl = situationContextSQL
	case store.QueryRules:
		tmpl = rulesSQL
	case store.QueryCases:
		tmpl = casesSQL
	default:
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf(tmpl, "?..."))
}

func (s *Store) loadStringColumn(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(in []string) []interface{} {
	args := make([]interface{}, len(in))
	for i, v := range in {
		args[i] = v
	}
	return args
}

// sqlLimit maps a non-positive limit to SQLite's "no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
