package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cognicore/navrag/pkg/navrag/knowledge"
	"github.com/cognicore/navrag/pkg/navrag/store"
	"github.com/cognicore/navrag/pkg/navrag/store/memstore"
)

var _ store.Store = (*Store)(nil)

func openImported(t *testing.T) (*Store, *knowledge.Base) {
	t.Helper()
	ctx := context.Background()

	st, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	base, err := knowledge.Default()
	if err != nil {
		t.Fatalf("knowledge.Default: %v", err)
	}
	if err := st.Import(ctx, base); err != nil {
		t.Fatalf("Import: %v", err)
	}
	return st, base
}

// TestSQLiteMatchesMemstore runs the three queries against both stores and
// expects identical rows.
func TestSQLiteMatchesMemstore(t *testing.T) {
	ctx := context.Background()
	st, base := openImported(t)
	mem := memstore.FromBase(base)

	tagSets := [][]string{
		{"restricted visibility", "crossing", "vessel-category duty"},
		{"head-on", "narrow channel"},
		{"general navigation"},
		{"iceberg"},
	}
	for _, tags := range tagSets {
		wantRules, _ := mem.RulesForSituations(ctx, tags, 5)
		gotRules, err := st.RulesForSituations(ctx, tags, 5)
		if err != nil {
			t.Fatalf("RulesForSituations(%v): %v", tags, err)
		}
		if len(gotRules) != len(wantRules) {
			t.Fatalf("tags %v: expected %d rules, got %d", tags, len(wantRules), len(gotRules))
		}
		ids := make([]string, len(gotRules))
		for i := range gotRules {
			if gotRules[i].ID != wantRules[i].ID {
				t.Fatalf("tags %v rule %d: expected %s, got %s", tags, i, wantRules[i].ID, gotRules[i].ID)
			}
			if strings.Join(gotRules[i].Situations, ",") != strings.Join(wantRules[i].Situations, ",") {
				t.Errorf("rule %s situations: expected %v, got %v", gotRules[i].ID, wantRules[i].Situations, gotRules[i].Situations)
			}
			ids[i] = gotRules[i].ID
		}

		wantCases, _ := mem.CasesViolating(ctx, ids, 3)
		gotCases, err := st.CasesViolating(ctx, ids, 3)
		if err != nil {
			t.Fatalf("CasesViolating: %v", err)
		}
		if len(gotCases) != len(wantCases) {
			t.Fatalf("rules %v: expected %d cases, got %d", ids, len(wantCases), len(gotCases))
		}
		for i := range gotCases {
			if gotCases[i].CaseID != wantCases[i].CaseID {
				t.Fatalf("case %d: expected %s, got %s", i, wantCases[i].CaseID, gotCases[i].CaseID)
			}
			if strings.Join(gotCases[i].Lessons, "|") != strings.Join(wantCases[i].Lessons, "|") {
				t.Errorf("case %s lessons: expected %v, got %v", gotCases[i].CaseID, wantCases[i].Lessons, gotCases[i].Lessons)
			}
		}

		wantCtx, _ := mem.SituationContext(ctx, tags)
		gotCtx, err := st.SituationContext(ctx, tags)
		if err != nil {
			t.Fatalf("SituationContext: %v", err)
		}
		if len(gotCtx) != len(wantCtx) {
			t.Fatalf("tags %v: expected %v, got %v", tags, wantCtx, gotCtx)
		}
		for i := range gotCtx {
			if gotCtx[i] != wantCtx[i] {
				t.Errorf("context row %d: expected %+v, got %+v", i, wantCtx[i], gotCtx[i])
			}
		}
	}
}

func TestSQLiteImportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st, base := openImported(t)
	if err := st.Import(ctx, base); err != nil {
		t.Fatalf("second Import: %v", err)
	}

	cases, err := st.CasesViolating(ctx, []string{"rule_19"}, 0)
	if err != nil {
		t.Fatalf("CasesViolating: %v", err)
	}
	if len(cases) != 1 || len(cases[0].Lessons) != 2 {
		t.Fatalf("expected one case with two lessons, got %+v", cases)
	}
}

func TestSQLiteEmptyInputs(t *testing.T) {
	ctx := context.Background()
	st, _ := openImported(t)

	rules, err := st.RulesForSituations(ctx, nil, 5)
	if err != nil || rules == nil || len(rules) != 0 {
		t.Fatalf("expected empty rules, got %#v %v", rules, err)
	}
	cases, err := st.CasesViolating(ctx, []string{}, 3)
	if err != nil || cases == nil || len(cases) != 0 {
		t.Fatalf("expected empty cases, got %#v %v", cases, err)
	}
}

func TestSQLiteConcurrentReads(t *testing.T) {
	ctx := context.Background()
	st, _ := openImported(t)
	tags := []string{"restricted visibility", "crossing"}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.RulesForSituations(ctx, tags, 5); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent read: %v", err)
	}
}

func TestSQLiteStatementAndPing(t *testing.T) {
	st, _ := openImported(t)
	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if stmt := st.Statement(store.QueryRules); !strings.Contains(stmt, "ORDER BY r.legal_weight DESC") {
		t.Fatalf("unexpected statement: %s", stmt)
	}
	if st.Statement(store.Query("bogus")) != "" {
		t.Fatal("expected empty statement for unknown query")
	}
}
