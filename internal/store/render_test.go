package store

import (
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"gorm.io/gorm/clause"

	"github.com/gyaneshwarpardhi/livefeed/internal/filter"
)

func lowered(t *testing.T, expr string) []filter.Constraint {
	t.Helper()
	ast, err := filter.Parse(expr)
	if err != nil {
		t.Fatalf("Parse(%q): %v", expr, err)
	}
	cs, err := filter.Lower(ast)
	if err != nil {
		t.Fatalf("Lower(%q): %v", expr, err)
	}
	return cs
}

func TestSQLConjunction(t *testing.T) {
	col := func(name string) clause.Column { return clause.Column{Name: name} }
	cases := []struct {
		expr     string
		wantSQL  string
		wantVars []any
	}{
		{
			expr:     `direction == "right" AND amount >= 10`,
			wantSQL:  "(? = ? AND ? >= ?)",
			wantVars: []any{col("direction"), "right", col("amount"), 10.0},
		},
		{
			expr:     `winner_id != null`,
			wantSQL:  "(? IS NOT NULL)",
			wantVars: []any{col("winner_id")},
		},
		{
			expr:     `status != "void"`,
			wantSQL:  "((? <> ? OR ? IS NULL))",
			wantVars: []any{col("status"), "void", col("status")},
		},
		{
			expr:     `kind == "post" OR rank > 2`,
			wantSQL:  "(((? = ?) OR (? > ?)))",
			wantVars: []any{col("kind"), "post", col("rank"), 2.0},
		},
		{
			expr:     `NOT content contains "50%_off"`,
			wantSQL:  "(NOT COALESCE((? LIKE ?), FALSE))",
			wantVars: []any{col("content"), `%50\%\_off%`},
		},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			sql, vars, err := sqlConjunction(lowered(t, tc.expr))
			if err != nil {
				t.Fatalf("sqlConjunction: %v", err)
			}
			if sql != tc.wantSQL {
				t.Errorf("sql = %s, want %s", sql, tc.wantSQL)
			}
			if !reflect.DeepEqual(vars, tc.wantVars) {
				t.Errorf("vars = %v, want %v", vars, tc.wantVars)
			}
		})
	}
}

func TestPipelineFor_Match(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := Query{
		Entity:     "posts",
		TimeColumn: "created_at",
		Since:      since,
		Limit:      5,
		Where:      lowered(t, `deleted == false AND (kind == "post" OR NOT content contains "a.b")`),
	}
	pipeline, err := pipelineFor(q)
	if err != nil {
		t.Fatalf("pipelineFor: %v", err)
	}

	and := func(ds ...bson.D) bson.D {
		all := bson.A{}
		for _, d := range ds {
			all = append(all, d)
		}
		return bson.D{{Key: "$and", Value: all}}
	}
	want := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "created_at", Value: bson.D{{Key: "$gt", Value: since}}}},
		bson.D{{Key: "deleted", Value: bson.D{{Key: "$eq", Value: false}}}},
		bson.D{{Key: "$or", Value: bson.A{
			and(bson.D{{Key: "kind", Value: bson.D{{Key: "$eq", Value: "post"}}}}),
			and(bson.D{{Key: "$nor", Value: bson.A{
				and(bson.D{{Key: "content", Value: bson.D{{Key: "$regex", Value: `a\.b`}}}}),
			}}}),
		}}},
	}}}

	if len(pipeline) != 3 {
		t.Fatalf("pipeline has %d stages, want match, sort, limit", len(pipeline))
	}
	got := pipeline[0][0].Value
	if !reflect.DeepEqual(got, want) {
		t.Errorf("$match = %v\nwant     %v", got, want)
	}
}

func TestPipelineFor_NoConditions(t *testing.T) {
	pipeline, err := pipelineFor(Query{Entity: "tips", TimeColumn: "created_at"})
	if err != nil {
		t.Fatal(err)
	}
	if m := pipeline[0][0].Value.(bson.D); len(m) != 0 {
		t.Errorf("$match = %v, want empty", m)
	}
}
