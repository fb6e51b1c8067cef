package query

import (
	"testing"
)

func mustParse(t *testing.T, input string) *Query {
	t.Helper()
	q, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse(%q): %v", input, err)
	}
	return q
}

func TestParseFieldComparisons(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`status = "done"`, `status = done`},
		{`points > 3`, `points > 3`},
		{`points >= 3.5`, `points >= 3.5`},
		{`title ~ "launch"`, `title ~ launch`},
		{`title !~ draft`, `title !~ draft`},
		{`due < 2026-04-01`, `due < 2026-04-01`},
		{`due <= today`, `due <= today`},
		{`archived = true`, `archived = true`},
		{`notes = EMPTY`, `notes = EMPTY`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			q := mustParse(t, tt.input)
			if q.Root.String() != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.input, q.Root, tt.want)
			}
		})
	}
}

func TestParseBooleanOperators(t *testing.T) {
	q := mustParse(t, `status = done AND points > 3`)
	if got := q.Root.String(); got != `(status = done AND points > 3)` {
		t.Errorf("got %s", got)
	}

	q = mustParse(t, `status = done OR status = archived`)
	if got := q.Root.String(); got != `(status = done OR status = archived)` {
		t.Errorf("got %s", got)
	}

	// AND binds tighter than OR.
	q = mustParse(t, `a = 1 OR b = 2 AND c = 3`)
	if got := q.Root.String(); got != `(a = 1 OR (b = 2 AND c = 3))` {
		t.Errorf("precedence: got %s", got)
	}

	// Parentheses override.
	q = mustParse(t, `(a = 1 OR b = 2) AND c = 3`)
	if got := q.Root.String(); got != `((a = 1 OR b = 2) AND c = 3)` {
		t.Errorf("grouping: got %s", got)
	}

	q = mustParse(t, `NOT status = done`)
	if got := q.Root.String(); got != `(NOT status = done)` {
		t.Errorf("not: got %s", got)
	}
}

func TestParseImplicitAnd(t *testing.T) {
	q := mustParse(t, `status = done points > 3`)
	if got := q.Root.String(); got != `(status = done AND points > 3)` {
		t.Errorf("implicit and: got %s", got)
	}
}

func TestParseTextSearchAndHas(t *testing.T) {
	q := mustParse(t, `"roadmap review"`)
	if _, ok := q.Root.(*TextSearch); !ok {
		t.Fatalf("want TextSearch, got %T", q.Root)
	}

	q = mustParse(t, `has(assignee)`)
	h, ok := q.Root.(*HasExpr)
	if !ok {
		t.Fatalf("want HasExpr, got %T", q.Root)
	}
	if h.Field != "assignee" {
		t.Errorf("field: got %s", h.Field)
	}
}

func TestParseEmptyInputMatchesAll(t *testing.T) {
	q := mustParse(t, "   ")
	if q.Root != nil {
		t.Fatalf("blank filter should have nil root, got %v", q.Root)
	}
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{
		`status =`,
		`(status = done`,
		`status = "unterminated`,
		`= done`,
		`a = 1 )`,
	} {
		if _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q) should fail", input)
		}
	}
}

func TestLexerEscapedOperators(t *testing.T) {
	q := mustParse(t, `status \!= done`)
	f, ok := q.Root.(*FieldExpr)
	if !ok {
		t.Fatalf("want FieldExpr, got %T", q.Root)
	}
	if f.Operator != OpNeq {
		t.Errorf("operator: got %s, want !=", f.Operator)
	}
}
