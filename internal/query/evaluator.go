package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ferris/airbase/internal/dateparse"
	"github.com/ferris/airbase/internal/models"
)

// Evaluator applies a parsed filter to records. Relative date literals
// resolve against Now, fixed at construction so one listing is consistent.
type Evaluator struct {
	query *Query
	now   time.Time
}

// NewEvaluator creates an evaluator for the query.
func NewEvaluator(q *Query) *Evaluator {
	return &Evaluator{query: q, now: time.Now()}
}

// Filter returns the records matching the query, preserving input order.
func (e *Evaluator) Filter(records []models.Record) ([]models.Record, error) {
	if e.query.Root == nil {
		return records, nil
	}
	var out []models.Record
	for i := range records {
		ok, err := e.Matches(&records[i])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, records[i])
		}
	}
	return out, nil
}

// Matches reports whether one record satisfies the query.
func (e *Evaluator) Matches(rec *models.Record) (bool, error) {
	if e.query.Root == nil {
		return true, nil
	}
	return e.eval(e.query.Root, rec)
}

func (e *Evaluator) eval(node Node, rec *models.Record) (bool, error) {
	switch n := node.(type) {
	case *BinaryExpr:
		left, err := e.eval(n.Left, rec)
		if err != nil {
			return false, err
		}
		// Short-circuit.
		if n.Op == OpAnd && !left {
			return false, nil
		}
		if n.Op == OpOr && left {
			return true, nil
		}
		return e.eval(n.Right, rec)

	case *UnaryExpr:
		ok, err := e.eval(n.Expr, rec)
		return !ok, err

	case *FieldExpr:
		return e.evalField(n, rec)

	case *HasExpr:
		value, present := fieldValue(rec, n.Field)
		return present && !isEmptyValue(value), nil

	case *TextSearch:
		return textMatch(rec, n.Text), nil

	default:
		return false, fmt.Errorf("unhandled filter node %T", node)
	}
}

func (e *Evaluator) evalField(expr *FieldExpr, rec *models.Record) (bool, error) {
	value, present := fieldValue(rec, expr.Field)

	if _, wantEmpty := expr.Value.(Empty); wantEmpty {
		empty := !present || isEmptyValue(value)
		if expr.Operator == OpNeq {
			return !empty, nil
		}
		return empty, nil
	}

	if !present {
		// Absent fields only satisfy negative operators.
		return expr.Operator == OpNeq || expr.Operator == OpNotContains, nil
	}

	switch expr.Operator {
	case OpEq:
		return equalValues(value, expr.Value, e.now), nil
	case OpNeq:
		return !equalValues(value, expr.Value, e.now), nil
	case OpContains:
		return containsValue(value, expr.Value), nil
	case OpNotContains:
		return !containsValue(value, expr.Value), nil
	case OpLt, OpGt, OpLte, OpGte:
		cmp, err := compareValues(value, expr.Value, e.now)
		if err != nil {
			return false, fmt.Errorf("field %s: %w", expr.Field, err)
		}
		switch expr.Operator {
		case OpLt:
			return cmp < 0, nil
		case OpGt:
			return cmp > 0, nil
		case OpLte:
			return cmp <= 0, nil
		default:
			return cmp >= 0, nil
		}
	default:
		return false, fmt.Errorf("unknown operator %q", expr.Operator)
	}
}

// fieldValue resolves a field name against the record: meta fields from the
// envelope, everything else from the fields document.
func fieldValue(rec *models.Record, field string) (any, bool) {
	if metaFields[field] {
		switch field {
		case "id":
			return rec.ID, true
		case "created":
			return rec.CreatedAt, !rec.CreatedAt.IsZero()
		case "updated":
			return rec.UpdatedAt, !rec.UpdatedAt.IsZero()
		}
	}
	v, ok := rec.Fields[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func equalValues(got, want any, now time.Time) bool {
	if d, ok := want.(*DateValue); ok {
		gotT, wantT, err := resolveDates(got, d, now)
		if err != nil {
			return false
		}
		return sameDay(gotT, wantT)
	}
	if wantN, ok := toNumber(want); ok {
		if gotN, ok := toNumber(got); ok {
			return gotN == wantN
		}
		return false
	}
	if wantB, ok := want.(bool); ok {
		gotB, ok := got.(bool)
		return ok && gotB == wantB
	}
	return strings.EqualFold(toString(got), toString(want))
}

func containsValue(got, want any) bool {
	needle := strings.ToLower(toString(want))
	switch t := got.(type) {
	case []any:
		for _, item := range t {
			if strings.Contains(strings.ToLower(toString(item)), needle) {
				return true
			}
		}
		return false
	default:
		return strings.Contains(strings.ToLower(toString(got)), needle)
	}
}

// compareValues orders two values: dates when the literal is a date, numbers
// when both sides are numeric, strings otherwise.
func compareValues(got, want any, now time.Time) (int, error) {
	if d, ok := want.(*DateValue); ok {
		gotT, wantT, err := resolveDates(got, d, now)
		if err != nil {
			return 0, err
		}
		switch {
		case gotT.Before(wantT):
			return -1, nil
		case gotT.After(wantT):
			return 1, nil
		default:
			return 0, nil
		}
	}
	if wantN, ok := toNumber(want); ok {
		gotN, ok := toNumber(got)
		if !ok {
			return 0, fmt.Errorf("cannot compare %q numerically", toString(got))
		}
		switch {
		case gotN < wantN:
			return -1, nil
		case gotN > wantN:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return strings.Compare(toString(got), toString(want)), nil
}

func resolveDates(got any, want *DateValue, now time.Time) (time.Time, time.Time, error) {
	wantT, err := dateparse.ParseFrom(want.Raw, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	var gotT time.Time
	switch t := got.(type) {
	case time.Time:
		gotT = t
	case string:
		gotT, err = dateparse.ParseFrom(t, now)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("value %q is not a date", t)
		}
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("value %v is not a date", got)
	}
	return gotT, wantT, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// textMatch searches every string-valued field plus the record id.
func textMatch(rec *models.Record, text string) bool {
	needle := strings.ToLower(text)
	if strings.Contains(strings.ToLower(rec.ID), needle) {
		return true
	}
	for _, v := range rec.Fields {
		switch t := v.(type) {
		case string:
			if strings.Contains(strings.ToLower(t), needle) {
				return true
			}
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok && strings.Contains(strings.ToLower(s), needle) {
					return true
				}
			}
		}
	}
	return false
}
