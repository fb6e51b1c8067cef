// Package query implements the record filter language used by record listing:
// field comparisons over a record's fields document, combined with boolean
// operators. Filters evaluate locally so they work identically against the
// offline store and fresh server data.
package query

import (
	"fmt"
	"strings"
)

// Node is the interface for all filter AST nodes.
type Node interface {
	String() string
}

// BinaryExpr is an AND/OR combination.
type BinaryExpr struct {
	Op    string // OpAnd or OpOr
	Left  Node
	Right Node
}

func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// UnaryExpr is a NOT.
type UnaryExpr struct {
	Expr Node
}

func (u *UnaryExpr) String() string {
	return fmt.Sprintf("(NOT %s)", u.Expr)
}

// FieldExpr compares one field against a literal value.
type FieldExpr struct {
	Field    string // a record field name, or one of the meta fields
	Operator string
	Value    any // string, float64, *DateValue, or Empty
}

func (f *FieldExpr) String() string {
	return fmt.Sprintf("%s %s %v", f.Field, f.Operator, f.Value)
}

// HasExpr is has(field): the field exists and is non-empty.
type HasExpr struct {
	Field string
}

func (h *HasExpr) String() string {
	return fmt.Sprintf("has(%s)", h.Field)
}

// TextSearch is a bare string: a case-insensitive substring match across all
// string-valued fields of the record.
type TextSearch struct {
	Text string
}

func (t *TextSearch) String() string {
	return fmt.Sprintf("%q", t.Text)
}

// DateValue is an absolute or relative date literal. It stays unresolved
// until evaluation so relative forms track the evaluation time.
type DateValue struct {
	Raw string // "2026-03-01", "-7d", "today", ...
}

func (d *DateValue) String() string {
	return d.Raw
}

// Empty is the EMPTY literal: matches absent or zero-length values.
type Empty struct{}

func (Empty) String() string { return "EMPTY" }

// Comparison operators.
const (
	OpEq          = "="
	OpNeq         = "!="
	OpLt          = "<"
	OpGt          = ">"
	OpLte         = "<="
	OpGte         = ">="
	OpContains    = "~"
	OpNotContains = "!~"
)

// Boolean operators.
const (
	OpAnd = "AND"
	OpOr  = "OR"
)

// Meta fields resolve against the record envelope rather than its fields
// document.
var metaFields = map[string]bool{
	"id":      true,
	"created": true,
	"updated": true,
}

// Query is a parsed filter.
type Query struct {
	Root Node
	Raw  string
}

func (q *Query) String() string {
	if q.Root == nil {
		return strings.TrimSpace(q.Raw)
	}
	return q.Root.String()
}
