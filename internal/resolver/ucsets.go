package resolver

import (
	"fmt"
	"math/big"

	"go.starlark.net/syntax"

	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// ParseUCSets parses the string form of a UCSets mapping, for example
//
//	{'R_S': 'Allregions', 'T_S': ''}
//
// The text is parsed as an expression and the syntax tree is walked; nothing
// is evaluated. Only a dict with string keys and string, number or boolean
// values is accepted. An empty or blank string means no UCSets and yields nil.
func ParseUCSets(src string) (*core.OrderedMap, error) {
	if isBlank(src) {
		return nil, nil
	}

	opts := &syntax.FileOptions{}
	expr, err := opts.ParseExpr("UCSets", src, 0)
	if err != nil {
		return nil, fmt.Errorf("invalid UCSets literal: %w", err)
	}

	dict, ok := expr.(*syntax.DictExpr)
	if !ok {
		return nil, fmt.Errorf("UCSets literal must be a mapping, got %s", describeExpr(expr))
	}

	out := core.NewOrderedMap()
	for _, item := range dict.List {
		entry, ok := item.(*syntax.DictEntry)
		if !ok {
			return nil, fmt.Errorf("UCSets literal contains %s", describeExpr(item))
		}
		keyLit, ok := entry.Key.(*syntax.Literal)
		if !ok || keyLit.Token != syntax.STRING {
			return nil, fmt.Errorf("UCSets keys must be string literals, got %s", describeExpr(entry.Key))
		}
		key, _ := keyLit.Value.(string)
		if out.Has(key) {
			return nil, fmt.Errorf("UCSets literal repeats key %q", key)
		}
		value, err := literalValue(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("UCSets value for %q: %w", key, err)
		}
		out.Set(key, value)
	}

	if out.Len() == 0 {
		return nil, nil
	}
	return out, nil
}

func literalValue(expr syntax.Expr) (any, error) {
	switch e := expr.(type) {
	case *syntax.Literal:
		switch e.Token {
		case syntax.STRING:
			s, _ := e.Value.(string)
			return s, nil
		case syntax.INT:
			return intLiteral(e)
		case syntax.FLOAT:
			f, _ := e.Value.(float64)
			return f, nil
		default:
			return nil, fmt.Errorf("unsupported literal %s", e.Raw)
		}

	case *syntax.Ident:
		switch e.Name {
		case "True", "true":
			return true, nil
		case "False", "false":
			return false, nil
		default:
			return nil, fmt.Errorf("identifier %q is not allowed", e.Name)
		}

	case *syntax.UnaryExpr:
		if e.Op != syntax.MINUS {
			return nil, fmt.Errorf("operator %s is not allowed", e.Op)
		}
		v, err := literalValue(e.X)
		if err != nil {
			return nil, err
		}
		switch n := v.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		default:
			return nil, fmt.Errorf("unary minus applies only to numbers")
		}

	case *syntax.ParenExpr:
		return literalValue(e.X)

	default:
		return nil, fmt.Errorf("%s is not allowed", describeExpr(expr))
	}
}

func intLiteral(lit *syntax.Literal) (any, error) {
	switch v := lit.Value.(type) {
	case int64:
		return v, nil
	case *big.Int:
		if v.IsInt64() {
			return v.Int64(), nil
		}
		return nil, fmt.Errorf("integer %s out of range", lit.Raw)
	default:
		return nil, fmt.Errorf("unsupported integer literal %s", lit.Raw)
	}
}

// describeExpr names an expression kind for error messages.
func describeExpr(expr syntax.Expr) string {
	switch e := expr.(type) {
	case *syntax.Literal:
		return "literal " + e.Raw
	case *syntax.Ident:
		return "identifier " + e.Name
	case *syntax.CallExpr:
		return "a function call"
	case *syntax.DictExpr:
		return "a nested mapping"
	case *syntax.ListExpr, *syntax.TupleExpr:
		return "a sequence"
	case *syntax.BinaryExpr:
		return "a binary expression"
	case *syntax.DotExpr, *syntax.IndexExpr, *syntax.SliceExpr:
		return "an attribute or index expression"
	case *syntax.Comprehension, *syntax.LambdaExpr, *syntax.CondExpr:
		return "a computed expression"
	default:
		return fmt.Sprintf("%T", expr)
	}
}

// canonicalUCSets validates the mapping form of UCSets and returns a copy.
func canonicalUCSets(m *core.OrderedMap) (*core.OrderedMap, error) {
	if m.Len() == 0 {
		return nil, nil
	}
	out := core.NewOrderedMap()
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		switch v.(type) {
		case string, int64, float64, bool:
			out.Set(k, v)
		default:
			return nil, fmt.Errorf("UCSets value for %q must be a string, number or boolean", k)
		}
	}
	return out, nil
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
