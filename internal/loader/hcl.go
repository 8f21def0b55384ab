package loader

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// parseHCL decodes an HCL document without evaluating variables or functions.
// Attributes and blocks are emitted in source order; a block
// `Type "a" "b" { ... }` nests as Type → a → b → body.
func parseHCL(path string, content []byte) (*core.OrderedMap, error) {
	file, diags := hclsyntax.ParseConfig(content, path, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, hclParseError(path, diags)
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, &core.ParseError{File: path, Msg: "unexpected HCL body type"}
	}
	return convertHCLBody(path, body)
}

func hclParseError(path string, diags hcl.Diagnostics) error {
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		perr := &core.ParseError{File: path, Msg: d.Summary, Err: diags}
		if d.Detail != "" {
			perr.Msg += ": " + d.Detail
		}
		if d.Subject != nil {
			perr.Line = d.Subject.Start.Line
			perr.Column = d.Subject.Start.Column
		}
		return perr
	}
	return &core.ParseError{File: path, Msg: diags.Error(), Err: diags}
}

type hclItem struct {
	offset int
	attr   *hclsyntax.Attribute
	block  *hclsyntax.Block
}

func convertHCLBody(path string, body *hclsyntax.Body) (*core.OrderedMap, error) {
	items := make([]hclItem, 0, len(body.Attributes)+len(body.Blocks))
	for _, attr := range body.Attributes {
		items = append(items, hclItem{offset: attr.SrcRange.Start.Byte, attr: attr})
	}
	for _, block := range body.Blocks {
		items = append(items, hclItem{offset: block.TypeRange.Start.Byte, block: block})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].offset < items[j].offset })

	out := core.NewOrderedMap()
	for _, item := range items {
		if item.attr != nil {
			v, err := convertHCLExpr(path, item.attr.Expr)
			if err != nil {
				return nil, err
			}
			out.Set(item.attr.Name, v)
			continue
		}
		if err := mergeHCLBlock(path, out, item.block); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func mergeHCLBlock(path string, out *core.OrderedMap, block *hclsyntax.Block) error {
	labels := append([]string{block.Type}, block.Labels...)
	parent := out
	for _, label := range labels[:len(labels)-1] {
		existing, ok := parent.Get(label)
		if !ok {
			next := core.NewOrderedMap()
			parent.Set(label, next)
			parent = next
			continue
		}
		next, isMap := existing.(*core.OrderedMap)
		if !isMap {
			return hclRangeError(path, block.TypeRange, fmt.Sprintf("block %q conflicts with an attribute", label))
		}
		parent = next
	}

	last := labels[len(labels)-1]
	if parent.Has(last) {
		return hclRangeError(path, block.TypeRange, fmt.Sprintf("duplicate block %q", last))
	}
	body, err := convertHCLBody(path, block.Body)
	if err != nil {
		return err
	}
	parent.Set(last, body)
	return nil
}

func convertHCLExpr(path string, expr hclsyntax.Expression) (any, error) {
	switch e := expr.(type) {
	case *hclsyntax.ObjectConsExpr:
		out := core.NewOrderedMap()
		for _, item := range e.Items {
			keyVal, diags := item.KeyExpr.Value(nil)
			if diags.HasErrors() {
				return nil, hclParseError(path, diags)
			}
			key, err := ctyToGo(keyVal)
			if err != nil {
				return nil, hclRangeError(path, item.KeyExpr.Range(), err.Error())
			}
			keyStr, ok := key.(string)
			if !ok {
				keyStr = fmt.Sprint(key)
			}
			if out.Has(keyStr) {
				return nil, hclRangeError(path, item.KeyExpr.Range(), fmt.Sprintf("duplicate key %q", keyStr))
			}
			v, err := convertHCLExpr(path, item.ValueExpr)
			if err != nil {
				return nil, err
			}
			out.Set(keyStr, v)
		}
		return out, nil

	case *hclsyntax.TupleConsExpr:
		out := make([]any, 0, len(e.Exprs))
		for _, item := range e.Exprs {
			v, err := convertHCLExpr(path, item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	default:
		val, diags := expr.Value(nil)
		if diags.HasErrors() {
			return nil, hclParseError(path, diags)
		}
		v, err := ctyToGo(val)
		if err != nil {
			return nil, hclRangeError(path, expr.Range(), err.Error())
		}
		return v, nil
	}
}

// ctyToGo converts a known cty value into the loader's value model.
func ctyToGo(val cty.Value) (any, error) {
	if val.IsNull() {
		return "", nil
	}
	if !val.IsKnown() {
		return nil, fmt.Errorf("value is not known without evaluation")
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == 0 {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsObjectType() || ty.IsMapType():
		// cty objects carry no source order; keys come back sorted
		out := core.NewOrderedMap()
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			gv, err := ctyToGo(v)
			if err != nil {
				return nil, err
			}
			out.Set(k.AsString(), gv)
		}
		return out, nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		var out []any
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			gv, err := ctyToGo(v)
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}

func hclRangeError(path string, rng hcl.Range, msg string) error {
	return &core.ParseError{File: path, Line: rng.Start.Line, Column: rng.Start.Column, Msg: msg}
}
