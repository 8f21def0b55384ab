package loader

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/vedaprep/pkg/core"
)

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// parseYAML decodes a YAML document through yaml.Node so mapping order survives.
func parseYAML(path string, content []byte) (*core.OrderedMap, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		perr := &core.ParseError{File: path, Msg: err.Error(), Err: err}
		if m := yamlLinePattern.FindStringSubmatch(err.Error()); m != nil {
			perr.Line, _ = strconv.Atoi(m[1])
		}
		return nil, perr
	}

	// empty document
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return core.NewOrderedMap(), nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &core.ParseError{File: path, Line: root.Line, Column: root.Column, Msg: "document root must be a mapping"}
	}

	value, err := convertYAML(path, root)
	if err != nil {
		return nil, err
	}
	return value.(*core.OrderedMap), nil
}

func convertYAML(path string, node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.AliasNode:
		return convertYAML(path, node.Alias)

	case yaml.MappingNode:
		out := core.NewOrderedMap()
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode, valueNode := node.Content[i], node.Content[i+1]
			if keyNode.Kind != yaml.ScalarNode {
				return nil, yamlError(path, keyNode, "mapping keys must be scalars")
			}
			if out.Has(keyNode.Value) {
				return nil, yamlError(path, keyNode, fmt.Sprintf("duplicate key %q", keyNode.Value))
			}
			v, err := convertYAML(path, valueNode)
			if err != nil {
				return nil, err
			}
			out.Set(keyNode.Value, v)
		}
		return out, nil

	case yaml.SequenceNode:
		out := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			v, err := convertYAML(path, item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case yaml.ScalarNode:
		return convertYAMLScalar(path, node)

	default:
		return nil, yamlError(path, node, "unsupported node")
	}
}

func convertYAMLScalar(path string, node *yaml.Node) (any, error) {
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, yamlError(path, node, err.Error())
	}
	switch val := v.(type) {
	case nil:
		return "", nil
	case string, bool, float64:
		return val, nil
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, yamlError(path, node, fmt.Sprintf("integer %d out of range", val))
		}
		return int64(val), nil
	default:
		// timestamps and other tagged scalars keep their source text
		return node.Value, nil
	}
}

func yamlError(path string, node *yaml.Node, msg string) error {
	return &core.ParseError{File: path, Line: node.Line, Column: node.Column, Msg: msg}
}
