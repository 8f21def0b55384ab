package loader

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/leapstack-labs/vedaprep/pkg/core"
)

const keySep = "\x00"

// parseTOML decodes a TOML document. The decoder returns plain maps, so key
// order is recovered from the decoder metadata, which lists keys in the order
// they appear in the source.
func parseTOML(path string, content []byte) (*core.OrderedMap, error) {
	var raw map[string]any
	md, err := toml.Decode(string(content), &raw)
	if err != nil {
		return nil, tomlParseError(path, err)
	}

	order := make(map[string]int)
	for i, key := range md.Keys() {
		joined := strings.Join(key, keySep)
		if _, seen := order[joined]; !seen {
			order[joined] = i
		}
	}

	value, err := convertTOML(path, raw, nil, order)
	if err != nil {
		return nil, err
	}
	return value.(*core.OrderedMap), nil
}

func tomlParseError(path string, err error) error {
	var perr toml.ParseError
	if errors.As(err, &perr) {
		return &core.ParseError{File: path, Line: perr.Position.Line, Msg: perr.Message, Err: err}
	}
	return &core.ParseError{File: path, Msg: err.Error(), Err: err}
}

func convertTOML(path string, v any, keyPath []string, order map[string]int) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		return orderedFromTOML(path, val, keyPath, order)
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			m, err := orderedFromTOML(path, item, keyPath, order)
			if err != nil {
				return nil, err
			}
			out[i] = m
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			c, err := convertTOML(path, item, keyPath, order)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case string, int64, float64, bool:
		return val, nil
	case time.Time:
		return formatTOMLTime(val), nil
	default:
		return nil, &core.ParseError{
			File: path,
			Msg:  fmt.Sprintf("unsupported value of type %T at %s", v, strings.Join(keyPath, ".")),
		}
	}
}

func orderedFromTOML(path string, m map[string]any, keyPath []string, order map[string]int) (*core.OrderedMap, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	prefix := strings.Join(keyPath, keySep)
	if prefix != "" {
		prefix += keySep
	}
	position := func(k string) (int, bool) {
		i, ok := order[prefix+k]
		return i, ok
	}
	sort.SliceStable(keys, func(i, j int) bool {
		pi, oki := position(keys[i])
		pj, okj := position(keys[j])
		switch {
		case oki && okj:
			return pi < pj
		case oki != okj:
			return oki
		default:
			return keys[i] < keys[j]
		}
	})

	out := core.NewOrderedMap()
	for _, k := range keys {
		child := append(append([]string(nil), keyPath...), k)
		c, err := convertTOML(path, m[k], child, order)
		if err != nil {
			return nil, err
		}
		out.Set(k, c)
	}
	return out, nil
}

// formatTOMLTime renders a decoded TOML date/time. Local values carry a
// marker zone from the decoder and are rendered without an offset.
func formatTOMLTime(t time.Time) string {
	switch t.Location().String() {
	case "date-local":
		return t.Format(time.DateOnly)
	case "time-local":
		return t.Format("15:04:05.999999999")
	case "datetime-local":
		return t.Format("2006-01-02T15:04:05.999999999")
	default:
		return t.Format(time.RFC3339Nano)
	}
}
