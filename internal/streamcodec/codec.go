// Package streamcodec converts the attribute-tagged wire form emitted by
// the raw-messages table's change feed into plain values and back.
package streamcodec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownTag reports an attribute tag the codec does not support.
var ErrUnknownTag = errors.New("streamcodec: unknown attribute tag")

// wireTags is the closed set of single-key attribute tags. Tags present
// in the wire format but not carried by this channel's records decode as
// an error rather than silently dropping data.
var wireTags = map[string]bool{
	"S": true, "N": true, "M": true, "L": true, "BOOL": true, "NULL": true,
	"B": true, "SS": true, "NS": true, "BS": true,
}

// Decode converts a tagged value into its plain form, recursively.
// Numbers containing a decimal point decode as float64, all others as
// int64. Already-plain maps pass through unchanged structurally, so
// Decode is safe to re-apply.
func Decode(v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return v, nil
	}

	if len(m) == 1 {
		for tag, inner := range m {
			if wireTags[tag] {
				return decodeTagged(tag, inner)
			}
		}
	}

	out := make(map[string]any, len(m))
	for k, inner := range m {
		dv, err := Decode(inner)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = dv
	}
	return out, nil
}

func decodeTagged(tag string, value any) (any, error) {
	switch tag {
	case "S":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("streamcodec: S tag holds %T, want string", value)
		}
		return s, nil
	case "N":
		return decodeNumber(value)
	case "BOOL":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("streamcodec: BOOL tag holds %T, want bool", value)
		}
		return b, nil
	case "NULL":
		return nil, nil
	case "M":
		inner, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("streamcodec: M tag holds %T, want map", value)
		}
		out := make(map[string]any, len(inner))
		for k, v := range inner {
			dv, err := Decode(v)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = dv
		}
		return out, nil
	case "L":
		inner, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("streamcodec: L tag holds %T, want list", value)
		}
		out := make([]any, len(inner))
		for i, v := range inner {
			dv, err := Decode(v)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = dv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
}

func decodeNumber(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("streamcodec: N tag holds %T, want string", value)
	}
	if strings.Contains(s, ".") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("streamcodec: malformed number %q: %w", s, err)
		}
		return f, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("streamcodec: malformed number %q: %w", s, err)
	}
	return n, nil
}

// Encode is the inverse of Decode: it wraps a plain value in the tagged
// wire form. Used by tests to assert round-trip fidelity.
func Encode(v any) any {
	switch t := v.(type) {
	case nil:
		return map[string]any{"NULL": true}
	case string:
		return map[string]any{"S": t}
	case bool:
		return map[string]any{"BOOL": t}
	case int:
		return map[string]any{"N": strconv.Itoa(t)}
	case int64:
		return map[string]any{"N": strconv.FormatInt(t, 10)}
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			// keep the float/integer distinction through a round trip
			s += ".0"
		}
		return map[string]any{"N": s}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = Encode(inner)
		}
		return map[string]any{"M": out}
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = Encode(inner)
		}
		return map[string]any{"L": out}
	default:
		return map[string]any{"S": fmt.Sprint(t)}
	}
}
