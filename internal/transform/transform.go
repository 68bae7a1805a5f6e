// Package transform provides the pluggable serialize/deserialize hook applied
// to the data part of every encoded value.
package transform

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownTransformer = errors.New("transform: unknown transformer")
	ErrMalformedTag       = errors.New("transform: malformed tagged value")
)

const (
	NameIdentity = "identity"
	NameTagged   = "tagged"
)

// Transformer converts values to and from JSON-friendly shapes. Serialize
// runs on the producer before encoding; Deserialize runs on the consumer
// after decoding. Placeholders (the number 0) must pass through untouched.
type Transformer interface {
	Serialize(v any) (any, error)
	Deserialize(v any) (any, error)
}

type identity struct{}

func (identity) Serialize(v any) (any, error)   { return v, nil }
func (identity) Deserialize(v any) (any, error) { return v, nil }

// Identity leaves values unchanged.
var Identity Transformer = identity{}

// ByName resolves a configured transformer name.
func ByName(name string) (Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameIdentity:
		return Identity, nil
	case NameTagged:
		return Tagged{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransformer, name)
	}
}

const (
	tagKey   = "$type"
	tagValue = "value"
	tagDate  = "date"
	tagBytes = "bytes"
)

// Tagged preserves time.Time and []byte across the wire by wrapping them as
// {"$type": "...", "value": "..."} objects.
type Tagged struct{}

func (t Tagged) Serialize(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return map[string]any{tagKey: tagDate, tagValue: x.UTC().Format(time.RFC3339Nano)}, nil
	case []byte:
		return map[string]any{tagKey: tagBytes, tagValue: base64.StdEncoding.EncodeToString(x)}, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			s, err := t.Serialize(item)
			if err != nil {
				return nil, err
			}
			out[k] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			s, err := t.Serialize(item)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	default:
		return v, nil
	}
}

func (t Tagged) Deserialize(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if tag, ok := x[tagKey].(string); ok && len(x) == 2 {
			return decodeTag(tag, x[tagValue])
		}
		out := make(map[string]any, len(x))
		for k, item := range x {
			d, err := t.Deserialize(item)
			if err != nil {
				return nil, err
			}
			out[k] = d
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			d, err := t.Deserialize(item)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	default:
		return v, nil
	}
}

func decodeTag(tag string, raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s value is %T", ErrMalformedTag, tag, raw)
	}
	switch tag {
	case tagDate:
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTag, err)
		}
		return ts, nil
	case tagBytes:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTag, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown tag %q", ErrMalformedTag, tag)
	}
}
