package protocol

import (
	"encoding/json"
	"fmt"
)

func (d ChunkDefinition) MarshalJSON() ([]byte, error) {
	switch d.Key.(type) {
	case nil, string, int:
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidKey, d.Key)
	}
	if d.Kind != KindPromise && d.Kind != KindIterable {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, d.Kind)
	}
	return json.Marshal([]any{d.Key, int(d.Kind), int(d.Index)})
}

func (v Value) MarshalJSON() ([]byte, error) {
	parts := make([]any, 0, 1+len(v.Defs))
	parts = append(parts, []any{v.Data})
	for _, def := range v.Defs {
		parts = append(parts, def)
	}
	return json.Marshal(parts)
}

func (c Chunk) MarshalJSON() ([]byte, error) {
	if c.Value == nil {
		return json.Marshal([]any{int(c.Index), c.Status})
	}
	return json.Marshal([]any{int(c.Index), c.Status, *c.Value})
}

// EncodeHead returns the head line without framing.
func EncodeHead(h Head) ([]byte, error) {
	if h == nil {
		h = Head{}
	}
	return json.Marshal(h)
}

// EncodeChunk returns the chunk tuple without framing.
func EncodeChunk(c Chunk) ([]byte, error) {
	return json.Marshal(c)
}
