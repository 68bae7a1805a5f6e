package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

func (d *ChunkDefinition) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDefinition, err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("%w: want 3 elements, got %d", ErrMalformedDefinition, len(raw))
	}
	key, err := decodeKey(raw[0])
	if err != nil {
		return err
	}
	var kind, index int
	if err := json.Unmarshal(raw[1], &kind); err != nil {
		return fmt.Errorf("%w: kind: %v", ErrMalformedDefinition, err)
	}
	if Kind(kind) != KindPromise && Kind(kind) != KindIterable {
		return fmt.Errorf("%w: %d", ErrInvalidKind, kind)
	}
	if err := json.Unmarshal(raw[2], &index); err != nil || index < 0 {
		return fmt.Errorf("%w: index %s", ErrMalformedDefinition, string(raw[2]))
	}
	*d = ChunkDefinition{Key: key, Kind: Kind(kind), Index: ChunkIndex(index)}
	return nil
}

func decodeKey(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return s, nil
	}
	var n int
	if err := json.Unmarshal(trimmed, &n); err != nil || n < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, string(trimmed))
	}
	return n, nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedValue, err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty tuple", ErrMalformedValue)
	}
	var data []any
	if err := json.Unmarshal(raw[0], &data); err != nil {
		return fmt.Errorf("%w: data: %v", ErrMalformedValue, err)
	}
	if len(data) > 1 {
		return fmt.Errorf("%w: data tuple has %d elements", ErrMalformedValue, len(data))
	}
	out := Value{}
	if len(data) == 1 {
		out.Data = data[0]
	}
	for _, r := range raw[1:] {
		var def ChunkDefinition
		if err := json.Unmarshal(r, &def); err != nil {
			return err
		}
		out.Defs = append(out.Defs, def)
	}
	*v = out
	return nil
}

func (c *Chunk) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedChunk, err)
	}
	if len(raw) != 2 && len(raw) != 3 {
		return fmt.Errorf("%w: want 2 or 3 elements, got %d", ErrMalformedChunk, len(raw))
	}
	var index, status int
	if err := json.Unmarshal(raw[0], &index); err != nil || index < 0 {
		return fmt.Errorf("%w: index %s", ErrMalformedChunk, string(raw[0]))
	}
	if err := json.Unmarshal(raw[1], &status); err != nil {
		return fmt.Errorf("%w: status %s", ErrMalformedChunk, string(raw[1]))
	}
	out := Chunk{Index: ChunkIndex(index), Status: status}
	if len(raw) == 3 {
		var v Value
		if err := json.Unmarshal(raw[2], &v); err != nil {
			return err
		}
		out.Value = &v
	}
	*c = out
	return nil
}

// ParseHead decodes a head line.
func ParseHead(line []byte) (Head, error) {
	var h Head
	if err := json.Unmarshal(bytes.TrimSpace(line), &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHead, err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedHead)
	}
	return h, nil
}

// ParseChunk decodes a chunk line. A leading comma is accepted and stripped.
func ParseChunk(line []byte) (Chunk, error) {
	line = bytes.TrimSpace(line)
	line = bytes.TrimPrefix(line, []byte(","))
	var c Chunk
	if err := json.Unmarshal(line, &c); err != nil {
		return Chunk{}, err
	}
	return c, nil
}
