package protocol

import "errors"

var (
	ErrMalformedHead       = errors.New("protocol: malformed head")
	ErrMalformedChunk      = errors.New("protocol: malformed chunk")
	ErrMalformedValue      = errors.New("protocol: malformed value")
	ErrMalformedDefinition = errors.New("protocol: malformed chunk definition")
	ErrInvalidKind         = errors.New("protocol: invalid chunk kind")
	ErrInvalidKey          = errors.New("protocol: invalid chunk definition key")
)
