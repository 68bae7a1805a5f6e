package protocol

// ChunkIndex addresses one deferred value within a single stream.
type ChunkIndex int

// Kind selects how a chunk's records are interpreted.
type Kind int

const (
	KindPromise  Kind = 0
	KindIterable Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindPromise:
		return "promise"
	case KindIterable:
		return "iterable"
	default:
		return "unknown"
	}
}

// Promise chunk statuses.
const (
	StatusFulfilled = 0
	StatusRejected  = 1
)

// Iterable chunk statuses.
const (
	StatusDone    = 0
	StatusValue   = 1
	StatusErrored = 2
)

// Placeholder stands in for a deferred child inside Value.Data.
const Placeholder = 0

// ChunkDefinition locates one deferred value inside a Value.
// Key is nil (the whole node), a string (object property) or an int (array index).
type ChunkDefinition struct {
	Key   any
	Kind  Kind
	Index ChunkIndex
}

// Value is one node of the encoded tree.
type Value struct {
	Data any
	Defs []ChunkDefinition
}

// Head maps the caller's top-level slots to their encoded values.
type Head map[int]Value

// Chunk is one progress or completion record.
type Chunk struct {
	Index  ChunkIndex
	Status int
	Value  *Value

	// Kind is producer-side bookkeeping and is not transmitted.
	Kind Kind
}

// Terminal reports whether c ends its chunk.
func (c Chunk) Terminal() bool {
	if c.Kind == KindIterable {
		return c.Status != StatusValue
	}
	return true
}

func StatusName(kind Kind, status int) string {
	switch kind {
	case KindPromise:
		switch status {
		case StatusFulfilled:
			return "fulfilled"
		case StatusRejected:
			return "rejected"
		}
	case KindIterable:
		switch status {
		case StatusValue:
			return "value"
		case StatusDone:
			return "done"
		case StatusErrored:
			return "errored"
		}
	}
	return "unknown"
}
