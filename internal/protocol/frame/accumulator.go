package frame

import (
	"bytes"
	"errors"
	"io"
)

// Accumulator turns arbitrary fragments into complete lines.
type Accumulator struct {
	limits Limits
	buf    []byte
	lines  [][]byte
}

func NewAccumulator(limits Limits) *Accumulator {
	if limits.MaxLineBytes <= 0 {
		limits = DefaultLimits()
	}
	return &Accumulator{limits: limits}
}

// Push appends a fragment. Fragments must arrive in transport order.
func (a *Accumulator) Push(fragment []byte) error {
	a.buf = append(a.buf, fragment...)
	for {
		i := bytes.IndexByte(a.buf, '\n')
		if i < 0 {
			break
		}
		line := make([]byte, i)
		copy(line, a.buf[:i])
		a.lines = append(a.lines, bytes.TrimSuffix(line, []byte("\r")))
		a.buf = a.buf[i+1:]
	}
	if len(a.buf) > a.limits.MaxLineBytes {
		return ErrLineTooLong
	}
	if len(a.buf) == 0 {
		a.buf = nil
	}
	return nil
}

// PushString is Push for text fragments.
func (a *Accumulator) PushString(fragment string) error {
	return a.Push([]byte(fragment))
}

// Pop returns the oldest completed line.
func (a *Accumulator) Pop() ([]byte, bool) {
	if len(a.lines) == 0 {
		return nil, false
	}
	line := a.lines[0]
	a.lines[0] = nil
	a.lines = a.lines[1:]
	return line, true
}

// Len reports the number of completed lines waiting in the queue.
func (a *Accumulator) Len() int {
	return len(a.lines)
}

// Flush moves a trailing partial line into the queue. Call it at end of input.
func (a *Accumulator) Flush() {
	if len(bytes.TrimSpace(a.buf)) > 0 {
		a.lines = append(a.lines, a.buf)
	}
	a.buf = nil
}

// LineReader reads lines from r through an Accumulator, one Read fragment at
// a time.
type LineReader struct {
	r   io.Reader
	acc *Accumulator
	buf []byte
	eof bool
}

func NewLineReader(r io.Reader, limits Limits) *LineReader {
	return &LineReader{
		r:   r,
		acc: NewAccumulator(limits),
		buf: make([]byte, 32*1024),
	}
}

// ReadLine returns the next complete line, or io.EOF after the last one.
func (lr *LineReader) ReadLine() ([]byte, error) {
	for {
		if line, ok := lr.acc.Pop(); ok {
			return line, nil
		}
		if lr.eof {
			return nil, io.EOF
		}
		n, err := lr.r.Read(lr.buf)
		if n > 0 {
			if perr := lr.acc.Push(lr.buf[:n]); perr != nil {
				return nil, perr
			}
		}
		if errors.Is(err, io.EOF) {
			lr.eof = true
			lr.acc.Flush()
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}
