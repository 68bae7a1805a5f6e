package frame

import (
	"bytes"
	"errors"
	"io"
	"net/http"
)

var (
	ErrLineTooLong  = errors.New("frame: line exceeds limit")
	ErrWriterClosed = errors.New("frame: writer closed")
	ErrHeadWritten  = errors.New("frame: head already written")
	ErrNoHead       = errors.New("frame: head not written")
)

var (
	openLine  = []byte("[\n")
	closeLine = []byte("]\n")
)

// Limits constrains accumulator memory use.
type Limits struct {
	MaxLineBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxLineBytes: 16 * 1024 * 1024,
	}
}

// Writer frames a head and its chunk records as newline separated elements
// of one JSON array.
type Writer struct {
	w       io.Writer
	flush   func() error
	headSet bool
	closed  bool
	lines   int
}

// NewWriter wraps w. When w implements http.Flusher or Flush() error, every
// line is flushed as soon as it is written.
func NewWriter(w io.Writer) *Writer {
	fw := &Writer{w: w}
	switch f := w.(type) {
	case interface{ Flush() error }:
		fw.flush = f.Flush
	case http.Flusher:
		fw.flush = func() error {
			f.Flush()
			return nil
		}
	}
	return fw
}

// WriteHead writes the opening bracket and the encoded head.
func (fw *Writer) WriteHead(head []byte) error {
	if fw.closed {
		return ErrWriterClosed
	}
	if fw.headSet {
		return ErrHeadWritten
	}
	fw.headSet = true
	if err := fw.writeLine(openLine); err != nil {
		return err
	}
	return fw.writeLine(appendNewline(nil, head))
}

// WriteChunk writes one encoded chunk tuple as ",<chunk>\n".
func (fw *Writer) WriteChunk(chunk []byte) error {
	if fw.closed {
		return ErrWriterClosed
	}
	if !fw.headSet {
		return ErrNoHead
	}
	line := make([]byte, 0, len(chunk)+2)
	line = append(line, ',')
	return fw.writeLine(appendNewline(line, chunk))
}

// Close writes the closing bracket. It does not close the underlying writer.
func (fw *Writer) Close() error {
	if fw.closed {
		return nil
	}
	if !fw.headSet {
		return ErrNoHead
	}
	fw.closed = true
	return fw.writeLine(closeLine)
}

// Lines reports how many lines were written.
func (fw *Writer) Lines() int {
	return fw.lines
}

func (fw *Writer) writeLine(line []byte) error {
	if _, err := fw.w.Write(line); err != nil {
		return err
	}
	fw.lines++
	if fw.flush != nil {
		return fw.flush()
	}
	return nil
}

func appendNewline(dst, b []byte) []byte {
	b = bytes.TrimRight(b, "\r\n")
	dst = append(dst, b...)
	return append(dst, '\n')
}
