// Package stream decodes a Server-Sent-Events response body into engine events.
package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/dukex/gragraf/pkg/events"
)

const (
	dataPrefix  = "data: "
	readBufSize = 4096
)

// ErrEmptyStream is returned when the body ends before delivering a single byte.
var ErrEmptyStream = errors.New("stream closed before any data was received")

// MalformedRecordFunc observes records that could not be decoded.
type MalformedRecordFunc func(line []byte, err error)

// Reader yields engine events from an SSE body in arrival order. It is forward-only
// and not restartable; a new read needs a new request.
type Reader struct {
	body        io.ReadCloser
	logger      *slog.Logger
	onMalformed MalformedRecordFunc

	chunk     []byte
	carry     []byte
	pending   [][]byte
	bytesRead int64
	eof       bool
	err       error
	malformed int
}

// Option configures a Reader.
type Option func(*Reader)

// WithMalformedRecordFunc registers a callback for records skipped because they are not valid events.
func WithMalformedRecordFunc(fn MalformedRecordFunc) Option {
	return func(r *Reader) {
		r.onMalformed = fn
	}
}

// NewReader wraps body. The reader owns body and closes it on Close.
func NewReader(body io.ReadCloser, logger *slog.Logger, opts ...Option) *Reader {
	r := &Reader{
		body:   body,
		logger: logger.With("module", "stream_reader"),
		chunk:  make([]byte, readBufSize),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Prime blocks until the first byte of the body is available. An error here means the
// stream never started.
func (r *Reader) Prime() error {
	if r.bytesRead > 0 {
		return nil
	}

	for r.bytesRead == 0 {
		if r.eof {
			return ErrEmptyStream
		}

		if r.err != nil {
			return r.err
		}

		r.fill()
	}

	return nil
}

// BytesRead is the number of body bytes consumed so far.
func (r *Reader) BytesRead() int64 {
	return r.bytesRead
}

// Malformed is the number of records skipped so far.
func (r *Reader) Malformed() int {
	return r.malformed
}

// Next returns the next decoded event. It returns io.EOF once the body is exhausted
// and any other error when the transport fails.
func (r *Reader) Next() (events.Event, error) {
	for {
		for len(r.pending) > 0 {
			line := r.pending[0]
			r.pending = r.pending[1:]

			event, ok := r.decodeLine(line)
			if ok {
				return event, nil
			}
		}

		if r.err != nil {
			return nil, r.err
		}

		if r.eof {
			if len(bytes.TrimSpace(r.carry)) > 0 {
				r.logger.Warn("Discarding unterminated trailing record", "bytes", len(r.carry))
				r.carry = nil
			}

			return nil, io.EOF
		}

		r.fill()
	}
}

// All yields events until the stream ends. A transport failure is yielded once as the
// final element; a clean end of stream yields nothing further.
func (r *Reader) All() iter.Seq2[events.Event, error] {
	return func(yield func(events.Event, error) bool) {
		for {
			event, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}

			if !yield(event, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the underlying body. It is the only way to cancel a read.
func (r *Reader) Close() error {
	return r.body.Close()
}

// fill performs one read and splits every complete line into pending, keeping the
// unterminated remainder in carry for the next read.
func (r *Reader) fill() {
	n, err := r.body.Read(r.chunk)
	if n > 0 {
		r.bytesRead += int64(n)
		r.carry = append(r.carry, r.chunk[:n]...)

		for {
			idx := bytes.IndexByte(r.carry, '\n')
			if idx < 0 {
				break
			}

			line := bytes.TrimSuffix(r.carry[:idx], []byte("\r"))
			r.pending = append(r.pending, append([]byte(nil), line...))
			r.carry = r.carry[idx+1:]
		}

		// Compact so a long stream does not pin every chunk it has seen.
		r.carry = append([]byte(nil), r.carry...)
	}

	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		r.eof = true
	default:
		r.err = fmt.Errorf("failed to read event stream: %w", err)
	}
}

func (r *Reader) decodeLine(line []byte) (events.Event, bool) {
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return nil, false
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return nil, false
	}

	event, err := events.Decode(payload)
	if err != nil {
		r.malformed++
		r.logger.Warn("Skipping malformed event record", "error", err, "record", string(payload))

		if r.onMalformed != nil {
			r.onMalformed(payload, err)
		}

		return nil, false
	}

	return event, true
}
