package stream

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/gragraf/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedBody returns each chunk from a separate Read call, then err (io.EOF if nil).
type chunkedBody struct {
	chunks []string
	err    error
	closed bool
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}

		return 0, io.EOF
	}

	n := copy(p, b.chunks[0])
	if n < len(b.chunks[0]) {
		b.chunks[0] = b.chunks[0][n:]
	} else {
		b.chunks = b.chunks[1:]
	}

	return n, nil
}

func (b *chunkedBody) Close() error {
	b.closed = true

	return nil
}

func collect(t *testing.T, r *Reader) ([]events.Event, error) {
	t.Helper()

	var out []events.Event

	for event, err := range r.All() {
		if err != nil {
			return out, err
		}

		out = append(out, event)
	}

	return out, nil
}

func TestReader_ReassemblesRecordsSplitAcrossChunks(t *testing.T) {
	body := &chunkedBody{chunks: []string{
		`data: {"type":"sta`,
		`rt","total_nodes":2}` + "\n",
		"\n" + `data: {"type":"progress","data":{"node_a":"ok"}}` + "\n\ndata: ",
		`{"type":"complete","result":"R"}` + "\n\n",
	}}

	reader := NewReader(body, slog.Default())
	got, err := collect(t, reader)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, events.KindStarted, got[0].Kind())
	assert.Equal(t, events.KindProgress, got[1].Kind())
	assert.Equal(t, events.KindCompleted, got[2].Kind())
	assert.Equal(t, 0, reader.Malformed())
}

func TestReader_IgnoresNonDataLines(t *testing.T) {
	body := &chunkedBody{chunks: []string{
		": keep-alive\n",
		"event: message\r\n",
		`data: {"type":"start"}` + "\r\n\r\n",
		"retry: 1000\n",
	}}

	got, err := collect(t, NewReader(body, slog.Default()))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, events.KindStarted, got[0].Kind())
}

func TestReader_SkipsMalformedRecordAndContinues(t *testing.T) {
	body := &chunkedBody{chunks: []string{
		"data: {not json}\n\n",
		`data: {"type":"complete"}` + "\n\n",
	}}

	var skipped []string

	reader := NewReader(body, slog.Default(), WithMalformedRecordFunc(func(line []byte, err error) {
		skipped = append(skipped, string(line))
	}))

	got, err := collect(t, reader)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, events.KindCompleted, got[0].Kind())
	assert.Equal(t, 1, reader.Malformed())
	assert.Equal(t, []string{"{not json}"}, skipped)
}

func TestReader_DiscardsUnterminatedTail(t *testing.T) {
	body := &chunkedBody{chunks: []string{
		`data: {"type":"start"}` + "\n\n",
		`data: {"type":"complete"}`,
	}}

	got, err := collect(t, NewReader(body, slog.Default()))
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestReader_TransportFailureAfterEvents(t *testing.T) {
	broken := errors.New("connection reset by peer")
	body := &chunkedBody{
		chunks: []string{`data: {"type":"start","total_nodes":3}` + "\n\n"},
		err:    broken,
	}

	got, err := collect(t, NewReader(body, slog.Default()))
	require.Error(t, err)
	assert.ErrorIs(t, err, broken)
	assert.Len(t, got, 1)
}

func TestReader_Prime(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		err := NewReader(&chunkedBody{}, slog.Default()).Prime()
		assert.ErrorIs(t, err, ErrEmptyStream)
	})

	t.Run("failure before first byte", func(t *testing.T) {
		broken := errors.New("boom")
		err := NewReader(&chunkedBody{err: broken}, slog.Default()).Prime()
		assert.ErrorIs(t, err, broken)
	})

	t.Run("first byte keeps data for Next", func(t *testing.T) {
		reader := NewReader(&chunkedBody{chunks: []string{`data: {"type":"start"}` + "\n\n"}}, slog.Default())
		require.NoError(t, reader.Prime())
		assert.Positive(t, reader.BytesRead())

		event, err := reader.Next()
		require.NoError(t, err)
		assert.Equal(t, events.KindStarted, event.Kind())

		_, err = reader.Next()
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestReader_CloseClosesBody(t *testing.T) {
	body := &chunkedBody{}
	reader := NewReader(body, slog.Default())

	require.NoError(t, reader.Close())
	assert.True(t, body.closed)
}
