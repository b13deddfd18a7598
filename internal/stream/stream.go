package stream

import (
	"github.com/cloudwego/eino/schema"
)

// Stream is the streaming result of a call: an ordered event reader plus the
// raw response headers of the transport.
type Stream struct {
	reader  *schema.StreamReader[Event]
	Headers map[string]string
}

// New wraps an event reader.
func New(reader *schema.StreamReader[Event], headers map[string]string) *Stream {
	return &Stream{reader: reader, Headers: headers}
}

// FromEvents creates a stream over a fixed event sequence.
func FromEvents(events ...Event) *Stream {
	return New(schema.StreamReaderFromArray(events), nil)
}

// Pipe creates a stream fed by the returned writer. Producers send events with
// Send and must Close the writer when done; Send reports true once the reader
// side has been closed.
func Pipe(capacity int, headers map[string]string) (*Stream, *schema.StreamWriter[Event]) {
	reader, writer := schema.Pipe[Event](capacity)
	return New(reader, headers), writer
}

// Recv returns the next event, or io.EOF at the end of the stream.
func (s *Stream) Recv() (Event, error) {
	return s.reader.Recv()
}

// Close releases the stream and stops its producer.
func (s *Stream) Close() {
	s.reader.Close()
}
