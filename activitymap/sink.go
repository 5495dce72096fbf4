package activitymap

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/goliatone/go-accounts"
)

// WriterSink writes each event as one normalized JSON line.
type WriterSink struct {
	mu   sync.Mutex
	enc  *json.Encoder
	opts []Option
}

var _ accounts.ActivitySink = (*WriterSink)(nil)

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer, opts ...Option) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w), opts: opts}
}

// Record implements accounts.ActivitySink.
func (s *WriterSink) Record(_ context.Context, event accounts.ActivityEvent) error {
	record := Normalize(event, s.opts...)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(record)
}
