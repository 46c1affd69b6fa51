package exporters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Mindburn-Labs/vigil/pkg/trace"
)

// JSONL writes one JSON object per span to a writer. Writes are serialized;
// the writer is typically os.Stdout or a log file.
type JSONL struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewJSONL creates a JSONL exporter writing to os.Stdout.
func NewJSONL() *JSONL {
	return NewJSONLWithWriter(os.Stdout)
}

// NewJSONLWithWriter creates a JSONL exporter for the given writer. This
// allows injection for testing and custom sinks.
func NewJSONLWithWriter(w io.Writer) *JSONL {
	if w == nil {
		w = os.Stdout
	}
	return &JSONL{writer: w}
}

// Export implements Exporter.
func (e *JSONL) Export(ctx context.Context, span *trace.Context) error {
	_ = ctx
	data, err := json.Marshal(span)
	if err != nil {
		return fmt.Errorf("jsonl exporter: marshal span: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("jsonl exporter: write span: %w", err)
	}
	return nil
}

// Close implements Exporter. The underlying writer is owned by the caller.
func (e *JSONL) Close(ctx context.Context) error { return nil }
