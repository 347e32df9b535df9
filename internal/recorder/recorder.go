// Package recorder writes a JSONL step trace for each query run so a failed
// browser sequence can be replayed step by step after the fact.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DefaultKeep = 5
	TraceDir    = "data/traces"
)

// Event is a single line in a trace file.
type Event struct {
	Timestamp time.Time   `json:"ts"`
	Step      string      `json:"step"`
	RunID     string      `json:"run_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Recorder owns the trace of the run currently in flight.
type Recorder struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	runID    string
	basePath string
	keep     int
}

// NewRecorder creates a recorder rooted at basePath keeping the newest keep traces.
func NewRecorder(basePath string, keep int) (*Recorder, error) {
	if basePath == "" {
		basePath = TraceDir
	}
	if keep <= 0 {
		keep = DefaultKeep
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	return &Recorder{basePath: basePath, keep: keep}, nil
}

// Start opens a fresh trace for runID, closing any previous one.
func (r *Recorder) Start(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
		r.encoder = nil
	}

	if err := r.rotate(); err != nil {
		return fmt.Errorf("rotate traces: %w", err)
	}

	// Millisecond prefix keeps lexical order equal to creation order.
	name := fmt.Sprintf("trace_%013d_%s.jsonl", time.Now().UnixMilli(), runID)
	f, err := os.Create(filepath.Join(r.basePath, name))
	if err != nil {
		return fmt.Errorf("create trace: %w", err)
	}

	r.file = f
	r.encoder = json.NewEncoder(f)
	r.runID = runID
	return nil
}

// Log appends one step to the current trace. No-op when no trace is open.
func (r *Recorder) Log(step string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return
	}
	_ = r.encoder.Encode(Event{
		Timestamp: time.Now(),
		Step:      step,
		RunID:     r.runID,
		Data:      data,
	})
}

// Traces returns trace file names, newest first.
func (r *Recorder) Traces() ([]string, error) {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "trace_") || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// rotate leaves keep-1 traces so the next one brings the total to keep.
func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "trace_") || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	for i := r.keep - 1; i < len(names); i++ {
		_ = os.Remove(filepath.Join(r.basePath, names[i]))
	}
	return nil
}

// Close finishes the current trace.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.encoder = nil
	r.runID = ""
	return err
}
