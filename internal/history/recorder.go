// Package history persists closed trades as JSON lines and serves the
// recent tail back for the dashboard.
package history

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Closed is the durable record of one completed round trip.
type Closed struct {
	ID          string    `json:"id"`
	Mint        string    `json:"mint"`
	Symbol      string    `json:"symbol"`
	Reason      string    `json:"reason"`
	InvestedSOL float64   `json:"invested_sol"`
	ProceedsSOL float64   `json:"proceeds_sol"`
	PnLSOL      float64   `json:"pnl_sol"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Scaled      bool      `json:"scaled"`
	EntrySig    string    `json:"entry_sig"`
	ExitSig     string    `json:"exit_sig"`
	ExitStatus  string    `json:"exit_status"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
}

// JSONLRecorder appends closed trades as JSON lines for later analysis.
type JSONLRecorder struct {
	mu   sync.Mutex
	path string
	file *os.File
	enc  *json.Encoder
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{
		path: path,
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

// Record writes a single closed trade to the underlying JSONL file.
func (r *JSONLRecorder) Record(c Closed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	_ = r.enc.Encode(c)
}

// ReadRecent returns up to limit of the most recent records, newest first.
// Malformed lines are skipped.
func (r *JSONLRecorder) ReadRecent(limit int) ([]Closed, error) {
	r.mu.Lock()
	path := r.path
	r.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var all []Closed
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var c Closed
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			continue
		}
		all = append(all, c)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
