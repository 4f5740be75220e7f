package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// GapLog is the append-only local record of questions the knowledge base
// could not answer. One JSON object per line.
type GapLog struct {
	mu   sync.Mutex
	path string
}

type GapEntry struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	Caller    string    `json:"caller,omitempty"`
	Question  string    `json:"question"`
	Reason    string    `json:"reason,omitempty"`
}

func NewGapLog(path string) *GapLog {
	return &GapLog{path: path}
}

func (g *GapLog) Configured() bool {
	return g != nil && g.path != ""
}

func (g *GapLog) Append(entry GapEntry) error {
	if !g.Configured() {
		return fmt.Errorf("gap log path is not configured")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(g.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}
