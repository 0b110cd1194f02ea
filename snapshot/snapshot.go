// Package snapshot captures the observable state of the machine as a JSON
// document and persists it through afs, so diagnostics work against any
// storage scheme (file, mem, s3) the same way.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/viant/kernos/internal/clock"
	"github.com/viant/kernos/mem/heap"
	"github.com/viant/kernos/mem/page"
	"github.com/viant/kernos/sched"
	"github.com/viant/kernos/syscall"
)

// Process is one process entry in a snapshot.
type Process struct {
	PID        uint64 `json:"pid"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	State      string `json:"state"`
	StackBase  uint64 `json:"stackBase"`
	StackSize  uint64 `json:"stackSize"`
	TotalTicks uint64 `json:"totalTicks"`
}

// Snapshot is the serialisable machine state.
type Snapshot struct {
	TakenAt   time.Time     `json:"takenAt"`
	Uptime    uint64        `json:"uptimeTicks"`
	Pages     page.Stats    `json:"pages"`
	Heap      heap.Stats    `json:"heap"`
	Scheduler sched.Stats   `json:"scheduler"`
	Syscalls  syscall.Stats `json:"syscalls"`
	ReadyPIDs []uint64      `json:"readyPids"`
	Processes []Process     `json:"processes"`
}

// Service persists snapshots.
type Service struct {
	fs afs.Service
}

// New creates a snapshot service.
func New() *Service {
	return &Service{fs: afs.New()}
}

// Stamp fills the capture time on a snapshot.
func Stamp(s *Snapshot) *Snapshot {
	s.TakenAt = clock.Now()
	return s
}

// Save writes the snapshot as JSON to the URL.
func (s *Service) Save(ctx context.Context, URL string, snapshot *Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("cannot save nil snapshot")
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save snapshot to %s: %w", URL, err)
	}
	return nil
}

// Load reads a snapshot back from the URL.
func (s *Service) Load(ctx context.Context, URL string) (*Snapshot, error) {
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to check snapshot %s: %w", URL, err)
	}
	if !exists {
		return nil, fmt.Errorf("snapshot not found: %s", URL)
	}
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", URL, err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", URL, err)
	}
	return &snapshot, nil
}
