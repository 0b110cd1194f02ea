package proc

import (
	"sort"
	"sync"
)

// Table keeps live processes keyed by pid. Lookups may come from outside
// the CPU goroutine (diagnostics, snapshots), so access is locked.
type Table struct {
	mu      sync.RWMutex
	records map[uint64]*Process
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{records: make(map[uint64]*Process)}
}

// Save stores or overwrites a record.
func (t *Table) Save(p *Process) {
	if p == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[p.PID] = p
}

// Lookup returns the process with the pid, or nil.
func (t *Table) Lookup(pid uint64) *Process {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records[pid]
}

// Delete removes the pid.
func (t *Table) Delete(pid uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, pid)
}

// List returns all records ordered by pid.
func (t *Table) List() []*Process {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Process, 0, len(t.records))
	for _, p := range t.records {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Len returns the number of live records.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}
