package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/kernos/mem/heap"
	"github.com/viant/kernos/mem/page"
	"github.com/viant/kernos/sched"
)

func TestService_SaveLoad(t *testing.T) {
	ctx := context.Background()
	service := New()
	URL := "mem://localhost/kernos/snapshots/boot.json"

	in := Stamp(&Snapshot{
		Uptime: 42,
		Pages:  page.Stats{TotalPages: 1024, FreePages: 1000, UsedPages: 8, ReservedPages: 16},
		Heap:   heap.Stats{TotalBytes: 1 << 20, FreeBytes: 1<<20 - 4096, UsedBytes: 4096},
		Scheduler: sched.Stats{
			Switches: 7,
			Spawned:  3,
		},
		ReadyPIDs: []uint64{2, 3},
		Processes: []Process{
			{PID: 1, Name: "init", State: "RUNNING", TotalTicks: 12},
			{PID: 2, Name: "worker", State: "READY"},
		},
	})
	require.NoError(t, service.Save(ctx, URL, in))

	out, err := service.Load(ctx, URL)
	require.NoError(t, err)
	assert.Equal(t, in.Uptime, out.Uptime)
	assert.Equal(t, in.Pages, out.Pages)
	assert.Equal(t, in.Scheduler.Switches, out.Scheduler.Switches)
	assert.Equal(t, in.ReadyPIDs, out.ReadyPIDs)
	require.Len(t, out.Processes, 2)
	assert.Equal(t, "init", out.Processes[0].Name)
	assert.False(t, out.TakenAt.IsZero())
}

func TestService_SaveNil(t *testing.T) {
	assert.Error(t, New().Save(context.Background(), "mem://localhost/kernos/nil.json", nil))
}

func TestService_LoadMissing(t *testing.T) {
	_, err := New().Load(context.Background(), "mem://localhost/kernos/absent.json")
	assert.Error(t, err)
}
