package kernos

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/kernos/config"
	"github.com/viant/kernos/proc"
	"github.com/viant/kernos/syscall"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Memory.Size = 16 << 20
	cfg.Memory.HeapSize = 1 << 20
	return cfg
}

func bootedSystem(t *testing.T, options ...Option) *System {
	options = append([]Option{WithConfig(testConfig())}, options...)
	sys := New(options...)
	require.NoError(t, sys.Boot(context.Background()))
	return sys
}

func TestSystem_BootLayout(t *testing.T) {
	sys := bootedSystem(t)
	defer sys.Shutdown(context.Background())

	layout := sys.Memory()
	require.NotNil(t, layout)
	assert.EqualValues(t, 0x40000000, layout.RAM.Base())
	assert.NotZero(t, layout.Pages.Stats().TotalPages)
	assert.Error(t, sys.Boot(context.Background()), "double boot must be refused")
}

func TestSystem_SpawnBeforeBoot(t *testing.T) {
	sys := New(WithConfig(testConfig()))
	_, err := sys.Spawn(func() {}, "early")
	assert.Error(t, err)
	assert.Error(t, sys.Run(context.Background()))
}

func TestSystem_RoundRobinRun(t *testing.T) {
	sys := bootedSystem(t)
	defer sys.Shutdown(context.Background())
	s := sys.Scheduler()

	var order []uint64
	body := func() {
		for n := 0; n < 2; n++ {
			order = append(order, s.Current().PID)
			s.Yield()
		}
	}
	p1, err := sys.Spawn(body, "p1")
	require.NoError(t, err)
	p2, err := sys.Spawn(body, "p2")
	require.NoError(t, err)
	p3, err := sys.Spawn(body, "p3")
	require.NoError(t, err)

	require.NoError(t, sys.Run(context.Background()))
	assert.Equal(t, []uint64{
		p1.PID, p2.PID, p3.PID,
		p1.PID, p2.PID, p3.PID,
	}, order)
}

func TestSystem_SyscallConsole(t *testing.T) {
	var console bytes.Buffer
	sys := bootedSystem(t, WithConsole(&console))
	defer sys.Shutdown(context.Background())

	// stage a user buffer in simulated ram, above the kernel image
	addr := uint64(0x40000000 + 2<<20)
	copy(sys.Memory().RAM.Slice(addr, 5), "hello")

	calls := sys.Syscalls()
	_, err := sys.Spawn(func() {
		calls.Invoke(&syscall.Regs{X8: syscall.NumWrite, X0: 1, X1: addr, X2: 5})
		calls.Invoke(&syscall.Regs{X8: syscall.NumExit})
	}, "writer")
	require.NoError(t, err)

	require.NoError(t, sys.Run(context.Background()))
	assert.Equal(t, "hello", console.String())
	assert.EqualValues(t, 1, calls.Stats().PerCall[syscall.NumWrite])
}

func TestSystem_BootArgsOverride(t *testing.T) {
	sys := New(WithConfig(testConfig()), WithBootArgs("slice=3 procs=8 console=uart1"))
	require.NoError(t, sys.Boot(context.Background()))
	defer sys.Shutdown(context.Background())

	snap := sys.Snapshot()
	assert.NotNil(t, snap)

	// spawn beyond the boot-arg process limit fails gracefully
	var spawned int
	for {
		_, err := sys.Spawn(func() { sys.Scheduler().Block() }, "filler")
		if err != nil {
			break
		}
		spawned++
	}
	assert.Equal(t, 8, spawned)
}

func TestSystem_InvalidBootArgs(t *testing.T) {
	sys := New(WithConfig(testConfig()), WithBootArgs("mem=lots"))
	assert.Error(t, sys.Boot(context.Background()))
}

func TestSystem_FileTableLifecycle(t *testing.T) {
	closed := map[uint64]bool{}
	factory := func(pid uint64) (proc.FileTable, error) {
		return fileTableFunc(func() error {
			closed[pid] = true
			return nil
		}), nil
	}
	sys := bootedSystem(t, WithFileTableFactory(factory))
	defer sys.Shutdown(context.Background())

	p, err := sys.Spawn(func() {}, "short")
	require.NoError(t, err)
	require.NoError(t, sys.Run(context.Background()))
	assert.True(t, closed[p.PID], "descriptor table must close on reclaim")
}

type fileTableFunc func() error

func (f fileTableFunc) Close() error { return f() }

func TestSystem_TimerPreemptionEndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.TimeSlice = 2
	sys := New(WithConfig(cfg))
	require.NoError(t, sys.Boot(context.Background()))
	defer sys.Shutdown(context.Background())
	s := sys.Scheduler()

	var order []string
	_, err := sys.Spawn(func() {
		order = append(order, "hog")
		assert.NoError(t, sys.Timer().AdvanceTicks(2))
		s.Checkpoint()
		order = append(order, "hog again")
	}, "hog")
	require.NoError(t, err)
	_, err = sys.Spawn(func() {
		order = append(order, "other")
	}, "other")
	require.NoError(t, err)

	require.NoError(t, sys.Run(context.Background()))
	assert.Equal(t, []string{"hog", "other", "hog again"}, order)
	assert.EqualValues(t, 1, s.Stats().Preemptions)
}

func TestSystem_SnapshotPersisted(t *testing.T) {
	sys := bootedSystem(t)
	defer sys.Shutdown(context.Background())

	_, err := sys.Spawn(func() { sys.Scheduler().Yield() }, "resident")
	require.NoError(t, err)

	URL := "mem://localhost/kernos/system-state.json"
	require.NoError(t, sys.SaveSnapshot(context.Background(), URL))

	loaded, err := sys.snapshots.Load(context.Background(), URL)
	require.NoError(t, err)
	assert.NotZero(t, loaded.Pages.TotalPages)
	assert.NotZero(t, loaded.Heap.TotalBytes)
	require.NotEmpty(t, loaded.Processes)
	assert.Equal(t, "idle", loaded.Processes[0].Name)
}
