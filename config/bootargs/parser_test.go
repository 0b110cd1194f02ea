package bootargs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/kernos/config"
)

func TestApply(t *testing.T) {
	cfg := config.DefaultConfig()
	args := "mem=64M heap=2M kernel=512K slice=5 procs=16 stack=8K tick=50 " +
		"console=uart1 reserved=0x48000000-0x48100000 reserved=0x49000000-0x49004000 trace=on"
	require.NoError(t, Apply(cfg, args))

	assert.EqualValues(t, 64<<20, cfg.Memory.Size)
	assert.EqualValues(t, 2<<20, cfg.Memory.HeapSize)
	assert.EqualValues(t, 512<<10, cfg.Memory.KernelSize)
	assert.EqualValues(t, 5, cfg.Scheduler.TimeSlice)
	assert.Equal(t, 16, cfg.Scheduler.MaxProcesses)
	assert.EqualValues(t, 8<<10, cfg.Scheduler.StackSize)
	assert.EqualValues(t, 50, cfg.Timer.TickRate)
	assert.Equal(t, "uart1", cfg.Console)
	assert.True(t, cfg.Tracing)
	require.Len(t, cfg.Memory.Reserved, 2)
	assert.Equal(t, config.Region{Start: 0x48000000, End: 0x48100000}, cfg.Memory.Reserved[0])
	assert.NoError(t, cfg.Validate())
}

func TestApply_Empty(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, Apply(cfg, "  "))
	assert.EqualValues(t, 128<<20, cfg.Memory.Size)
}

func TestApply_PlainSizes(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, Apply(cfg, "mem=33554432 base=0x60000000"))
	assert.EqualValues(t, 32<<20, cfg.Memory.Size)
	assert.EqualValues(t, 0x60000000, cfg.Memory.Base)
}

func TestApply_Errors(t *testing.T) {
	testCases := []struct {
		description string
		args        string
	}{
		{description: "unknown key", args: "cpus=4"},
		{description: "missing equals", args: "mem 128M"},
		{description: "bad size", args: "mem=lots"},
		{description: "bad region", args: "reserved=0x48000000"},
		{description: "inverted region", args: "reserved=0x48100000-0x48000000"},
		{description: "bad slice", args: "slice=fast"},
		{description: "zero slice", args: "slice=0"},
	}
	for _, testCase := range testCases {
		cfg := config.DefaultConfig()
		assert.Error(t, Apply(cfg, testCase.args), testCase.description)
	}
}
