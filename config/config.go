package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// Region is a physical address range closed on the left, open on the right.
type Region struct {
	Start uint64 `json:"start" yaml:"start"`
	End   uint64 `json:"end" yaml:"end"`
}

// MemoryConfig is the RAM geometry.
type MemoryConfig struct {
	Base       uint64   `json:"base" yaml:"base"`
	Size       uint64   `json:"size" yaml:"size"`
	KernelSize uint64   `json:"kernelSize" yaml:"kernelSize"`
	HeapSize   uint64   `json:"heapSize" yaml:"heapSize"`
	Reserved   []Region `json:"reserved" yaml:"reserved"`
}

// SchedulerConfig tunes the round-robin rotation.
type SchedulerConfig struct {
	TimeSlice    uint64 `json:"timeSlice" yaml:"timeSlice"`
	MaxProcesses int    `json:"maxProcesses" yaml:"maxProcesses"`
	StackSize    uint64 `json:"stackSize" yaml:"stackSize"`
}

// TimerConfig tunes the generic timer model.
type TimerConfig struct {
	Frequency uint64 `json:"frequency" yaml:"frequency"`
	TickRate  uint64 `json:"tickRate" yaml:"tickRate"`
}

// Config is the serialisable machine configuration.
type Config struct {
	Memory    MemoryConfig    `json:"memory" yaml:"memory"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Timer     TimerConfig     `json:"timer" yaml:"timer"`
	Console   string          `json:"console" yaml:"console"`
	Tracing   bool            `json:"tracing" yaml:"tracing"`
}

// DefaultConfig mirrors the qemu virt machine this kernel targets: 128 MiB
// of RAM at 1 GiB, a 1 MiB kernel image, a 4 MiB heap.
func DefaultConfig() *Config {
	return &Config{
		Memory: MemoryConfig{
			Base:       0x40000000,
			Size:       128 << 20,
			KernelSize: 1 << 20,
			HeapSize:   4 << 20,
		},
		Scheduler: SchedulerConfig{
			TimeSlice:    10,
			MaxProcesses: 64,
			StackSize:    4096,
		},
		Timer: TimerConfig{
			Frequency: 62_500_000,
			TickRate:  100,
		},
		Console: "uart0",
	}
}

// Validate returns an aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Memory.Size == 0 {
		return fmt.Errorf("memory.size must be > 0")
	}
	if c.Memory.KernelSize+c.Memory.HeapSize >= c.Memory.Size {
		return fmt.Errorf("memory: kernel (%d) + heap (%d) exceed ram size %d",
			c.Memory.KernelSize, c.Memory.HeapSize, c.Memory.Size)
	}
	for i, r := range c.Memory.Reserved {
		if r.End <= r.Start {
			return fmt.Errorf("memory.reserved[%d]: empty range %#x-%#x", i, r.Start, r.End)
		}
	}
	if c.Scheduler.TimeSlice == 0 {
		return fmt.Errorf("scheduler.timeSlice must be > 0")
	}
	if c.Scheduler.MaxProcesses <= 0 {
		return fmt.Errorf("scheduler.maxProcesses must be > 0")
	}
	if c.Scheduler.StackSize == 0 {
		return fmt.Errorf("scheduler.stackSize must be > 0")
	}
	if c.Timer.TickRate == 0 || c.Timer.Frequency < c.Timer.TickRate {
		return fmt.Errorf("timer: tickRate must be > 0 and at most frequency")
	}
	return nil
}

// Load reads a YAML config from the URL over DefaultConfig values.
func Load(ctx context.Context, URL string) (*Config, error) {
	if filepath.Ext(URL) == "" {
		URL += ".yaml"
	}
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", URL, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", URL, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", URL, err)
	}
	return cfg, nil
}
