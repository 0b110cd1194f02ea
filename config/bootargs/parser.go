// Package bootargs applies a kernel boot argument string over a machine
// configuration. Arguments are space-separated key=value pairs, e.g.
//
//	mem=128M heap=4M slice=10 reserved=0x48000000-0x48100000 console=uart0
//
// Sizes accept K/M/G suffixes, addresses accept 0x hex, and reserved may
// repeat to carve several regions.
package bootargs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/viant/parsly"
	"github.com/viant/toolbox"

	"github.com/viant/kernos/config"
)

// Apply parses args and overrides matching cfg fields in place.
func Apply(cfg *config.Config, args string) error {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	cursor := parsly.NewCursor("", []byte(args), 0)
	for {
		matched := cursor.MatchAfterOptional(whitespaceToken, keyToken)
		if matched.Code == parsly.EOF {
			return nil
		}
		if matched.Code != keyToken.Code {
			return cursor.NewError(keyToken)
		}
		key := matched.Text(cursor)

		matched = cursor.MatchOne(equalsToken)
		if matched.Code != equalsToken.Code {
			return cursor.NewError(equalsToken)
		}

		matched = cursor.MatchOne(valueToken)
		if matched.Code != valueToken.Code {
			return cursor.NewError(valueToken)
		}
		value := matched.Text(cursor)

		if err := apply(cfg, key, value); err != nil {
			return err
		}
	}
}

func apply(cfg *config.Config, key, value string) error {
	switch key {
	case "mem":
		size, err := parseSize(value)
		if err != nil {
			return fmt.Errorf("bootargs: mem: %w", err)
		}
		cfg.Memory.Size = size
	case "base":
		addr, err := parseAddr(value)
		if err != nil {
			return fmt.Errorf("bootargs: base: %w", err)
		}
		cfg.Memory.Base = addr
	case "kernel":
		size, err := parseSize(value)
		if err != nil {
			return fmt.Errorf("bootargs: kernel: %w", err)
		}
		cfg.Memory.KernelSize = size
	case "heap":
		size, err := parseSize(value)
		if err != nil {
			return fmt.Errorf("bootargs: heap: %w", err)
		}
		cfg.Memory.HeapSize = size
	case "reserved":
		region, err := parseRegion(value)
		if err != nil {
			return fmt.Errorf("bootargs: reserved: %w", err)
		}
		cfg.Memory.Reserved = append(cfg.Memory.Reserved, region)
	case "slice":
		n, err := toolbox.ToInt(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("bootargs: slice: invalid value %q", value)
		}
		cfg.Scheduler.TimeSlice = uint64(n)
	case "procs":
		n, err := toolbox.ToInt(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("bootargs: procs: invalid value %q", value)
		}
		cfg.Scheduler.MaxProcesses = n
	case "stack":
		size, err := parseSize(value)
		if err != nil {
			return fmt.Errorf("bootargs: stack: %w", err)
		}
		cfg.Scheduler.StackSize = size
	case "tick":
		n, err := toolbox.ToInt(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("bootargs: tick: invalid value %q", value)
		}
		cfg.Timer.TickRate = uint64(n)
	case "console":
		cfg.Console = value
	case "trace":
		cfg.Tracing = toolbox.AsBoolean(value) || value == "on"
	default:
		return fmt.Errorf("bootargs: unknown argument %q", key)
	}
	return nil
}

// parseSize reads a byte count with an optional K/M/G suffix.
func parseSize(value string) (uint64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty size")
	}
	multiplier := uint64(1)
	switch value[len(value)-1] {
	case 'K', 'k':
		multiplier = 1 << 10
		value = value[:len(value)-1]
	case 'M', 'm':
		multiplier = 1 << 20
		value = value[:len(value)-1]
	case 'G', 'g':
		multiplier = 1 << 30
		value = value[:len(value)-1]
	}
	n, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", value)
	}
	return n * multiplier, nil
}

// parseAddr reads a decimal or 0x-prefixed address.
func parseAddr(value string) (uint64, error) {
	addr, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", value)
	}
	return addr, nil
}

// parseRegion reads a start-end address pair.
func parseRegion(value string) (config.Region, error) {
	parts := strings.SplitN(value, "-", 2)
	if len(parts) != 2 {
		return config.Region{}, fmt.Errorf("expected start-end, got %q", value)
	}
	start, err := parseAddr(parts[0])
	if err != nil {
		return config.Region{}, err
	}
	end, err := parseAddr(parts[1])
	if err != nil {
		return config.Region{}, err
	}
	if end <= start {
		return config.Region{}, fmt.Errorf("empty region %q", value)
	}
	return config.Region{Start: start, End: end}, nil
}
