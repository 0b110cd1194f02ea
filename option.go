package kernos

import (
	"io"

	"github.com/viant/kernos/config"
	"github.com/viant/kernos/event"
	"github.com/viant/kernos/proc"
)

// Option customises a System.
type Option func(s *System)

// WithConfig sets the machine configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *System) {
		s.config = cfg
	}
}

// WithBootArgs sets a boot argument string applied over the configuration
// during Boot.
func WithBootArgs(args string) Option {
	return func(s *System) {
		s.bootArgs = args
	}
}

// WithConsole sets the sink behind the stdout/stderr descriptors.
func WithConsole(w io.Writer) Option {
	return func(s *System) {
		s.console = w
	}
}

// WithFileTableFactory supplies the per-process descriptor table
// constructor; the VFS collaborator plugs in here.
func WithFileTableFactory(factory proc.FileTableFactory) Option {
	return func(s *System) {
		s.files = factory
	}
}

// WithEventService sets the lifecycle event service.
func WithEventService(service *event.Service) Option {
	return func(s *System) {
		s.events = service
	}
}
