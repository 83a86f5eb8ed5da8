package fiber

import (
	"fmt"

	"github.com/joeycumines/logiface"
)

// runtimeOptions holds configuration resolved at New.
type runtimeOptions struct {
	logger    *logiface.Logger[logiface.Event]
	stackSize int
	metrics   bool
}

// Option configures a Runtime instance.
type Option interface {
	applyRuntime(*runtimeOptions) error
}

type optionImpl struct {
	applyFunc func(*runtimeOptions) error
}

func (o *optionImpl) applyRuntime(opts *runtimeOptions) error {
	return o.applyFunc(opts)
}

// WithLogger attaches a structured logger to the runtime. A nil logger (the
// default) disables logging; logiface builders are nil-safe, so call sites
// need no guards.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithStackSize sets the advisory default fiber stack size in bytes. The
// value is clamped to [2 pages, 2048 pages] and rounded up to page
// granularity. Fibers are goroutine-backed, so the knob is advisory: the Go
// runtime grows stacks on demand and guards against overflow itself.
func WithStackSize(bytes int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if bytes <= 0 {
			return fmt.Errorf("fiber: invalid stack size %d", bytes)
		}
		opts.stackSize = clampStackSize(bytes)
		return nil
	}}
}

// WithMetrics enables runtime metrics collection, exposed via
// Runtime.Metrics. Disabled by default to keep the hot paths free of
// bookkeeping.
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.metrics = enabled
		return nil
	}}
}

func resolveOptions(opts []Option) (*runtimeOptions, error) {
	cfg := &runtimeOptions{
		stackSize: defaultStackSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRuntime(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
