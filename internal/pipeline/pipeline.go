package pipeline

import (
	"context"
	"log/slog"
)

// Step is one stage of a Pipeline.
type Step[T any] interface {
	// Do executes the step. It receives the state accumulated by previous
	// steps and may modify it. Non-critical problems should be recorded in
	// the state and nil returned.
	Do(ctx context.Context, state T) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// funcStep adapts a function to Step.
type funcStep[T any] struct {
	name string
	fn   func(ctx context.Context, state T) error
}

func (s funcStep[T]) Do(ctx context.Context, state T) error { return s.fn(ctx, state) }
func (s funcStep[T]) Name() string                         { return s.name }

// NewStep returns a Step named name that calls fn.
func NewStep[T any](name string, fn func(ctx context.Context, state T) error) Step[T] {
	return funcStep[T]{name: name, fn: fn}
}

// Pipeline orchestrates the execution of multiple steps.
// It maintains a list of steps and executes them in order.
type Pipeline[T any] struct {
	// steps contains the ordered list of steps to execute.
	steps []Step[T]

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool

	// onError is called for every failed step.
	onError func(step string, err error)
}

// Option is a function that configures a Pipeline.
type Option func(*config)

type config struct {
	logger          *slog.Logger
	continueOnError bool
	onError         func(step string, err error)
}

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. Failed steps are logged and reported to the
// error hook, but subsequent steps still execute.
func WithContinueOnError(continueOnError bool) Option {
	return func(c *config) {
		c.continueOnError = continueOnError
	}
}

// WithErrorHook registers fn to be called for every failed step.
func WithErrorHook(fn func(step string, err error)) Option {
	return func(c *config) {
		c.onError = fn
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New[T any](opts ...Option) *Pipeline[T] {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return &Pipeline[T]{
		steps:           make([]Step[T], 0),
		logger:          c.logger,
		continueOnError: c.continueOnError,
		onError:         c.onError,
	}
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline[T]) AddStep(step Step[T]) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline[T]) AddSteps(steps ...Step[T]) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence.
//
// Returns the first error encountered if continueOnError is false,
// or nil if all steps complete.
func (p *Pipeline[T]) Execute(ctx context.Context, state T) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step", "step", step.Name())

		if err := step.Do(ctx, state); err != nil {
			p.logger.Debug("step failed",
				"step", step.Name(),
				"error", err,
			)
			if p.onError != nil {
				p.onError(step.Name(), err)
			}
			if !p.continueOnError {
				return err
			}
			continue
		}

		p.logger.Debug("step completed", "step", step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline[T]) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline[T]) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
