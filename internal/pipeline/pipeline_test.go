package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// state is the value passed through test pipelines.
type state struct {
	visited []string
}

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	err       error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(_ context.Context, s *state) error {
	m.callCount++
	s.visited = append(s.visited, m.name)
	return m.err
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	t.Run("creates empty pipeline", func(t *testing.T) {
		t.Parallel()

		p := New[*state]()
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
	})

	t.Run("maintains step order", func(t *testing.T) {
		t.Parallel()

		p := New[*state]()
		p.AddStep(&mockStep{name: "first"})
		p.AddSteps(&mockStep{name: "second"}, NewStep("third", func(context.Context, *state) error { return nil }))

		if diff := cmp.Diff([]string{"first", "second", "third"}, p.StepNames()); diff != "" {
			t.Errorf("step names mismatch (-want +got):\n%s", diff)
		}
	})
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	errStep := errors.New("step failed")

	tests := []struct {
		name            string
		continueOnError bool
		wantVisited     []string
		wantErr         error
		wantFailed      []string
	}{
		{
			name:        "stops on first error",
			wantVisited: []string{"a", "b"},
			wantErr:     errStep,
			wantFailed:  []string{"b"},
		},
		{
			name:            "continues on error when configured",
			continueOnError: true,
			wantVisited:     []string{"a", "b", "c"},
			wantFailed:      []string{"b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var failed []string
			p := New[*state](
				WithContinueOnError(tt.continueOnError),
				WithErrorHook(func(step string, _ error) { failed = append(failed, step) }),
			)
			p.AddSteps(&mockStep{name: "a"}, &mockStep{name: "b", err: errStep}, &mockStep{name: "c"})

			s := &state{}
			err := p.Execute(context.Background(), s)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Execute() error = %v, want %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.wantVisited, s.visited); diff != "" {
				t.Errorf("visited mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantFailed, failed); diff != "" {
				t.Errorf("failed steps mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("respects cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		step := &mockStep{name: "never"}
		p := New[*state]()
		p.AddStep(NewStep("cancel", func(context.Context, *state) error {
			cancel()
			return nil
		}))
		p.AddStep(step)

		err := p.Execute(ctx, &state{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Execute() error = %v, want context.Canceled", err)
		}
		if step.callCount != 0 {
			t.Errorf("step after cancellation ran %d times", step.callCount)
		}
	})
}
