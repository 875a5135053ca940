package devtools

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestBus_Publish tests ordering and once semantics.
func TestBus_Publish(t *testing.T) {
	t.Parallel()

	t.Run("invokes handlers in registration order", func(t *testing.T) {
		t.Parallel()

		b := NewBus()
		var got []string
		b.Subscribe("Page.loadEventFired", func(json.RawMessage) { got = append(got, "first") })
		b.Subscribe("Page.loadEventFired", func(json.RawMessage) { got = append(got, "second") })
		b.Subscribe("Page.frameNavigated", func(json.RawMessage) { got = append(got, "other") })

		if n := b.Publish("Page.loadEventFired", nil); n != 2 {
			t.Errorf("expected 2 handlers invoked, got %d", n)
		}
		if diff := cmp.Diff([]string{"first", "second"}, got); diff != "" {
			t.Errorf("dispatch order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("once fires a single time and deregisters", func(t *testing.T) {
		t.Parallel()

		b := NewBus()
		calls := 0
		b.SubscribeOnce("Tracing.tracingComplete", func(json.RawMessage) { calls++ })

		b.Publish("Tracing.tracingComplete", nil)
		b.Publish("Tracing.tracingComplete", nil)

		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
		if b.Len("Tracing.tracingComplete") != 0 {
			t.Error("expected once subscription to be removed")
		}
	})

	t.Run("passes params through", func(t *testing.T) {
		t.Parallel()

		b := NewBus()
		var got string
		b.Subscribe("Network.requestWillBeSent", func(p json.RawMessage) { got = string(p) })
		b.Publish("Network.requestWillBeSent", json.RawMessage(`{"requestId":"1"}`))

		if got != `{"requestId":"1"}` {
			t.Errorf("unexpected params %q", got)
		}
	})
}

// TestBus_MutationDuringDispatch tests that handlers may add and remove
// subscriptions while an event is being dispatched.
func TestBus_MutationDuringDispatch(t *testing.T) {
	t.Parallel()

	t.Run("self removal does not skip the next handler", func(t *testing.T) {
		t.Parallel()

		b := NewBus()
		var got []string
		var self *Subscription
		self = b.Subscribe("e", func(json.RawMessage) {
			got = append(got, "a")
			self.Cancel()
		})
		b.Subscribe("e", func(json.RawMessage) { got = append(got, "b") })
		b.Subscribe("e", func(json.RawMessage) { got = append(got, "c") })

		b.Publish("e", nil)
		b.Publish("e", nil)

		if diff := cmp.Diff([]string{"a", "b", "c", "b", "c"}, got); diff != "" {
			t.Errorf("dispatch mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("subscription added during dispatch sees only later events", func(t *testing.T) {
		t.Parallel()

		b := NewBus()
		var got []string
		added := false
		b.Subscribe("e", func(json.RawMessage) {
			got = append(got, "outer")
			if !added {
				added = true
				b.Subscribe("e", func(json.RawMessage) { got = append(got, "inner") })
			}
		})

		b.Publish("e", nil)
		b.Publish("e", nil)

		if diff := cmp.Diff([]string{"outer", "outer", "inner"}, got); diff != "" {
			t.Errorf("dispatch mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("handler cancelled by an earlier handler is skipped", func(t *testing.T) {
		t.Parallel()

		b := NewBus()
		var got []string
		var victim *Subscription
		b.Subscribe("e", func(json.RawMessage) {
			got = append(got, "killer")
			victim.Cancel()
		})
		victim = b.Subscribe("e", func(json.RawMessage) { got = append(got, "victim") })

		b.Publish("e", nil)

		if diff := cmp.Diff([]string{"killer"}, got); diff != "" {
			t.Errorf("dispatch mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("cancel is idempotent", func(t *testing.T) {
		t.Parallel()

		b := NewBus()
		s := b.Subscribe("e", func(json.RawMessage) {})
		s.Cancel()
		s.Cancel()

		if b.Len("e") != 0 {
			t.Errorf("expected no subscribers, got %d", b.Len("e"))
		}
	})

	t.Run("reset cancels everything", func(t *testing.T) {
		t.Parallel()

		b := NewBus()
		calls := 0
		s := b.Subscribe("e", func(json.RawMessage) { calls++ })
		b.Reset()
		b.Publish("e", nil)
		s.Cancel()

		if calls != 0 {
			t.Errorf("expected no calls after reset, got %d", calls)
		}
	})
}
