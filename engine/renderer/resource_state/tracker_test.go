package resource_state

import (
	"errors"
	"sync"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
)

func newTestResource(label string) *Resource {
	return NewResource(label, wgpu.TextureFormatRGBA16Float, 64, 64)
}

func TestGetStateUnknownResource(t *testing.T) {
	tr := NewTracker()
	_, err := tr.GetState(newTestResource("x"))
	if !errors.Is(err, ErrUnknownResource) {
		t.Fatalf("have %v, want ErrUnknownResource", err)
	}
	if _, _, err := tr.Transition(newTestResource("y"), StateRenderTarget); !errors.Is(err, ErrUnknownResource) {
		t.Fatalf("transition: have %v, want ErrUnknownResource", err)
	}
}

func TestRegisterTwice(t *testing.T) {
	tr := NewTracker()
	r := newTestResource("x")
	if err := tr.Register(r, StateCommon); err != nil {
		t.Fatal(err)
	}
	if err := tr.Register(r, StateRenderTarget); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("have %v, want ErrAlreadyRegistered", err)
	}
	st, _ := tr.GetState(r)
	if st != StateCommon {
		t.Errorf("state changed by failed register: have %s, want %s", st, StateCommon)
	}
}

func TestTransitionElision(t *testing.T) {
	var seen []TransitionDirective
	tr := NewTracker(WithTransitionObserver(func(d TransitionDirective) { seen = append(seen, d) }))
	r := newTestResource("x")
	if err := tr.Register(r, StateCommon); err != nil {
		t.Fatal(err)
	}

	d, ok, err := tr.Transition(r, StateRenderTarget)
	if err != nil || !ok {
		t.Fatalf("first transition: ok=%v err=%v", ok, err)
	}
	if d.From != StateCommon || d.To != StateRenderTarget || d.Resource != r {
		t.Errorf("have directive %v, want x: Common->RenderTarget", d)
	}

	_, ok, err = tr.Transition(r, StateRenderTarget)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Errorf("repeated transition produced a directive")
	}
	if len(seen) != 1 {
		t.Errorf("have %d observed directives, want 1", len(seen))
	}
	st, _ := tr.GetState(r)
	if st != StateRenderTarget {
		t.Errorf("have state %s, want %s", st, StateRenderTarget)
	}
}

func TestGetStateMatchesLastTransition(t *testing.T) {
	tr := NewTracker()
	r := newTestResource("x")
	_ = tr.Register(r, StateCommon)

	seq := []State{StateRenderTarget, StateShaderReadable, StateShaderReadable, StateCopySource, StatePresent, StateCommon}
	for _, s := range seq {
		if _, _, err := tr.Transition(r, s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
		have, err := tr.GetState(r)
		if err != nil {
			t.Fatal(err)
		}
		if have != s {
			t.Fatalf("have %s, want %s", have, s)
		}
	}
}

func TestTransitionInvalidState(t *testing.T) {
	tr := NewTracker()
	r := newTestResource("x")
	_ = tr.Register(r, StateCommon)
	if _, _, err := tr.Transition(r, State(42)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("have %v, want ErrInvalidState", err)
	}
}

func TestUnregister(t *testing.T) {
	tr := NewTracker()
	r := newTestResource("x")
	_ = tr.Register(r, StateCommon)
	tr.Unregister(r)
	if _, err := tr.GetState(r); !errors.Is(err, ErrUnknownResource) {
		t.Fatalf("have %v, want ErrUnknownResource", err)
	}
	if len(tr.Resources()) != 0 {
		t.Errorf("have %d resources, want 0", len(tr.Resources()))
	}
	// registering again after teardown is allowed
	if err := tr.Register(r, StateRenderTarget); err != nil {
		t.Fatalf("re-register: %v", err)
	}
}

func TestConcurrentDistinctResources(t *testing.T) {
	tr := NewTracker()
	const n = 64
	res := make([]*Resource, n)
	for i := range res {
		res[i] = newTestResource("")
		if err := tr.Register(res[i], StateCommon); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(r *Resource) {
			defer wg.Done()
			for k := 0; k < 100; k++ {
				to := StateRenderTarget
				if k%2 == 1 {
					to = StateShaderReadable
				}
				if _, _, err := tr.Transition(r, to); err != nil {
					t.Errorf("transition: %v", err)
					return
				}
			}
		}(res[i])
	}
	wg.Wait()

	for _, r := range res {
		st, _ := tr.GetState(r)
		if st != StateShaderReadable {
			t.Errorf("%s: have %s, want %s", r, st, StateShaderReadable)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateRenderTarget.String() != "RenderTarget" {
		t.Errorf("have %q", StateRenderTarget.String())
	}
	if State(99).String() != "State(99)" {
		t.Errorf("have %q", State(99).String())
	}
}
