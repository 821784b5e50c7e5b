package orchestrator

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource_state"
)

// Registration is a resource the schedule owns together with the state it was created in.
type Registration struct {
	Resource *resource_state.Resource
	Initial  resource_state.State
}

// Access is a write a step performs on a resource and the state the write needs.
type Access struct {
	Resource resource_state.Source
	State    resource_state.State
}

// Step is one entry of the per-frame schedule. Every pass of a step records in parallel, so the
// passes of one step must not depend on each other's outputs.
type Step struct {
	Name   string
	Passes []pass.Pass

	// Reads are moved to StateShaderReadable before the step records.
	Reads []resource_state.Source
	// Writes are moved to their write state before the step records.
	Writes []Access

	// WaitDispatched blocks the frame until every buffer pushed so far has been handed to the
	// device queue before the next step starts.
	WaitDispatched bool
}

// Schedule is the static per-frame pass table the orchestrator drives.
type Schedule struct {
	Resources []Registration
	Steps     []Step

	// Present lists the resources that end the frame in StatePresent, typically the swap chain view.
	Present []resource_state.Source

	// Textures are released when the orchestrator terminates.
	Textures []device.Texture
}

// ScheduleBuilder creates the schedule once the orchestrator's shared collaborators exist.
// Passes created by the builder must already be initialised.
type ScheduleBuilder func(deps pass.Dependencies) (*Schedule, error)

// StaticSchedule returns a builder for a schedule that needs no collaborators.
func StaticSchedule(s *Schedule) ScheduleBuilder {
	return func(pass.Dependencies) (*Schedule, error) {
		return s, nil
	}
}

// BufferCount returns the number of pass buffers one frame of s pushes.
func (s *Schedule) BufferCount() int {
	n := 0
	for _, step := range s.Steps {
		for _, p := range step.Passes {
			n += p.BufferCount()
		}
	}
	return n
}

// validate checks the structural rules of the schedule against the tracker it was registered in.
func (s *Schedule) validate(tracker resource_state.Tracker) error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidSchedule)
	}
	known := func(src resource_state.Source, step string) error {
		if src == nil || src.Resource() == nil {
			return fmt.Errorf("%w: step %s references a nil resource", ErrInvalidSchedule, step)
		}
		if _, err := tracker.GetState(src.Resource()); err != nil {
			return fmt.Errorf("orchestrator: step %s: %w", step, err)
		}
		return nil
	}

	names := make(map[string]bool, len(s.Steps))
	for i, step := range s.Steps {
		if step.Name == "" {
			return fmt.Errorf("%w: step %d has no name", ErrInvalidSchedule, i)
		}
		if names[step.Name] {
			return fmt.Errorf("%w: duplicate step %s", ErrInvalidSchedule, step.Name)
		}
		names[step.Name] = true

		for _, p := range step.Passes {
			if p == nil {
				return fmt.Errorf("%w: step %s has a nil pass", ErrInvalidSchedule, step.Name)
			}
		}

		written := make(map[*resource_state.Resource]bool, len(step.Writes))
		for _, w := range step.Writes {
			if err := known(w.Resource, step.Name); err != nil {
				return err
			}
			if !w.State.IsWrite() {
				return fmt.Errorf("%w: step %s writes %s in %s", ErrInvalidSchedule, step.Name, w.Resource.Resource(), w.State)
			}
			written[w.Resource.Resource()] = true
		}
		for _, r := range step.Reads {
			if err := known(r, step.Name); err != nil {
				return err
			}
			if written[r.Resource()] {
				return fmt.Errorf("%w: step %s both reads and writes %s", ErrInvalidSchedule, step.Name, r.Resource())
			}
		}
	}
	for _, p := range s.Present {
		if err := known(p, "present"); err != nil {
			return err
		}
	}
	return nil
}

// firstUse returns, in schedule order, every resource the frame touches and the state its first
// consumer expects.
func (s *Schedule) firstUse() []resource_state.TransitionDirective {
	var out []resource_state.TransitionDirective
	seen := make(map[*resource_state.Resource]bool)
	add := func(r *resource_state.Resource, to resource_state.State) {
		if seen[r] {
			return
		}
		seen[r] = true
		out = append(out, resource_state.TransitionDirective{Resource: r, To: to})
	}
	for _, step := range s.Steps {
		for _, w := range step.Writes {
			add(w.Resource.Resource(), w.State)
		}
		for _, r := range step.Reads {
			add(r.Resource(), resource_state.StateShaderReadable)
		}
	}
	return out
}

// requests returns the transitions a step needs before it records.
func (st Step) requests() []resource_state.TransitionDirective {
	out := make([]resource_state.TransitionDirective, 0, len(st.Reads)+len(st.Writes))
	for _, r := range st.Reads {
		out = append(out, resource_state.TransitionDirective{Resource: r.Resource(), To: resource_state.StateShaderReadable})
	}
	for _, w := range st.Writes {
		out = append(out, resource_state.TransitionDirective{Resource: w.Resource.Resource(), To: w.State})
	}
	return out
}
