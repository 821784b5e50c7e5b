package resource_state

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	// ErrUnknownResource is returned when a resource is queried or transitioned before Register.
	ErrUnknownResource = errors.New("resource_state: unknown resource")

	// ErrAlreadyRegistered is returned when Register is called twice for the same resource ID.
	ErrAlreadyRegistered = errors.New("resource_state: resource already registered")

	// ErrOutOfSyncState is returned when a concurrent transition on the same resource was observed.
	// The frame schedule serializes access to each resource, so this signals a schedule bug.
	ErrOutOfSyncState = errors.New("resource_state: resource state changed concurrently")

	// ErrInvalidState is returned when a transition targets an undeclared State.
	ErrInvalidState = errors.New("resource_state: invalid state")
)

// Tracker is the single owner of the current access state of every shared GPU resource.
// It is safe for concurrent use on distinct resources without any cross-resource locking.
type Tracker interface {
	// Register starts tracking r in the initial state.
	//
	// Parameters:
	//   - r: the resource to track
	//   - initial: the state the resource was created in
	//
	// Returns:
	//   - error: ErrAlreadyRegistered if r is already tracked
	Register(r *Resource, initial State) error

	// Unregister stops tracking r. Unregistering an unknown resource is a no-op.
	//
	// Parameters:
	//   - r: the resource to forget
	Unregister(r *Resource)

	// GetState returns the current recorded state of r.
	//
	// Parameters:
	//   - r: the resource to query
	//
	// Returns:
	//   - State: the current state
	//   - error: ErrUnknownResource if r was never registered
	GetState(r *Resource) (State, error)

	// Transition records that r moves to state to and returns the directive that must be encoded.
	// When to equals the current state nothing changes and ok is false.
	//
	// Parameters:
	//   - r: the resource to transition
	//   - to: the requested state
	//
	// Returns:
	//   - TransitionDirective: the barrier to encode, valid only when ok is true
	//   - bool: true when a directive was produced
	//   - error: ErrUnknownResource, ErrInvalidState or ErrOutOfSyncState
	Transition(r *Resource, to State) (TransitionDirective, bool, error)

	// Resources returns every tracked resource in no particular order.
	//
	// Returns:
	//   - []*Resource: the tracked resources
	Resources() []*Resource
}

type slot struct {
	resource *Resource
	state    atomic.Int32
}

type tracker struct {
	slots    sync.Map // uint64 -> *slot
	observer func(TransitionDirective)
	logger   *slog.Logger
}

var _ Tracker = &tracker{}

// NewTracker creates a new, empty Tracker.
//
// Parameters:
//   - options: functional options such as WithTransitionObserver or WithLogger
//
// Returns:
//   - Tracker: the new tracker
func NewTracker(options ...TrackerBuilderOption) Tracker {
	t := &tracker{}
	for _, opt := range options {
		opt(t)
	}
	return t
}

func (t *tracker) Register(r *Resource, initial State) error {
	if r == nil {
		panic("resource_state: Register called with nil resource")
	}
	if !initial.Valid() {
		return fmt.Errorf("register %s: %w: %d", r, ErrInvalidState, initial)
	}
	s := &slot{resource: r}
	s.state.Store(int32(initial))
	if _, loaded := t.slots.LoadOrStore(r.ID, s); loaded {
		return fmt.Errorf("register %s: %w", r, ErrAlreadyRegistered)
	}
	if t.logger != nil {
		t.logger.Debug("resource registered", "resource", r.String(), "state", initial.String())
	}
	return nil
}

func (t *tracker) Unregister(r *Resource) {
	if r == nil {
		return
	}
	t.slots.Delete(r.ID)
}

func (t *tracker) GetState(r *Resource) (State, error) {
	s, err := t.slot(r)
	if err != nil {
		return 0, err
	}
	return State(s.state.Load()), nil
}

func (t *tracker) Transition(r *Resource, to State) (TransitionDirective, bool, error) {
	if !to.Valid() {
		return TransitionDirective{}, false, fmt.Errorf("transition %s: %w: %d", r, ErrInvalidState, to)
	}
	s, err := t.slot(r)
	if err != nil {
		return TransitionDirective{}, false, err
	}

	from := State(s.state.Load())
	if from == to {
		return TransitionDirective{}, false, nil
	}
	if !s.state.CompareAndSwap(int32(from), int32(to)) {
		return TransitionDirective{}, false, fmt.Errorf("transition %s to %s: %w", r, to, ErrOutOfSyncState)
	}

	d := TransitionDirective{Resource: s.resource, From: from, To: to}
	if t.logger != nil {
		t.logger.Debug("resource transition", "resource", r.String(), "from", from.String(), "to", to.String())
	}
	if t.observer != nil {
		t.observer(d)
	}
	return d, true, nil
}

func (t *tracker) Resources() []*Resource {
	var out []*Resource
	t.slots.Range(func(_, v any) bool {
		out = append(out, v.(*slot).resource)
		return true
	})
	return out
}

func (t *tracker) slot(r *Resource) (*slot, error) {
	if r == nil {
		return nil, fmt.Errorf("nil resource: %w", ErrUnknownResource)
	}
	v, ok := t.slots.Load(r.ID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", r, ErrUnknownResource)
	}
	return v.(*slot), nil
}
