package resource_state

import "fmt"

// State is the access mode a GPU resource is currently in.
// The current State of a resource is owned exclusively by a Tracker.
type State int32

const (
	StateCommon State = iota
	StateRenderTarget
	StateShaderReadable
	StatePresent
	StateCopySource
	StateCopyDest
	StateDepthWrite
)

var stateNames = [...]string{
	StateCommon:         "Common",
	StateRenderTarget:   "RenderTarget",
	StateShaderReadable: "ShaderReadable",
	StatePresent:        "Present",
	StateCopySource:     "CopySource",
	StateCopyDest:       "CopyDest",
	StateDepthWrite:     "DepthWrite",
}

// String returns the human readable name of the state.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Valid reports whether s is one of the declared states.
func (s State) Valid() bool {
	return s >= StateCommon && s <= StateDepthWrite
}

// IsWrite reports whether s grants write access to the resource.
func (s State) IsWrite() bool {
	return s == StateRenderTarget || s == StateDepthWrite || s == StateCopyDest
}

// TransitionDirective is the barrier that must be encoded into a command buffer to move
// Resource from From to To. It is pure data; encoding and executing it is what changes GPU state.
type TransitionDirective struct {
	Resource *Resource
	From     State
	To       State
}

// String formats the directive as "label: From->To".
func (d TransitionDirective) String() string {
	return fmt.Sprintf("%s: %s->%s", d.Resource, d.From, d.To)
}
