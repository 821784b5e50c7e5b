package device

// BackendType identifies the GPU backend implementation used by a Device.
type BackendType int

const (
	// BackendTypeSimulated selects the in-process GPU model. It executes submissions in order on
	// its own goroutine, records an execution log and lets callers drive fence completion.
	BackendTypeSimulated BackendType = iota

	// BackendTypeWGPU selects the WebGPU-based backend.
	BackendTypeWGPU
)

// String returns the configuration name of the backend.
func (b BackendType) String() string {
	switch b {
	case BackendTypeSimulated:
		return "simulated"
	case BackendTypeWGPU:
		return "wgpu"
	default:
		return "unknown"
	}
}

// ParseBackendType maps a configuration name to a BackendType.
//
// Parameters:
//   - name: "simulated" or "wgpu"
//
// Returns:
//   - BackendType: the matching backend
//   - bool: false if the name is unknown
func ParseBackendType(name string) (BackendType, bool) {
	switch name {
	case "simulated", "sim", "":
		return BackendTypeSimulated, true
	case "wgpu", "webgpu":
		return BackendTypeWGPU, true
	default:
		return 0, false
	}
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately. May tear.
	PresentModeUncapped
)
