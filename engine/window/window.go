package window

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// Key is a platform key code. The values match GLFW's key tokens.
type Key int

// Keys the fly camera and the demo react to.
const (
	KeyW      Key = 87
	KeyA      Key = 65
	KeyS      Key = 83
	KeyD      Key = 68
	KeyQ      Key = 81
	KeyE      Key = 69
	KeyEscape Key = 256
)

// Window provides the presentation surface and the input the frame loop polls.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetMouseLookCallback sets the function called with cursor deltas while the right mouse
	// button is held.
	//
	// Parameters:
	//   - callback: function receiving the cursor movement in pixels since the last event
	SetMouseLookCallback(callback func(dx, dy float32))

	// KeyDown reports whether key is currently held.
	KeyDown(key Key) bool

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for creating a WebGPU surface.
	// The descriptor is created by the wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor, or nil if window is not initialized
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true if the window is still active.
	IsRunning() bool

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: error if close operation fails
	Close() error

	// ProcessMessages runs the window message loop on the calling goroutine, which must be the
	// one that created the window. Blocks until the window is closed.
	ProcessMessages()

	// Size returns the current framebuffer size in pixels.
	Size() (width, height int)
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	mu *sync.Mutex

	title string

	minWidth, minHeight int
	width, height       int

	// internalWindow holds the platform-specific window data (glfwWindow).
	internalWindow any

	keys map[Key]bool

	// looking is true while the right mouse button is held; lastX and lastY are the cursor
	// position of the previous move event.
	looking      bool
	lastX, lastY float64

	onUpdate    func()
	onResize    func(width, height int)
	onMouseLook func(dx, dy float32)
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a Window with the specified options.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the configured window
//   - error: an error if the platform window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		mu:        &sync.Mutex{},
		title:     "oxy-deferred",
		minWidth:  320,
		minHeight: 200,
		width:     1280,
		height:    720,
		keys:      make(map[Key]bool),
	}
	for _, opt := range options {
		opt(w)
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("window: %w", err)
	}
	return w, nil
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onResize = callback
}

func (w *engineWindow) SetMouseLookCallback(callback func(dx, dy float32)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onMouseLook = callback
}

func (w *engineWindow) KeyDown(key Key) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keys[key]
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if succ := platformProcessMessages(w); !succ {
			break
		}

		w.mu.Lock()
		update := w.onUpdate
		w.mu.Unlock()
		if update != nil {
			update()
		}

		runtime.Gosched()
	}
}

func (w *engineWindow) Size() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

// --- event handlers shared by the platform layer ---

func (w *engineWindow) keyEvent(key Key, down bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if down {
		w.keys[key] = true
	} else {
		delete(w.keys, key)
	}
}

func (w *engineWindow) lookButton(down bool, x, y float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.looking = down
	w.lastX, w.lastY = x, y
}

func (w *engineWindow) cursorMoved(x, y float64) {
	w.mu.Lock()
	if !w.looking || w.onMouseLook == nil {
		w.lastX, w.lastY = x, y
		w.mu.Unlock()
		return
	}
	dx, dy := x-w.lastX, y-w.lastY
	w.lastX, w.lastY = x, y
	cb := w.onMouseLook
	w.mu.Unlock()
	cb(float32(dx), float32(dy))
}

func (w *engineWindow) resized(width, height int) {
	w.mu.Lock()
	w.width, w.height = width, height
	cb := w.onResize
	w.mu.Unlock()
	// a minimised window reports 0x0
	if cb != nil && width > 0 && height > 0 {
		cb(width, height)
	}
}
