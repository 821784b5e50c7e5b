package light

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/upload"
)

// pointLight is the implementation of the PointLight interface.
type pointLight struct {
	mu *sync.Mutex

	position   common.Vec3
	color      [3]float32
	intensity  float32
	lightRange float32
	enabled    bool
}

// PointLight is a punctual light that emits in all directions from a position and attenuates
// to zero at its range. Point lights are drawn by the punctual lighting pass, one instance per
// enabled light.
type PointLight interface {
	// Position returns the world-space position of the light.
	Position() common.Vec3

	// Color returns the linear RGB color of the light.
	Color() [3]float32

	// Intensity returns the scalar intensity multiplier.
	Intensity() float32

	// Range returns the distance beyond which the light contributes nothing.
	Range() float32

	// Enabled returns whether the light is packed for rendering.
	Enabled() bool

	// SetPosition sets the world-space position of the light.
	//
	// Parameters:
	//   - p: the new position
	SetPosition(p common.Vec3)

	// SetColor sets the RGB color of the light.
	SetColor(r, g, b float32)

	// SetIntensity sets the scalar intensity multiplier.
	SetIntensity(intensity float32)

	// SetRange sets the attenuation cutoff. Non-positive values are ignored.
	SetRange(lightRange float32)

	// SetEnabled enables or disables the light.
	SetEnabled(enabled bool)

	// GPU returns the wire representation of the light.
	//
	// Returns:
	//   - upload.GPUPointLight: the GPU-aligned representation
	GPU() upload.GPUPointLight
}

var _ PointLight = &pointLight{}

// NewPointLight creates a white point light at the origin with range 10.
//
// Parameters:
//   - opts: variadic list of LightBuilderOption functions to configure the light
//
// Returns:
//   - PointLight: a new PointLight instance
func NewPointLight(opts ...LightBuilderOption) PointLight {
	l := &pointLight{
		mu:         &sync.Mutex{},
		color:      [3]float32{1, 1, 1},
		intensity:  1.0,
		lightRange: 10.0,
		enabled:    true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Pack returns the GPU representation of every enabled light, in order.
//
// Parameters:
//   - lights: the lights to pack
//
// Returns:
//   - []upload.GPUPointLight: one entry per enabled light
func Pack(lights ...PointLight) []upload.GPUPointLight {
	out := make([]upload.GPUPointLight, 0, len(lights))
	for _, l := range lights {
		if l != nil && l.Enabled() {
			out = append(out, l.GPU())
		}
	}
	return out
}

func (l *pointLight) Position() common.Vec3 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position
}

func (l *pointLight) Color() [3]float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.color
}

func (l *pointLight) Intensity() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.intensity
}

func (l *pointLight) Range() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lightRange
}

func (l *pointLight) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

func (l *pointLight) SetPosition(p common.Vec3) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.position = p
}

func (l *pointLight) SetColor(r, g, b float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.color = [3]float32{r, g, b}
}

func (l *pointLight) SetIntensity(intensity float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.intensity = intensity
}

func (l *pointLight) SetRange(lightRange float32) {
	if lightRange <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lightRange = lightRange
}

func (l *pointLight) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

func (l *pointLight) GPU() upload.GPUPointLight {
	l.mu.Lock()
	defer l.mu.Unlock()
	return upload.GPUPointLight{
		Position:  [3]float32(l.position),
		Range:     l.lightRange,
		Color:     l.color,
		Intensity: l.intensity,
	}
}
