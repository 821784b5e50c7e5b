package light

import "github.com/Carmen-Shannon/oxy-deferred/common"

// LightBuilderOption is a function that configures a PointLight during construction.
type LightBuilderOption func(*pointLight)

// WithPosition sets the world-space position of the light.
//
// Parameters:
//   - p: the position
//
// Returns:
//   - LightBuilderOption: a function that applies the position option
func WithPosition(p common.Vec3) LightBuilderOption {
	return func(l *pointLight) {
		l.position = p
	}
}

// WithColor sets the linear RGB color of the light.
//
// Parameters:
//   - r: the red color component
//   - g: the green color component
//   - b: the blue color component
//
// Returns:
//   - LightBuilderOption: a function that applies the color option
func WithColor(r, g, b float32) LightBuilderOption {
	return func(l *pointLight) {
		l.color = [3]float32{r, g, b}
	}
}

// WithIntensity sets the scalar intensity multiplier.
func WithIntensity(intensity float32) LightBuilderOption {
	return func(l *pointLight) {
		l.intensity = intensity
	}
}

// WithRange sets the attenuation cutoff distance. Non-positive values are ignored.
func WithRange(lightRange float32) LightBuilderOption {
	return func(l *pointLight) {
		if lightRange > 0 {
			l.lightRange = lightRange
		}
	}
}

// WithEnabled sets whether the light is packed for rendering.
func WithEnabled(enabled bool) LightBuilderOption {
	return func(l *pointLight) {
		l.enabled = enabled
	}
}
