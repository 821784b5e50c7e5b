package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/fence"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/orchestrator"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pass"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the on-disk description of a deferred renderer instance.
type Config struct {
	Version  int    `yaml:"version"`
	Title    string `yaml:"title,omitempty"`
	LogLevel string `yaml:"logLevel,omitempty"`

	Device   DeviceConfig   `yaml:"device"`
	Frames   FrameConfig    `yaml:"frames"`
	Passes   PassToggles    `yaml:"passes"`
	Geometry GeometryConfig `yaml:"geometry"`
	AO       AOConfig       `yaml:"ambientOcclusion"`
	Tone     ToneConfig     `yaml:"toneMapping"`
	Camera   CameraConfig   `yaml:"camera"`
	Lights   []LightConfig  `yaml:"lights,omitempty"`
}

type DeviceConfig struct {
	Backend          string `yaml:"backend,omitempty"`
	Width            uint32 `yaml:"width,omitempty"`
	Height           uint32 `yaml:"height,omitempty"`
	SwapChainBuffers int    `yaml:"swapChainBuffers,omitempty"`
	VSync            *bool  `yaml:"vsync,omitempty"`
}

type FrameConfig struct {
	Queued  int `yaml:"queued,omitempty"`
	Workers int `yaml:"workers,omitempty"`
	// Limit caps the frame rate; 0 renders uncapped.
	Limit float64 `yaml:"limit,omitempty"`
}

// PassToggles switch the optional deferred passes. Unset toggles are on.
type PassToggles struct {
	EnvironmentLight *bool `yaml:"environmentLight,omitempty"`
	PunctualLight    *bool `yaml:"punctualLight,omitempty"`
	SkyBox           *bool `yaml:"skyBox,omitempty"`
	PostProcess      *bool `yaml:"postProcess,omitempty"`
}

type GeometryConfig struct {
	Recorders      int  `yaml:"recorders,omitempty"`
	FrustumCulling bool `yaml:"frustumCulling,omitempty"`
}

type AOConfig struct {
	Radius     float32 `yaml:"radius,omitempty"`
	Bias       float32 `yaml:"bias,omitempty"`
	Intensity  float32 `yaml:"intensity,omitempty"`
	Samples    uint32  `yaml:"samples,omitempty"`
	BlurRadius uint32  `yaml:"blurRadius,omitempty"`
}

type ToneConfig struct {
	Exposure float32 `yaml:"exposure,omitempty"`
	Gamma    float32 `yaml:"gamma,omitempty"`
}

type CameraConfig struct {
	Position  [3]float32 `yaml:"position"`
	Target    [3]float32 `yaml:"target"`
	FovDeg    float32    `yaml:"fov,omitempty"`
	Near      float32    `yaml:"near,omitempty"`
	Far       float32    `yaml:"far,omitempty"`
	MoveSpeed float32    `yaml:"moveSpeed,omitempty"`
}

type LightConfig struct {
	Position  [3]float32 `yaml:"position"`
	Color     [3]float32 `yaml:"color"`
	Range     float32    `yaml:"range"`
	Intensity float32    `yaml:"intensity,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	c.normalize()
	return c
}

// Load reads, normalizes and validates the configuration at path.
//
// Parameters:
//   - path: the YAML file to read
//
// Returns:
//   - Config: the loaded configuration
//   - error: an error if the file cannot be read or parsed, or fails validation
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a YAML document, applies defaults and validates the result. Unknown fields are
// rejected.
func Parse(data []byte) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Marshal encodes c as YAML with defaults applied.
func (c Config) Marshal() ([]byte, error) {
	c.normalize()
	return yaml.Marshal(&c)
}

func (c *Config) normalize() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Title == "" {
		c.Title = "oxy-deferred"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Device.Backend == "" {
		c.Device.Backend = device.BackendTypeSimulated.String()
	}
	if c.Device.Width == 0 {
		c.Device.Width = 1280
	}
	if c.Device.Height == 0 {
		c.Device.Height = 720
	}
	if c.Device.SwapChainBuffers == 0 {
		c.Device.SwapChainBuffers = 3
	}
	c.Device.VSync = orTrue(c.Device.VSync)

	if c.Frames.Queued == 0 {
		c.Frames.Queued = fence.DefaultQueuedFrames
	}
	if c.Frames.Workers == 0 {
		c.Frames.Workers = 2
	}

	c.Passes.EnvironmentLight = orTrue(c.Passes.EnvironmentLight)
	c.Passes.PunctualLight = orTrue(c.Passes.PunctualLight)
	c.Passes.SkyBox = orTrue(c.Passes.SkyBox)
	c.Passes.PostProcess = orTrue(c.Passes.PostProcess)

	if c.Geometry.Recorders == 0 {
		c.Geometry.Recorders = 1
	}

	if c.AO.Radius == 0 {
		c.AO.Radius = 0.5
	}
	if c.AO.Bias == 0 {
		c.AO.Bias = 0.05
	}
	if c.AO.Intensity == 0 {
		c.AO.Intensity = 1
	}
	if c.AO.Samples == 0 {
		c.AO.Samples = 8
	}
	if c.AO.BlurRadius == 0 {
		c.AO.BlurRadius = 2
	}

	if c.Tone.Exposure == 0 {
		c.Tone.Exposure = 1
	}
	if c.Tone.Gamma == 0 {
		c.Tone.Gamma = 2.2
	}

	if c.Camera.Position == ([3]float32{}) && c.Camera.Target == ([3]float32{}) {
		c.Camera.Position = [3]float32{0, 2, 8}
	}
	if c.Camera.FovDeg == 0 {
		c.Camera.FovDeg = 45
	}
	if c.Camera.Near == 0 {
		c.Camera.Near = 0.1
	}
	if c.Camera.Far == 0 {
		c.Camera.Far = 100
	}
	if c.Camera.MoveSpeed == 0 {
		c.Camera.MoveSpeed = 4
	}

	for i := range c.Lights {
		if c.Lights[i].Intensity == 0 {
			c.Lights[i].Intensity = 1
		}
	}
}

// Validate reports the first field that cannot drive a renderer.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalid, c.Version)
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("%w: logLevel: %v", ErrInvalid, err)
	}
	if _, ok := device.ParseBackendType(c.Device.Backend); !ok {
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Device.Backend)
	}
	if c.Device.SwapChainBuffers < 2 {
		return fmt.Errorf("%w: swapChainBuffers must be at least 2, have %d", ErrInvalid, c.Device.SwapChainBuffers)
	}
	if c.Frames.Queued < 1 || c.Frames.Queued > fence.MaxQueuedFrames {
		return fmt.Errorf("%w: frames.queued must be in [1, %d], have %d", ErrInvalid, fence.MaxQueuedFrames, c.Frames.Queued)
	}
	if c.Frames.Workers < 1 {
		return fmt.Errorf("%w: frames.workers must be positive, have %d", ErrInvalid, c.Frames.Workers)
	}
	if c.Frames.Limit < 0 {
		return fmt.Errorf("%w: frames.limit must not be negative", ErrInvalid)
	}
	if c.Geometry.Recorders < 1 {
		return fmt.Errorf("%w: geometry.recorders must be positive, have %d", ErrInvalid, c.Geometry.Recorders)
	}
	if c.AO.Radius < 0 || c.AO.Intensity < 0 {
		return fmt.Errorf("%w: ambientOcclusion radius and intensity must not be negative", ErrInvalid)
	}
	if c.Tone.Exposure < 0 || c.Tone.Gamma <= 0 {
		return fmt.Errorf("%w: toneMapping exposure must not be negative and gamma must be positive", ErrInvalid)
	}
	if c.Camera.FovDeg <= 0 || c.Camera.FovDeg >= 180 {
		return fmt.Errorf("%w: camera.fov must be in (0, 180), have %v", ErrInvalid, c.Camera.FovDeg)
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		return fmt.Errorf("%w: camera clip planes must satisfy 0 < near < far", ErrInvalid)
	}
	if c.Camera.Position == c.Camera.Target {
		return fmt.Errorf("%w: camera.position and camera.target coincide", ErrInvalid)
	}
	for i, l := range c.Lights {
		if l.Range <= 0 {
			return fmt.Errorf("%w: lights[%d].range must be positive", ErrInvalid, i)
		}
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.LogLevel))
	return l, err
}

// Backend returns the configured device backend.
func (c *Config) Backend() device.BackendType {
	b, _ := device.ParseBackendType(c.Device.Backend)
	return b
}

// DeviceOptions translates the device section into device options.
func (c *Config) DeviceOptions() []device.DeviceBuilderOption {
	mode := device.PresentModeVSync
	if !on(c.Device.VSync) {
		mode = device.PresentModeUncapped
	}
	return []device.DeviceBuilderOption{
		device.WithBackend(c.Backend()),
		device.WithSurfaceSize(c.Device.Width, c.Device.Height),
		device.WithSwapChainBufferCount(c.Device.SwapChainBuffers),
		device.WithPresentMode(mode),
	}
}

// OrchestratorOptions translates the frames section into orchestrator options.
func (c *Config) OrchestratorOptions() []orchestrator.OrchestratorBuilderOption {
	return []orchestrator.OrchestratorBuilderOption{
		orchestrator.WithQueuedFrames(c.Frames.Queued),
		orchestrator.WithWorkers(c.Frames.Workers),
	}
}

// DeferredOptions translates the pass toggles and per-pass settings into options of the
// standard deferred schedule.
func (c *Config) DeferredOptions() []orchestrator.DeferredBuilderOption {
	lights := make([]light.PointLight, len(c.Lights))
	for i, l := range c.Lights {
		lights[i] = light.NewPointLight(
			light.WithPosition(common.Vec3(l.Position)),
			light.WithColor(l.Color[0], l.Color[1], l.Color[2]),
			light.WithRange(l.Range),
			light.WithIntensity(l.Intensity),
		)
	}
	return []orchestrator.DeferredBuilderOption{
		orchestrator.WithEnvironmentLight(on(c.Passes.EnvironmentLight)),
		orchestrator.WithPunctualLight(on(c.Passes.PunctualLight)),
		orchestrator.WithSkyBox(on(c.Passes.SkyBox)),
		orchestrator.WithPostProcess(on(c.Passes.PostProcess)),
		orchestrator.WithPassOptions(pass.StageGeometry,
			pass.WithRecorders(c.Geometry.Recorders),
			pass.WithFrustumCulling(c.Geometry.FrustumCulling)),
		orchestrator.WithPassOptions(pass.StageAmbientOcclusion,
			pass.WithAmbientOcclusion(c.AO.Radius, c.AO.Bias, c.AO.Intensity, c.AO.Samples)),
		orchestrator.WithPassOptions(pass.StageBlur, pass.WithBlurRadius(c.AO.BlurRadius)),
		orchestrator.WithPassOptions(pass.StagePunctualLight, pass.WithLights(light.Pack(lights...)...)),
		orchestrator.WithPassOptions(pass.StageToneMapping, pass.WithExposure(c.Tone.Exposure, c.Tone.Gamma)),
	}
}

// FovRadians returns the camera's vertical field of view in radians.
func (c *Config) FovRadians() float32 {
	return c.Camera.FovDeg * math.Pi / 180
}

// CameraPosition and CameraTarget return the camera placement as vectors.
func (c *Config) CameraPosition() common.Vec3 { return common.Vec3(c.Camera.Position) }
func (c *Config) CameraTarget() common.Vec3   { return common.Vec3(c.Camera.Target) }

func orTrue(b *bool) *bool {
	if b != nil {
		return b
	}
	t := true
	return &t
}

// on reads an optional toggle; unset means on.
func on(b *bool) bool {
	return b == nil || *b
}
