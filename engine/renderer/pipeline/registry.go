package pipeline

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
)

// Registry hands out the shared Config of each stage type. Configs are created and compiled at
// most once; every recorder of a stage receives the same instance.
type Registry interface {
	// Register adds an uninitialised config.
	//
	// Parameters:
	//   - c: the config to add
	//
	// Returns:
	//   - error: ErrDuplicateConfig if the key is taken
	Register(c Config) error

	// Get returns the config registered under key, compiling it on first use.
	//
	// Parameters:
	//   - key: the config key
	//
	// Returns:
	//   - Config: the ready config
	//   - error: ErrUnknownConfig or a compilation error
	Get(key string) (Config, error)

	// GetOrCreate returns the config under key, building and registering it with build when missing.
	// The config is compiled before it is returned.
	//
	// Parameters:
	//   - key: the config key
	//   - build: constructs the config; called at most once per key
	//
	// Returns:
	//   - Config: the ready config
	//   - error: a build or compilation error
	GetOrCreate(key string, build func() (Config, error)) (Config, error)

	// Keys returns the registered keys.
	Keys() []string
}

type registry struct {
	mu      *sync.Mutex
	dev     device.Device
	configs map[string]Config
}

var _ Registry = &registry{}

// NewRegistry creates an empty Registry that compiles configs on dev.
//
// Parameters:
//   - dev: the device used to compile pipelines
//
// Returns:
//   - Registry: the new registry
func NewRegistry(dev device.Device) Registry {
	if dev == nil {
		panic("pipeline: NewRegistry requires a device")
	}
	return &registry{mu: &sync.Mutex{}, dev: dev, configs: make(map[string]Config)}
}

func (r *registry) Register(c Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.configs[c.Key()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateConfig, c.Key())
	}
	r.configs[c.Key()] = c
	return nil
}

func (r *registry) Get(key string) (Config, error) {
	r.mu.Lock()
	c, ok := r.configs[key]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConfig, key)
	}
	if err := c.Init(r.dev); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *registry) GetOrCreate(key string, build func() (Config, error)) (Config, error) {
	r.mu.Lock()
	c, ok := r.configs[key]
	if !ok {
		var err error
		c, err = build()
		if err != nil {
			r.mu.Unlock()
			return nil, fmt.Errorf("pipeline %s: %w", key, err)
		}
		r.configs[key] = c
	}
	r.mu.Unlock()

	if err := c.Init(r.dev); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.configs))
	for k := range r.configs {
		keys = append(keys, k)
	}
	return keys
}
