package shader

// ShaderBuilderOption is a functional option used to configure shader pre-processing.
type ShaderBuilderOption func(*preProcessor)

// WithInclude registers WGSL source that replaces "//@deferred:include <name>" lines.
//
// Parameters:
//   - name: the include name
//   - source: the WGSL source injected at the include site
//
// Returns:
//   - ShaderBuilderOption: a function that registers the include
func WithInclude(name, source string) ShaderBuilderOption {
	return func(p *preProcessor) {
		p.includes[name] = source
	}
}

// WithIncludes registers several includes at once.
func WithIncludes(includes map[string]string) ShaderBuilderOption {
	return func(p *preProcessor) {
		for k, v := range includes {
			p.includes[k] = v
		}
	}
}
