// pre_processor.go implements the WGSL include pre-processor. Shared struct declarations such as
// the per-frame constants live in one embedded .wgsl asset next to the Go type that marshals them,
// and every pass shader pulls them in with a single directive line:
//
//	//@deferred:include frame_constants
//
// Keeping one source for the struct guarantees CPU writer and GPU reader agree on its layout.
package shader

import (
	"fmt"
	"strings"
)

const includePrefix = "//@deferred:include"

// PreProcessor expands include directives in WGSL source.
type PreProcessor interface {
	// Process replaces every include directive with the registered source. Each name is
	// injected at most once; repeated includes of the same name are dropped.
	//
	// Parameters:
	//   - source: the raw WGSL source
	//
	// Returns:
	//   - string: the expanded source
	//   - error: an error naming the line of an unknown or malformed include
	Process(source string) (string, error)

	// Included returns the names injected by the last Process call, in order.
	Included() []string
}

type preProcessor struct {
	includes map[string]string
	included []string
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with the includes registered by options.
//
// Parameters:
//   - options: functional options such as WithInclude
//
// Returns:
//   - PreProcessor: the new pre-processor
func NewPreProcessor(options ...ShaderBuilderOption) PreProcessor {
	return newPreProcessor(options)
}

func newPreProcessor(options []ShaderBuilderOption) *preProcessor {
	p := &preProcessor{includes: make(map[string]string)}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *preProcessor) Process(source string) (string, error) {
	p.included = p.included[:0]
	seen := make(map[string]bool)

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), includePrefix)
		if !ok {
			out = append(out, line)
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) != 1 {
			return "", fmt.Errorf("line %d: include takes exactly one name", i+1)
		}
		name := fields[0]
		src, ok := p.includes[name]
		if !ok {
			return "", fmt.Errorf("line %d: unknown include %q", i+1, name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		p.included = append(p.included, name)
		out = append(out, strings.TrimRight(src, "\n"))
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Included() []string {
	return p.included
}
