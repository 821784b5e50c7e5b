package shader

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

var (
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)
	locationRegex    = regexp.MustCompile(`@location\((\d+)\)`)
	builtinRegex     = regexp.MustCompile(`@builtin\(\w+\)`)
	fieldRegex       = regexp.MustCompile(`(\w+)\s*:\s*(.+)$`)
	attributeRegex   = regexp.MustCompile(`@\w+(\([^)]*\))?`)

	entryRegex = map[ShaderType]*regexp.Regexp{
		ShaderTypeVertex:   regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`),
		ShaderTypeFragment: regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`),
	}

	// @group(0) @binding(0) var<uniform> frame: FrameConstants;
	// @group(1) @binding(0) var normals: texture_2d<f32>;
	bindingRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// vertexFormats maps WGSL vertex attribute types to their vertex format.
var vertexFormats = map[string]vertexFormatInfo{
	"f32":       {wgpu.VertexFormatFloat32, 4},
	"vec2<f32>": {wgpu.VertexFormatFloat32x2, 8},
	"vec3<f32>": {wgpu.VertexFormatFloat32x3, 12},
	"vec4<f32>": {wgpu.VertexFormatFloat32x4, 16},
	"u32":       {wgpu.VertexFormatUint32, 4},
	"vec4<u32>": {wgpu.VertexFormatUint32x4, 16},
}

// shorthand aliases used by WGSL for the common vector and matrix types
var typeAliases = map[string]string{
	"vec2f": "vec2<f32>", "vec3f": "vec3<f32>", "vec4f": "vec4<f32>",
	"vec2i": "vec2<i32>", "vec3i": "vec3<i32>", "vec4i": "vec4<i32>",
	"vec2u": "vec2<u32>", "vec3u": "vec3<u32>", "vec4u": "vec4<u32>",
	"mat3x3f": "mat3x3<f32>", "mat4x4f": "mat4x4<f32>",
}

func canonicalType(t string) string {
	t = strings.Join(strings.Fields(t), "")
	if a, ok := typeAliases[t]; ok {
		return a
	}
	return t
}

// primitiveLayout returns the size and alignment of scalar, vector and f32 matrix types.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
func primitiveLayout(t string) (wgslTypeLayout, bool) {
	switch t {
	case "f32", "i32", "u32", "bool", "atomic<u32>", "atomic<i32>":
		return wgslTypeLayout{4, 4}, true
	}
	if n, elem, ok := parseVector(t); ok && (elem == "f32" || elem == "i32" || elem == "u32") {
		switch n {
		case 2:
			return wgslTypeLayout{8, 8}, true
		case 3:
			return wgslTypeLayout{12, 16}, true
		case 4:
			return wgslTypeLayout{16, 16}, true
		}
	}
	// matCxR<f32>: C columns of vecR<f32>
	if strings.HasPrefix(t, "mat") && strings.HasSuffix(t, "<f32>") && len(t) == len("mat4x4<f32>") {
		cols, errC := strconv.Atoi(t[3:4])
		rows, errR := strconv.Atoi(t[5:6])
		if errC == nil && errR == nil && cols >= 2 && cols <= 4 && rows >= 2 && rows <= 4 {
			col, _ := primitiveLayout("vec" + strconv.Itoa(rows) + "<f32>")
			stride := roundUpAlign(col.align, col.size)
			return wgslTypeLayout{uint64(cols) * stride, col.align}, true
		}
	}
	return wgslTypeLayout{}, false
}

func parseVector(t string) (int, string, bool) {
	if !strings.HasPrefix(t, "vec") || len(t) < 9 || t[4] != '<' || !strings.HasSuffix(t, ">") {
		return 0, "", false
	}
	n, err := strconv.Atoi(t[3:4])
	if err != nil {
		return 0, "", false
	}
	return n, t[5 : len(t)-1], true
}

func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// resolveTypeLayout resolves primitives, known structs and fixed-size arrays.
// Runtime-sized arrays resolve to a single element stride.
func resolveTypeLayout(t string, known map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	t = canonicalType(t)
	if l, ok := primitiveLayout(t); ok {
		return l, true
	}
	if l, ok := known[t]; ok {
		return l, true
	}
	inner, ok := strings.CutPrefix(t, "array<")
	if !ok || !strings.HasSuffix(inner, ">") {
		return wgslTypeLayout{}, false
	}
	inner = inner[:len(inner)-1]
	elemType, countStr, fixed := cutLastTopLevelComma(inner)
	elem, ok := resolveTypeLayout(elemType, known)
	if !ok {
		return wgslTypeLayout{}, false
	}
	stride := roundUpAlign(elem.align, elem.size)
	if !fixed {
		return wgslTypeLayout{stride, elem.align}, true
	}
	count, err := strconv.ParseUint(countStr, 10, 64)
	if err != nil {
		return wgslTypeLayout{}, false
	}
	return wgslTypeLayout{count * stride, elem.align}, true
}

func cutLastTopLevelComma(s string) (string, string, bool) {
	parts := splitAtTopLevelCommas(s)
	if len(parts) < 2 {
		return strings.TrimSpace(s), "", false
	}
	last := parts[len(parts)-1]
	return strings.TrimSpace(s[:len(s)-len(last)-1]), strings.TrimSpace(last), true
}

// computeStructSizes resolves every struct, iterating until no more structs can be resolved so that
// structs may reference structs declared after them.
func computeStructSizes(structs []parsedStruct) map[string]wgslTypeLayout {
	resolved := make(map[string]wgslTypeLayout, len(structs))
	for progress := true; progress; {
		progress = false
		for _, ps := range structs {
			if _, done := resolved[ps.name]; done {
				continue
			}
			if l, ok := structLayout(ps, resolved); ok {
				resolved[ps.name] = l
				progress = true
			}
		}
	}
	return resolved
}

func structLayout(ps parsedStruct, known map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	var offset uint64
	maxAlign := uint64(1)
	for _, f := range ps.fields {
		if f.builtin {
			continue
		}
		l, ok := resolveTypeLayout(f.typeName, known)
		if !ok {
			return wgslTypeLayout{}, false
		}
		offset = roundUpAlign(l.align, offset) + l.size
		maxAlign = max(maxAlign, l.align)
	}
	return wgslTypeLayout{roundUpAlign(maxAlign, offset), maxAlign}, true
}

// parseStructBlocks finds all struct declarations in comment-free source.
func parseStructBlocks(source string) []parsedStruct {
	var out []parsedStruct
	for _, m := range structBlockRegex.FindAllStringSubmatch(source, -1) {
		ps := parsedStruct{name: m[1]}
		for _, raw := range splitAtTopLevelCommas(m[2]) {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			f := parsedField{location: -1, builtin: builtinRegex.MatchString(raw)}
			if lm := locationRegex.FindStringSubmatch(raw); lm != nil {
				f.location, _ = strconv.Atoi(lm[1])
			}
			fm := fieldRegex.FindStringSubmatch(strings.TrimSpace(attributeRegex.ReplaceAllString(raw, "")))
			if fm == nil {
				continue
			}
			f.name, f.typeName = fm[1], canonicalType(fm[2])
			ps.fields = append(ps.fields, f)
		}
		out = append(out, ps)
	}
	return out
}

// parseBindings extracts every resource declaration, sorted by group then binding.
func parseBindings(source string, structs map[string]wgslTypeLayout) []Binding {
	var out []Binding
	for _, m := range bindingRegex.FindAllStringSubmatch(source, -1) {
		g, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		space := strings.ReplaceAll(m[3], " ", "")
		typeName := canonicalType(m[5])

		bd := Binding{Group: g, Binding: b, Name: m[4], Type: typeName, Kind: classifyBinding(space, typeName)}
		if bd.Kind <= BindingKindReadOnlyStorage {
			if l, ok := resolveTypeLayout(typeName, structs); ok {
				bd.MinSize = l.size
			}
		}
		out = append(out, bd)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Binding < out[j].Binding
	})
	return out
}

func classifyBinding(space, typeName string) BindingKind {
	switch {
	case space == "uniform":
		return BindingKindUniform
	case space == "storage,read_write":
		return BindingKindStorage
	case strings.HasPrefix(space, "storage"):
		return BindingKindReadOnlyStorage
	case typeName == "sampler" || typeName == "sampler_comparison":
		return BindingKindSampler
	case strings.HasPrefix(typeName, "texture_depth_"):
		return BindingKindDepthTexture
	case strings.HasPrefix(typeName, "texture_"):
		return BindingKindTexture
	default:
		return BindingKindUnknown
	}
}

// bindingLayouts converts parsed bindings to bind group layout descriptors keyed by group.
func bindingLayouts(bindings []Binding, visibility wgpu.ShaderStage) map[int]wgpu.BindGroupLayoutDescriptor {
	out := make(map[int]wgpu.BindGroupLayoutDescriptor)
	for _, b := range bindings {
		e := wgpu.BindGroupLayoutEntry{Binding: uint32(b.Binding), Visibility: visibility}
		switch b.Kind {
		case BindingKindUniform:
			e.Buffer.Type = wgpu.BufferBindingTypeUniform
			e.Buffer.MinBindingSize = b.MinSize
		case BindingKindStorage:
			e.Buffer.Type = wgpu.BufferBindingTypeStorage
			e.Buffer.MinBindingSize = b.MinSize
		case BindingKindReadOnlyStorage:
			e.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
			e.Buffer.MinBindingSize = b.MinSize
		case BindingKindTexture:
			e.Texture.SampleType = wgpu.TextureSampleTypeUnfilterableFloat
			e.Texture.ViewDimension = wgpu.TextureViewDimension2D
			if strings.HasPrefix(b.Type, "texture_cube") {
				e.Texture.ViewDimension = wgpu.TextureViewDimensionCube
			}
		case BindingKindDepthTexture:
			e.Texture.SampleType = wgpu.TextureSampleTypeDepth
			e.Texture.ViewDimension = wgpu.TextureViewDimension2D
		case BindingKindSampler:
			e.Sampler.Type = wgpu.SamplerBindingTypeNonFiltering
			if b.Type == "sampler_comparison" {
				e.Sampler.Type = wgpu.SamplerBindingTypeComparison
			}
		}
		d := out[b.Group]
		d.Entries = append(d.Entries, e)
		out[b.Group] = d
	}
	return out
}

// parseEntryPoint returns the entry function for the stage, or "" if none is declared.
func parseEntryPoint(source string, shaderType ShaderType) string {
	re, ok := entryRegex[shaderType]
	if !ok {
		return ""
	}
	if m := re.FindStringSubmatch(stripComments(source)); m != nil {
		return m[1]
	}
	return ""
}

// parseVertexLayouts builds one vertex buffer layout per pure vertex input struct: a struct with
// @location fields and no @builtin fields.
func parseVertexLayouts(structs []parsedStruct) []wgpu.VertexBufferLayout {
	var out []wgpu.VertexBufferLayout
	for _, ps := range structs {
		var attrs []wgpu.VertexAttribute
		var offset uint64
		valid := len(ps.fields) > 0
		for _, f := range ps.fields {
			info, ok := vertexFormats[f.typeName]
			if f.builtin || f.location < 0 || !ok {
				valid = false
				break
			}
			attrs = append(attrs, wgpu.VertexAttribute{Format: info.format, Offset: offset, ShaderLocation: uint32(f.location)})
			offset += info.size
		}
		if !valid {
			continue
		}
		out = append(out, wgpu.VertexBufferLayout{ArrayStride: offset, StepMode: wgpu.VertexStepModeVertex, Attributes: attrs})
	}
	return out
}

func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		if i+1 < len(source) {
			switch {
			case source[i] == '/' && source[i+1] == '*':
				depth++
				i++
				continue
			case source[i] == '*' && source[i+1] == '/' && depth > 0:
				depth--
				i++
				continue
			case depth == 0 && source[i] == '/' && source[i+1] == '/':
				for i < len(source) && source[i] != '\n' {
					i++
				}
				if i < len(source) {
					sb.WriteByte('\n')
				}
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
	}
	return sb.String()
}

// splitAtTopLevelCommas splits at commas that are not nested in angle brackets.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
