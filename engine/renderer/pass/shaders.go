package pass

import (
	_ "embed"
	"fmt"

	"github.com/Carmen-Shannon/oxy-deferred/engine/geometry"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/upload"
)

var (
	//go:embed assets/gbuffer.wgsl
	gbufferSource string

	//go:embed assets/fullscreen_vs.wgsl
	fullscreenVSSource string

	//go:embed assets/geometry_vs.wgsl
	geometryVSSource string

	//go:embed assets/geometry_fs.wgsl
	geometryFSSource string

	//go:embed assets/ambient_occlusion_fs.wgsl
	ambientOcclusionFSSource string

	//go:embed assets/blur_fs.wgsl
	blurFSSource string

	//go:embed assets/ambient_light_fs.wgsl
	ambientLightFSSource string

	//go:embed assets/environment_light_fs.wgsl
	environmentLightFSSource string

	//go:embed assets/punctual_light_vs.wgsl
	punctualLightVSSource string

	//go:embed assets/punctual_light_fs.wgsl
	punctualLightFSSource string

	//go:embed assets/skybox_vs.wgsl
	skyBoxVSSource string

	//go:embed assets/skybox_fs.wgsl
	skyBoxFSSource string

	//go:embed assets/tone_mapping_fs.wgsl
	toneMappingFSSource string

	//go:embed assets/post_process_fs.wgsl
	postProcessFSSource string
)

// includes are the shared WGSL declarations every pass shader may pull in.
func includes() map[string]string {
	return map[string]string{
		"frame_constants":  upload.GPUFrameConstantsSource,
		"point_light":      upload.GPUPointLightSource,
		"vertex":           geometry.GPUVertexSource,
		"object_constants": GPUObjectConstantsSource,
		"pass_params":      GPUPassParamsSource,
		"gbuffer":          gbufferSource,
	}
}

// shaderPair builds the vertex and fragment shaders of a stage.
func shaderPair(stage Stage, vertexSource, fragmentSource string) (shader.Shader, shader.Shader, error) {
	inc := shader.WithIncludes(includes())
	vs, err := shader.NewShader(stage.Key()+"_vs", shader.ShaderTypeVertex, vertexSource, inc)
	if err != nil {
		return nil, nil, fmt.Errorf("pass %s: %w", stage, err)
	}
	fs, err := shader.NewShader(stage.Key()+"_fs", shader.ShaderTypeFragment, fragmentSource, inc)
	if err != nil {
		return nil, nil, fmt.Errorf("pass %s: %w", stage, err)
	}
	return vs, fs, nil
}
