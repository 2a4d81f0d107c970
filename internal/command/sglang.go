package command

import (
	"strconv"

	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

var sglangInternalExtras = map[string]struct{}{}

// buildSGLang assembles argv for "<python> -m sglang.launch_server" per
// mirroring vLLM's flags where SGLang names them differently.
func buildSGLang(r recipe.Recipe, opts Options) (Result, error) {
	python := resolvePython(r, opts)
	argv := []string{python, "-m", "sglang.launch_server"}

	argv = append(argv, "--model-path", r.ModelPath)
	argv = append(argv, "--host", r.Host)
	argv = append(argv, "--port", strconv.Itoa(r.Port))

	if r.ServedModelName != "" {
		argv = append(argv, "--served-model-name", r.ServedModelName)
	}
	if r.MaxModelLen > 0 {
		argv = append(argv, "--context-length", strconv.Itoa(r.MaxModelLen))
	}
	if r.GPUMemoryUtilization > 0 {
		argv = append(argv, "--mem-fraction-static", formatFloat(r.GPUMemoryUtilization))
	}
	if r.MaxNumSeqs > 0 {
		argv = append(argv, "--max-running-requests", strconv.Itoa(r.MaxNumSeqs))
	}
	if r.TensorParallelSize > 1 {
		argv = append(argv, "--tp-size", strconv.Itoa(r.TensorParallelSize))
	}
	if r.PipelineParallelSize > 1 {
		argv = append(argv, "--pp-size", strconv.Itoa(r.PipelineParallelSize))
	}
	if r.KVCacheDtype != "" && r.KVCacheDtype != recipe.KVCacheAuto {
		argv = append(argv, "--kv-cache-dtype", string(r.KVCacheDtype))
	}
	if r.TrustRemoteCode {
		argv = append(argv, "--trust-remote-code")
	}
	if r.Quantization != "" {
		argv = append(argv, "--quantization", r.Quantization)
	}
	if r.Dtype != "" {
		argv = append(argv, "--dtype", r.Dtype)
	}

	argv = appendExtras(argv, r, sglangInternalExtras)

	return Result{Argv: argv, Env: buildEnv(r)}, nil
}
