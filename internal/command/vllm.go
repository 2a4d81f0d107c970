package command

import (
	"path/filepath"
	"strconv"

	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

// vllmInternalExtras are additional extra_args keys vLLM's own flags already
// cover explicitly, so appendExtras must not re-emit them.
var vllmInternalExtras = map[string]struct{}{
	"n_gpu_layers": {}, // llama.cpp-only, harmless to reserve everywhere
}

// buildVLLM assembles argv for the vLLM backend: prefer
// "<pydir>/vllm serve", else "python -m vllm.entrypoints.openai.api_server",
// else "vllm serve" resolved from PATH.
func buildVLLM(r recipe.Recipe, opts Options) (Result, error) {
	python := resolvePython(r, opts)
	pydir := filepath.Dir(python)

	var argv []string
	if candidate := filepath.Join(pydir, "vllm"); opts.stat(candidate) {
		argv = []string{candidate, "serve"}
	} else if opts.stat(python) {
		argv = []string{python, "-m", "vllm.entrypoints.openai.api_server"}
	} else if path, ok := resolveBinary(opts, "vllm"); ok {
		argv = []string{path, "serve"}
	} else {
		argv = []string{"vllm", "serve"}
	}

	argv = append(argv, r.ModelPath)
	argv = append(argv, "--host", r.Host)
	argv = append(argv, "--port", strconv.Itoa(r.Port))

	if r.ServedModelName != "" {
		argv = append(argv, "--served-model-name", r.ServedModelName)
	}
	if r.MaxModelLen > 0 {
		argv = append(argv, "--max-model-len", strconv.Itoa(r.MaxModelLen))
	}
	if r.GPUMemoryUtilization > 0 {
		argv = append(argv, "--gpu-memory-utilization", formatFloat(r.GPUMemoryUtilization))
	}
	if r.MaxNumSeqs > 0 {
		argv = append(argv, "--max-num-seqs", strconv.Itoa(r.MaxNumSeqs))
	}
	if r.TensorParallelSize > 1 {
		argv = append(argv, "--tensor-parallel-size", strconv.Itoa(r.TensorParallelSize))
	}
	if r.PipelineParallelSize > 1 {
		argv = append(argv, "--pipeline-parallel-size", strconv.Itoa(r.PipelineParallelSize))
	}
	if r.KVCacheDtype != "" && r.KVCacheDtype != recipe.KVCacheAuto {
		argv = append(argv, "--kv-cache-dtype", string(r.KVCacheDtype))
	}
	if r.TrustRemoteCode {
		argv = append(argv, "--trust-remote-code")
	}

	reasoning := detectReasoningParser(r.ModelPath, r.ReasoningParser)
	toolCall := detectToolCallParser(r.ModelPath, r.ToolCallParser)
	if reasoning != "" {
		argv = append(argv, "--reasoning-parser", reasoning)
	}
	if toolCall != "" {
		argv = append(argv, "--tool-call-parser", toolCall, "--enable-auto-tool-choice")
	}

	if r.Quantization != "" {
		argv = append(argv, "--quantization", r.Quantization)
	}
	if r.Dtype != "" {
		argv = append(argv, "--dtype", r.Dtype)
	}

	if r.TensorParallelSize > 4 && isMiniMaxM2(r.ModelPath) {
		argv = append(argv, "--enable-expert-parallel")
	}

	argv = appendExtras(argv, r, vllmInternalExtras)

	return Result{Argv: argv, Env: buildEnv(r)}, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
