package command

import (
	"strconv"

	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

var llamaCppInternalExtras = map[string]struct{}{
	"n_gpu_layers": {},
	"tensor_split": {},
	"batch_size":   {},
	"flash_attn":   {},
}

// buildLlamaCPP assembles argv for llama-server.
func buildLlamaCPP(r recipe.Recipe, opts Options) (Result, error) {
	binary := opts.LlamaServerPath
	if binary == "" {
		if path, ok := resolveBinary(opts, "llama-server"); ok {
			binary = path
		} else {
			binary = "llama-server"
		}
	}

	argv := []string{binary, "-m", r.ModelPath, "--host", r.Host, "--port", strconv.Itoa(r.Port)}

	if r.MaxModelLen > 0 {
		argv = append(argv, "-c", strconv.Itoa(r.MaxModelLen))
	}
	nGPULayers := extraArgsInt(r, "n_gpu_layers", 99)
	argv = append(argv, "-ngl", strconv.Itoa(nGPULayers))

	if r.MaxNumSeqs > 0 {
		argv = append(argv, "-np", strconv.Itoa(r.MaxNumSeqs))
	}
	argv = append(argv, "--cont-batching", "--metrics")

	if r.TensorParallelSize > 1 {
		argv = append(argv, "--split-mode", "layer")
		if split, ok := extraArgsString(r, "tensor_split"); ok && split != "" {
			argv = append(argv, "--tensor-split", split)
		}
	}

	if batch := extraArgsInt(r, "batch_size", 0); batch > 0 {
		argv = append(argv, "-b", strconv.Itoa(batch))
	}
	if extraArgsBool(r, "flash_attn") {
		argv = append(argv, "--flash-attn")
	}
	if r.ServedModelName != "" {
		argv = append(argv, "--alias", r.ServedModelName)
	}

	argv = appendExtras(argv, r, llamaCppInternalExtras)

	return Result{Argv: argv, Env: buildEnv(r)}, nil
}
