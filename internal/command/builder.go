// Package command turns a recipe into the argv/environment needed to spawn
// one of the four supported inference backends (vLLM, SGLang, llama.cpp,
// stable-diffusion.cpp).
package command

import (
	"fmt"

	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

// Options carries the environment the builder resolves binaries/paths
// against; RuntimeBinDir and the *Path overrides come from the env vars
// named VLLM_STUDIO_RUNTIME_BIN, LLAMA_SERVER_PATH, SD_CLI_PATH. HomeDir
// defaults to os.UserHomeDir() in production and is injected here so
// resolution is testable against a fake filesystem.
type Options struct {
	RuntimeBinDir   string
	HomeDir         string
	PathEnv         string
	LlamaServerPath string
	SDCliPath       string
	LookPath        func(string) (string, error)
	Stat            func(string) bool
}

// Result is the spawn-ready argv/env for a recipe.
type Result struct {
	Argv []string
	Env  map[string]string
}

// Build dispatches to the per-backend argv assembler.
func Build(r recipe.Recipe, opts Options) (Result, error) {
	switch r.Backend {
	case recipe.BackendVLLM:
		return buildVLLM(r, opts)
	case recipe.BackendSGLang:
		return buildSGLang(r, opts)
	case recipe.BackendLlamaCPP:
		return buildLlamaCPP(r, opts)
	case recipe.BackendStableDif:
		return buildSDCPP(r, opts)
	default:
		return Result{}, fmt.Errorf("unsupported backend %q", r.Backend)
	}
}
