// Package process spawns, discovers, and terminates the inference backend
// child processes this service manages. Discovery works by scanning
// /proc for a live process whose argv binds the target port and matches a
// known backend's invocation shape — there is no supervisor state to
// consult, so a restart of this service can still find what's already
// running.
package process

import (
	"strconv"
	"strings"

	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

// Info is a runtime snapshot of a discovered inference process.
type Info struct {
	PID             int
	Backend         recipe.Backend
	ModelPath       string
	ServedModelName string
	Port            int
	Command         string
	Args            []string
}

// backendSignatures maps a substring found in a process's command/args to
// the backend it identifies. Checked in this order; first match wins.
var backendSignatures = []struct {
	backend recipe.Backend
	match   func(argv []string) bool
}{
	{recipe.BackendVLLM, func(argv []string) bool { return argvContainsAny(argv, "vllm") }},
	{recipe.BackendSGLang, func(argv []string) bool { return argvContainsAny(argv, "sglang.launch_server") }},
	{recipe.BackendLlamaCPP, func(argv []string) bool { return argvContainsAny(argv, "llama-server") }},
	{recipe.BackendStableDif, func(argv []string) bool { return argvContainsAny(argv, "sdcpp-server.py") }},
}

func argvContainsAny(argv []string, needle string) bool {
	for _, a := range argv {
		if strings.Contains(a, needle) {
			return true
		}
	}
	return false
}

func identifyBackend(argv []string) (recipe.Backend, bool) {
	for _, sig := range backendSignatures {
		if sig.match(argv) {
			return sig.backend, true
		}
	}
	return "", false
}

// argvPort extracts the port this process was told to bind, honoring both
// "--port 8000" and "--port=8000" spellings.
func argvPort(argv []string) (int, bool) {
	for i, a := range argv {
		if a == "--port" || a == "-p" {
			if i+1 < len(argv) {
				if p, err := strconv.Atoi(argv[i+1]); err == nil {
					return p, true
				}
			}
		}
		if strings.HasPrefix(a, "--port=") {
			if p, err := strconv.Atoi(strings.TrimPrefix(a, "--port=")); err == nil {
				return p, true
			}
		}
	}
	return 0, false
}

func argvFlagValue(argv []string, flags ...string) (string, bool) {
	flagSet := make(map[string]struct{}, len(flags))
	for _, f := range flags {
		flagSet[f] = struct{}{}
	}
	for i, a := range argv {
		if _, ok := flagSet[a]; ok && i+1 < len(argv) {
			return argv[i+1], true
		}
		for f := range flagSet {
			if prefix := f + "="; strings.HasPrefix(a, prefix) {
				return strings.TrimPrefix(a, prefix), true
			}
		}
	}
	return "", false
}

// parseArgvInfo builds an Info from a discovered process's argv, or
// reports ok=false if the argv doesn't look like one of the known backends.
func parseArgvInfo(pid int, command string, argv []string) (Info, bool) {
	backend, ok := identifyBackend(argv)
	if !ok {
		return Info{}, false
	}
	info := Info{
		PID:     pid,
		Backend: backend,
		Command: command,
		Args:    argv,
	}
	if port, ok := argvPort(argv); ok {
		info.Port = port
	}
	if m, ok := argvFlagValue(argv, "-m", "--model-path", "--model"); ok {
		info.ModelPath = m
	} else if backend == recipe.BackendVLLM || backend == recipe.BackendSGLang {
		// vLLM/SGLang take the model path as a bare positional argument
		// right after the subcommand, not behind a flag.
		for i, a := range argv {
			if (a == "serve" || a == "launch_server") && i+1 < len(argv) && !strings.HasPrefix(argv[i+1], "-") {
				info.ModelPath = argv[i+1]
				break
			}
		}
	}
	if name, ok := argvFlagValue(argv, "--served-model-name", "--alias"); ok {
		info.ServedModelName = name
	}
	return info, true
}
