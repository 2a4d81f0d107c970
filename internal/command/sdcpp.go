package command

import (
	"encoding/json"
	"strconv"

	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

var sdcppInternalExtras = map[string]struct{}{
	"sd_cli":           {},
	"base_args":        {},
	"timeout_seconds":  {},
	"output_dir":       {},
}

// sdcppShimScript names the Python shim server spawned for the
// stable-diffusion.cpp backend.
const sdcppShimScript = "sdcpp-server.py"

// buildSDCPP assembles argv for the sdcpp Python shim server.
func buildSDCPP(r recipe.Recipe, opts Options) (Result, error) {
	python := resolvePython(r, opts)
	argv := []string{python, sdcppShimScript, "--host", r.Host, "--port", strconv.Itoa(r.Port)}

	sdCLI := opts.SDCliPath
	if sdCLI == "" {
		if raw, ok := extraArgsString(r, "sd_cli"); ok && raw != "" {
			sdCLI = raw
		} else if path, ok := resolveBinary(opts, "sd"); ok {
			sdCLI = path
		}
	}
	if sdCLI != "" {
		argv = append(argv, "--sd-cli", sdCLI)
	}

	if baseArgs, ok := extraArgsValueRaw(r, "base_args"); ok {
		if encoded, err := encodeBaseArgs(baseArgs); err == nil {
			argv = append(argv, "--base-args-json", encoded)
		}
	}

	if timeout := extraArgsInt(r, "timeout_seconds", 0); timeout > 0 {
		argv = append(argv, "--timeout-seconds", strconv.Itoa(timeout))
	}
	if outDir, ok := extraArgsString(r, "output_dir"); ok && outDir != "" {
		argv = append(argv, "--output-dir", outDir)
	}

	argv = appendExtras(argv, r, sdcppInternalExtras)

	return Result{Argv: argv, Env: buildEnv(r)}, nil
}

// encodeBaseArgs turns extra_args.base_args (either a JSON array of flags,
// or a raw shell-fragment string) into the JSON-encoded argv the shim
// expects for the underlying sd-cli invocation.
func encodeBaseArgs(raw string) (string, error) {
	var arr []string
	if err := json.Unmarshal([]byte(raw), &arr); err == nil {
		encoded, err := json.Marshal(arr)
		return string(encoded), err
	}

	var asString string
	if err := json.Unmarshal([]byte(raw), &asString); err == nil {
		tokens, err := tokenizeShellFragment(asString)
		if err != nil {
			return "", err
		}
		encoded, err := json.Marshal(tokens)
		return string(encoded), err
	}

	encoded, err := json.Marshal([]string{raw})
	return string(encoded), err
}
