package command

import (
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/tidwall/gjson"

	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

// internalExtraArgsKeys are never emitted as CLI flags; they configure the
// builder itself (venv_path, env_vars are surfaced through dedicated
// recipe fields) or are pure UI/bookkeeping metadata.
var internalExtraArgsKeys = map[string]struct{}{
	"venv_path":            {},
	"env_vars":             {},
	"cuda_visible_devices": {},
	"description":          {},
	"tags":                 {},
	"status":               {},
}

// appendExtras walks r.ExtraArgs and appends flags to argv, skipping the
// shared internal keyset plus any backend-specific extras, following
// these emission rules:
//   - booleans: emit the flag alone when true, omit entirely when false
//   - null: skipped
//   - arrays/objects: emitted as a single JSON-string argument with all
//     nested keys rewritten kebab -> snake
//   - scalars: emitted as "--flag value"
//   - a flag already present in argv is never duplicated (property 6,
//     previously)
func appendExtras(argv []string, r recipe.Recipe, backendExtras map[string]struct{}) []string {
	if len(r.ExtraArgs) == 0 {
		return argv
	}

	present := make(map[string]struct{}, len(argv))
	for _, a := range argv {
		if strings.HasPrefix(a, "--") {
			present[a] = struct{}{}
		}
	}

	gjson.ParseBytes(r.ExtraArgs).ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if _, skip := internalExtraArgsKeys[name]; skip {
			return true
		}
		if _, skip := backendExtras[name]; skip {
			return true
		}
		flag := "--" + name
		if _, dup := present[flag]; dup {
			return true
		}

		switch value.Type {
		case gjson.Null:
			return true
		case gjson.True:
			argv = append(argv, flag)
			present[flag] = struct{}{}
		case gjson.False:
			// omitted
		case gjson.JSON:
			rewritten, err := rewriteValue(value)
			if err == nil {
				argv = append(argv, flag, rewritten)
				present[flag] = struct{}{}
			}
		default: // String, Number
			argv = append(argv, flag, value.String())
			present[flag] = struct{}{}
		}
		return true
	})

	return argv
}

// extraArgsString reads a single top-level scalar string out of
// r.ExtraArgs, used by resolvePython for venv_path.
func extraArgsString(r recipe.Recipe, key string) (string, bool) {
	if len(r.ExtraArgs) == 0 {
		return "", false
	}
	res := gjson.GetBytes(r.ExtraArgs, key)
	if !res.Exists() || res.Type != gjson.String {
		return "", false
	}
	return res.String(), true
}

// extraArgsInt reads a single top-level numeric value, used for n_gpu_layers.
func extraArgsInt(r recipe.Recipe, key string, fallback int) int {
	if len(r.ExtraArgs) == 0 {
		return fallback
	}
	res := gjson.GetBytes(r.ExtraArgs, key)
	if !res.Exists() || res.Type != gjson.Number {
		return fallback
	}
	return int(res.Int())
}

// extraArgsBool reads a single top-level boolean value, used for flash_attn.
func extraArgsBool(r recipe.Recipe, key string) bool {
	if len(r.ExtraArgs) == 0 {
		return false
	}
	res := gjson.GetBytes(r.ExtraArgs, key)
	return res.Exists() && res.Type == gjson.True
}

// extraArgsValueRaw returns the raw JSON text of a top-level extra_args
// value, for callers (like the sdcpp base_args encoder) that need to
// distinguish a JSON array from a plain string before decoding it.
func extraArgsValueRaw(r recipe.Recipe, key string) (string, bool) {
	if len(r.ExtraArgs) == 0 {
		return "", false
	}
	res := gjson.GetBytes(r.ExtraArgs, key)
	if !res.Exists() {
		return "", false
	}
	return res.Raw, true
}

// ExtraArgsInt exposes extraArgsInt to callers outside the package — the
// launch coordinator needs it to read extra_args.inference_port for sdcpp
// recipes, which bind a control port distinct from the shim's own port.
func ExtraArgsInt(r recipe.Recipe, key string, fallback int) int {
	return extraArgsInt(r, key, fallback)
}

// tokenizeShellFragment splits a raw shell-style argument fragment the way
// docker-model-runner/ericcurtin-model-runner tokenize launch arguments,
// rather than the looser strings.Fields (which mishandles quoting).
func tokenizeShellFragment(fragment string) ([]string, error) {
	return shellwords.Parse(fragment)
}
