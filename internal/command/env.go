package command

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

// buildEnv assembles the child process environment: the recipe's own
// env_vars plus an optional CUDA_VISIBLE_DEVICES override. The precedence
// here is: recipe.env_vars wins over
// extra_args.cuda_visible_devices, which wins over process inheritance (when
// neither sets it, the coordinator's own non-empty CUDA_VISIBLE_DEVICES is
// copied into the returned map).
func buildEnv(r recipe.Recipe) map[string]string {
	env := map[string]string{}

	if cvd, ok := extraArgsString(r, "cuda_visible_devices"); ok && cvd != "" {
		env["CUDA_VISIBLE_DEVICES"] = cvd
	}

	if len(r.EnvVars) > 0 {
		var kv map[string]string
		if err := json.Unmarshal(r.EnvVars, &kv); err == nil {
			for k, v := range kv {
				env[k] = v
			}
		}
	}

	if override := strings.TrimSpace(os.Getenv("CUDA_VISIBLE_DEVICES")); override != "" {
		if _, already := env["CUDA_VISIBLE_DEVICES"]; !already {
			env["CUDA_VISIBLE_DEVICES"] = override
		}
	}

	return env
}
