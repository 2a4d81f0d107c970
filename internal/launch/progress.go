package launch

import "github.com/RATDEO/lammastudio-sub000/internal/recipe"

// Stage names a point in a launch attempt's lifecycle. Ready, Error, and
// Cancelled are terminal; every other stage precedes exactly one of them.
type Stage string

const (
	StagePreempting Stage = "preempting"
	StageEvicting   Stage = "evicting"
	StageLaunching  Stage = "launching"
	StageWaiting    Stage = "waiting"
	StageReady      Stage = "ready"
	StageCancelled  Stage = "cancelled"
	StageError      Stage = "error"
)

func (s Stage) terminal() bool {
	switch s {
	case StageReady, StageError, StageCancelled:
		return true
	default:
		return false
	}
}

// Progress is the event payload broadcast on the launch_progress topic.
type Progress struct {
	RecipeID string  `json:"recipe_id"`
	Stage    Stage   `json:"stage"`
	Message  string  `json:"message"`
	Progress float64 `json:"progress"`
}

// Result is what the coordinator hands back to the HTTP layer once an
// attempt reaches a terminal stage.
type Result struct {
	Success bool   `json:"success"`
	PID     int    `json:"pid,omitempty"`
	Message string `json:"message"`
	LogFile string `json:"log_file,omitempty"`
}

// sameModel implements the same-model predicate: a freshly discovered
// incumbent process is judged to already be serving r when any of these
// hold, checked in order: both are the sdcpp shim (it owns no single
// model_path worth comparing), both name the same served_model_name, both
// resolve to the same model_path after trailing-slash normalization, or
// their model_path's final path component matches.
func sameModel(r recipe.Recipe, incumbentBackend recipe.Backend, incumbentModelPath, incumbentServedName string) bool {
	if r.Backend != incumbentBackend {
		return false
	}
	if r.Backend == recipe.BackendStableDif {
		return true
	}
	if r.ServedModelName != "" && incumbentServedName != "" {
		return r.ServedModelName == incumbentServedName
	}
	if r.ModelPath != "" && incumbentModelPath != "" {
		if normalizeTrailingSlash(r.ModelPath) == normalizeTrailingSlash(incumbentModelPath) {
			return true
		}
		return baseName(r.ModelPath) == baseName(incumbentModelPath)
	}
	return false
}

func normalizeTrailingSlash(p string) string {
	for len(p) > 1 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	return p
}

func baseName(p string) string {
	trimmed := normalizeTrailingSlash(p)
	for i := len(trimmed) - 1; i >= 0; i-- {
		if trimmed[i] == '/' {
			return trimmed[i+1:]
		}
	}
	return trimmed
}

// fatalPatterns are all scanned against a log tail; the match that occurs
// earliest in the tail wins, and on a tie at the same position the pattern
// listed first wins. Backend-agnostic: a recipe's backend narrows which
// patterns are plausible, but scanning the union costs nothing and guards
// against a misclassified process.
var fatalPatterns = []string{
	"raise ValueError",
	"raise RuntimeError",
	"CUDA out of memory",
	"OutOfMemoryError",
	"torch.OutOfMemoryError",
	"not enough memory",
	"Cannot allocate",
	"larger than the available KV cache memory",
	"EngineCore failed to start",
	"failed to load model",
	"error loading model",
	"GGML_ASSERT",
	"ggml_cuda_error",
	"not enough VRAM",
	"failed to allocate",
	"model file not found",
	"invalid model file",
}

// findFatalPattern scans tail for the first matching fatal pattern and
// returns a short window around it, or ok=false if none matched.
func findFatalPattern(tail string) (pattern string, window string, ok bool) {
	idx := -1
	for _, p := range fatalPatterns {
		if i := indexOf(tail, p); i >= 0 && (idx == -1 || i < idx) {
			idx = i
			pattern = p
		}
	}
	if idx == -1 {
		return "", "", false
	}
	start := idx - 50
	if start < 0 {
		start = 0
	}
	end := idx + len(pattern) + 150
	if end > len(tail) {
		end = len(tail)
	}
	return pattern, tail[start:end], true
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
