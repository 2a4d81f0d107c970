// Package recipe holds the durable launch configuration ("recipe") data
// model and its store, the source of truth for what the coordinator can
// launch.
package recipe

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Backend tags the four inference backends this service can spawn.
type Backend string

const (
	BackendVLLM      Backend = "vllm"
	BackendSGLang    Backend = "sglang"
	BackendLlamaCPP  Backend = "llama_cpp"
	BackendStableDif Backend = "sdcpp"
)

func (b Backend) valid() bool {
	switch b {
	case BackendVLLM, BackendSGLang, BackendLlamaCPP, BackendStableDif:
		return true
	default:
		return false
	}
}

// KVCacheDtype enumerates the vLLM/SGLang kv-cache dtypes.
type KVCacheDtype string

const (
	KVCacheAuto    KVCacheDtype = "auto"
	KVCacheFP8     KVCacheDtype = "fp8"
	KVCacheFP8E5M2 KVCacheDtype = "fp8_e5m2"
	KVCacheFP8E4M3 KVCacheDtype = "fp8_e4m3"
)

func (k KVCacheDtype) valid() bool {
	switch k {
	case "", KVCacheAuto, KVCacheFP8, KVCacheFP8E5M2, KVCacheFP8E4M3:
		return true
	default:
		return false
	}
}

var idPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Recipe is the durable launch configuration, keyed by ID. Field tags match
// the wire shape expected by the HTTP surface (snake_case), with ExtraArgs
// and EnvVars kept as raw JSON so the command builder can walk and rewrite
// them generically with gjson/sjson instead of round-tripping through
// map[string]any.
type Recipe struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Backend Backend `json:"backend"`

	ModelPath string `json:"model_path"`
	Host      string `json:"host"`
	Port      int    `json:"port"`

	TensorParallelSize   int `json:"tensor_parallel_size"`
	PipelineParallelSize int `json:"pipeline_parallel_size"`

	MaxModelLen          int     `json:"max_model_len,omitempty"`
	GPUMemoryUtilization float64 `json:"gpu_memory_utilization"`
	MaxNumSeqs           int     `json:"max_num_seqs,omitempty"`

	KVCacheDtype  KVCacheDtype `json:"kv_cache_dtype,omitempty"`
	Dtype         string       `json:"dtype,omitempty"`
	Quantization  string       `json:"quantization,omitempty"`

	TrustRemoteCode bool   `json:"trust_remote_code,omitempty"`
	ToolCallParser  string `json:"tool_call_parser,omitempty"`
	ReasoningParser string `json:"reasoning_parser,omitempty"`
	ServedModelName string `json:"served_model_name,omitempty"`

	ExtraArgs json.RawMessage `json:"extra_args,omitempty"`
	EnvVars   json.RawMessage `json:"env_vars,omitempty"`
	PythonPath string         `json:"python_path,omitempty"`
}

// Normalize applies field defaults (port 8000, etc.) and lower-cases the
// backend tag for robustness.
func (r *Recipe) Normalize() {
	if r.Port == 0 {
		r.Port = 8000
	}
	if r.TensorParallelSize == 0 {
		r.TensorParallelSize = 1
	}
	if r.PipelineParallelSize == 0 {
		r.PipelineParallelSize = 1
	}
	if r.Host == "" {
		r.Host = "0.0.0.0"
	}
	if r.KVCacheDtype == "" {
		r.KVCacheDtype = KVCacheAuto
	}
	r.Backend = Backend(strings.ToLower(string(r.Backend)))
	if len(r.ExtraArgs) == 0 {
		r.ExtraArgs = json.RawMessage(`{}`)
	}
	if len(r.EnvVars) == 0 {
		r.EnvVars = json.RawMessage(`{}`)
	}
}

// Validate enforces the syntactic invariants: id pattern, port range,
// gpu_memory_utilization range, enum membership, parallelism floors.
// Semantic checks (model file exists, binary resolvable) are deliberately
// NOT done here — they are deferred to launch time.
func (r *Recipe) Validate() error {
	if !idPattern.MatchString(r.ID) {
		return fmt.Errorf("id %q must match [a-z0-9-]+", r.ID)
	}
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !r.Backend.valid() {
		return fmt.Errorf("backend %q is not one of vllm|sglang|llama_cpp|sdcpp", r.Backend)
	}
	if r.ModelPath == "" {
		return fmt.Errorf("model_path is required")
	}
	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("port %d out of range 1..65535", r.Port)
	}
	if r.TensorParallelSize < 1 {
		return fmt.Errorf("tensor_parallel_size must be >= 1")
	}
	if r.PipelineParallelSize < 1 {
		return fmt.Errorf("pipeline_parallel_size must be >= 1")
	}
	if r.GPUMemoryUtilization != 0 && (r.GPUMemoryUtilization <= 0 || r.GPUMemoryUtilization > 1) {
		return fmt.Errorf("gpu_memory_utilization must be within (0,1]")
	}
	if !r.KVCacheDtype.valid() {
		return fmt.Errorf("kv_cache_dtype %q is not a recognized value", r.KVCacheDtype)
	}
	if len(r.ExtraArgs) > 0 && !json.Valid(r.ExtraArgs) {
		return fmt.Errorf("extra_args is not valid JSON")
	}
	if len(r.EnvVars) > 0 && !json.Valid(r.EnvVars) {
		return fmt.Errorf("env_vars is not valid JSON")
	}
	return nil
}

// DetailView renders tp/pp aliases for the single-recipe read endpoint,
// with tensor_parallel_size/pipeline_parallel_size entirely absent.
func (r Recipe) DetailView() map[string]any {
	body, _ := json.Marshal(r)
	var m map[string]any
	_ = json.Unmarshal(body, &m)
	delete(m, "tensor_parallel_size")
	delete(m, "pipeline_parallel_size")
	m["tp"] = r.TensorParallelSize
	m["pp"] = r.PipelineParallelSize
	return m
}

// Status is the derived runtime annotation attached to list views.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
)

// WithStatus is the list-view shape: the recipe plus its derived status.
type WithStatus struct {
	Recipe
	Status Status `json:"status"`
}
