package recipe

import "testing"

func TestNormalizeDefaults(t *testing.T) {
	r := Recipe{ID: "my-model", Name: "My Model", Backend: "VLLM", ModelPath: "/m/x"}
	r.Normalize()

	if r.Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", r.Port)
	}
	if r.TensorParallelSize != 1 || r.PipelineParallelSize != 1 {
		t.Fatalf("expected parallelism defaults of 1, got tp=%d pp=%d", r.TensorParallelSize, r.PipelineParallelSize)
	}
	if r.Backend != BackendVLLM {
		t.Fatalf("expected backend lowercased to %q, got %q", BackendVLLM, r.Backend)
	}
	if r.KVCacheDtype != KVCacheAuto {
		t.Fatalf("expected kv_cache_dtype default auto, got %q", r.KVCacheDtype)
	}
}

func TestValidateRejectsBadID(t *testing.T) {
	r := Recipe{ID: "Bad_ID!", Name: "x", Backend: BackendVLLM, ModelPath: "/m", Port: 8000,
		TensorParallelSize: 1, PipelineParallelSize: 1}
	if err := r.Validate(); err == nil {
		t.Fatalf("expected validation error for id %q", r.ID)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	r := Recipe{ID: "ok-id", Name: "x", Backend: BackendVLLM, ModelPath: "/m", Port: 70000,
		TensorParallelSize: 1, PipelineParallelSize: 1}
	if err := r.Validate(); err == nil {
		t.Fatalf("expected validation error for out-of-range port")
	}
}

func TestValidateRejectsBadGPUUtilization(t *testing.T) {
	r := Recipe{ID: "ok-id", Name: "x", Backend: BackendVLLM, ModelPath: "/m", Port: 8000,
		TensorParallelSize: 1, PipelineParallelSize: 1, GPUMemoryUtilization: 1.5}
	if err := r.Validate(); err == nil {
		t.Fatalf("expected validation error for gpu_memory_utilization > 1")
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	r := Recipe{ID: "ok-id", Name: "x", Backend: "ollama", ModelPath: "/m", Port: 8000,
		TensorParallelSize: 1, PipelineParallelSize: 1}
	if err := r.Validate(); err == nil {
		t.Fatalf("expected validation error for unknown backend")
	}
}

func TestDetailViewAliasesTPAndPP(t *testing.T) {
	r := Recipe{ID: "ok-id", Name: "x", Backend: BackendVLLM, ModelPath: "/m", Port: 8000,
		TensorParallelSize: 8, PipelineParallelSize: 2}
	view := r.DetailView()

	if view["tp"] != 8 || view["pp"] != 2 {
		t.Fatalf("expected tp=8 pp=2 aliases, got tp=%v pp=%v", view["tp"], view["pp"])
	}
	if _, ok := view["tensor_parallel_size"]; ok {
		t.Fatalf("tensor_parallel_size must not appear in detail view")
	}
	if _, ok := view["pipeline_parallel_size"]; ok {
		t.Fatalf("pipeline_parallel_size must not appear in detail view")
	}
}
