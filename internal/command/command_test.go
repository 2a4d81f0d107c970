package command

import (
	"strings"
	"testing"

	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

func fakeOpts(existing map[string]bool, pathHit string) Options {
	return Options{
		RuntimeBinDir: "/runtime",
		HomeDir:       "/home/u",
		Stat: func(p string) bool {
			return existing[p]
		},
		LookPath: func(name string) (string, error) {
			if pathHit == name {
				return "/usr/bin/" + name, nil
			}
			return "", errNotFound
		},
	}
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "not found" }

var errNotFound = notFoundErr{}

func TestResolveBinaryPrecedence_RuntimeOverrideWins(t *testing.T) {
	opts := fakeOpts(map[string]bool{
		"/runtime/vllm":         true,
		"/home/u/.local/bin/vllm": true,
	}, "vllm")

	path, ok := resolveBinary(opts, "vllm")
	if !ok || path != "/runtime/vllm" {
		t.Fatalf("expected runtime override to win, got %q ok=%v", path, ok)
	}
}

func TestResolveBinaryPrecedence_PATHBeforeHome(t *testing.T) {
	opts := fakeOpts(map[string]bool{
		"/home/u/.local/bin/vllm": true,
	}, "vllm")

	path, ok := resolveBinary(opts, "vllm")
	if !ok || path != "/usr/bin/vllm" {
		t.Fatalf("expected PATH hit to win over home dir, got %q ok=%v", path, ok)
	}
}

func TestResolveBinaryPrecedence_HomeLocalBeforeHomeBin(t *testing.T) {
	opts := fakeOpts(map[string]bool{
		"/home/u/.local/bin/vllm": true,
		"/home/u/bin/vllm":        true,
	}, "")

	path, ok := resolveBinary(opts, "vllm")
	if !ok || path != "/home/u/.local/bin/vllm" {
		t.Fatalf("expected ~/.local/bin before ~/bin, got %q ok=%v", path, ok)
	}
}

func TestResolveBinaryPrecedence_NoneExist(t *testing.T) {
	opts := fakeOpts(map[string]bool{}, "")
	_, ok := resolveBinary(opts, "vllm")
	if ok {
		t.Fatalf("expected no binary to resolve")
	}
}

func baseRecipe(backend recipe.Backend) recipe.Recipe {
	r := recipe.Recipe{
		ID:                   "test-recipe",
		Name:                 "Test",
		Backend:              backend,
		ModelPath:            "/models/qwen3-8b",
		Host:                 "0.0.0.0",
		Port:                 8000,
		TensorParallelSize:   2,
		PipelineParallelSize: 1,
		MaxModelLen:          32768,
		GPUMemoryUtilization: 0.9,
		MaxNumSeqs:           256,
	}
	r.Normalize()
	return r
}

func TestBuildVLLM_S1HappyPath(t *testing.T) {
	r := baseRecipe(recipe.BackendVLLM)
	opts := fakeOpts(map[string]bool{}, "vllm")

	res, err := Build(r, opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	argv := strings.Join(res.Argv, " ")
	for _, want := range []string{
		"vllm serve", "/models/qwen3-8b", "--host 0.0.0.0", "--port 8000",
		"--tensor-parallel-size 2", "--max-model-len 32768",
		"--gpu-memory-utilization 0.9", "--max-num-seqs 256",
	} {
		if !strings.Contains(argv, want) {
			t.Fatalf("expected argv to contain %q, got: %s", want, argv)
		}
	}
}

func TestBuildVLLM_AutoDetectsQwen3Parsers(t *testing.T) {
	r := baseRecipe(recipe.BackendVLLM)
	r.ModelPath = "/models/Qwen3-32B-Instruct"
	opts := fakeOpts(map[string]bool{}, "vllm")

	res, err := Build(r, opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	argv := strings.Join(res.Argv, " ")
	if !strings.Contains(argv, "--reasoning-parser qwen3") {
		t.Fatalf("expected auto-detected qwen3 reasoning parser, got: %s", argv)
	}
	if !strings.Contains(argv, "--tool-call-parser qwen3") || !strings.Contains(argv, "--enable-auto-tool-choice") {
		t.Fatalf("expected auto-detected qwen3 tool-call parser, got: %s", argv)
	}
}

func TestBuildVLLM_ExplicitParserOverridesAutoDetect(t *testing.T) {
	r := baseRecipe(recipe.BackendVLLM)
	r.ModelPath = "/models/Qwen3-32B-Instruct"
	r.ReasoningParser = "custom"
	opts := fakeOpts(map[string]bool{}, "vllm")

	res, err := Build(r, opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	argv := strings.Join(res.Argv, " ")
	if !strings.Contains(argv, "--reasoning-parser custom") {
		t.Fatalf("expected explicit reasoning parser to win, got: %s", argv)
	}
}

func TestBuildVLLM_MiniMaxM2HighTPEnablesExpertParallel(t *testing.T) {
	r := baseRecipe(recipe.BackendVLLM)
	r.ModelPath = "/models/MiniMax-M2"
	r.TensorParallelSize = 8
	opts := fakeOpts(map[string]bool{}, "vllm")

	res, err := Build(r, opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	argv := strings.Join(res.Argv, " ")
	if !strings.Contains(argv, "--enable-expert-parallel") {
		t.Fatalf("expected --enable-expert-parallel for MiniMax-M2 tp>4, got: %s", argv)
	}
}

func TestBuildLlamaCPP_DefaultsAndSplitMode(t *testing.T) {
	r := baseRecipe(recipe.BackendLlamaCPP)
	opts := fakeOpts(map[string]bool{}, "llama-server")

	res, err := Build(r, opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	argv := strings.Join(res.Argv, " ")
	for _, want := range []string{"-m /models/qwen3-8b", "-c 32768", "-ngl 99", "--cont-batching", "--metrics", "--split-mode layer"} {
		if !strings.Contains(argv, want) {
			t.Fatalf("expected argv to contain %q, got: %s", want, argv)
		}
	}
}

func TestAppendExtras_NeverDuplicatesFlag(t *testing.T) {
	r := baseRecipe(recipe.BackendVLLM)
	r.ExtraArgs = []byte(`{"max-model-len": 9999}`)
	// appendExtras keys on "--"+jsonKey directly; the check below uses
	// "host", whose flag --host is already present in the argv passed in.
	r.ExtraArgs = []byte(`{"host": "1.2.3.4"}`)

	argv := appendExtras([]string{"--host", "0.0.0.0"}, r, map[string]struct{}{})
	count := 0
	for _, a := range argv {
		if a == "--host" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected --host to appear exactly once, argv=%v", argv)
	}
}

func TestAppendExtras_BooleanAndNullHandling(t *testing.T) {
	r := baseRecipe(recipe.BackendVLLM)
	r.ExtraArgs = []byte(`{"enable-foo": true, "enable-bar": false, "baz": null}`)

	argv := appendExtras(nil, r, map[string]struct{}{})
	joined := strings.Join(argv, " ")
	if !strings.Contains(joined, "--enable-foo") {
		t.Fatalf("expected true boolean to emit bare flag, got: %s", joined)
	}
	if strings.Contains(joined, "--enable-bar") {
		t.Fatalf("expected false boolean to be omitted, got: %s", joined)
	}
	if strings.Contains(joined, "--baz") {
		t.Fatalf("expected null value to be omitted, got: %s", joined)
	}
}

func TestAppendExtras_ObjectValueKeysRewrittenKebabToSnake(t *testing.T) {
	r := baseRecipe(recipe.BackendVLLM)
	r.ExtraArgs = []byte(`{"speculative-config": {"num-speculative-tokens": 3, "nested-list": [{"inner-key": 1}]}}`)

	argv := appendExtras(nil, r, map[string]struct{}{})
	if len(argv) != 2 {
		t.Fatalf("expected exactly one flag+value pair, got %v", argv)
	}
	if argv[0] != "--speculative-config" {
		t.Fatalf("expected flag --speculative-config, got %q", argv[0])
	}
	if !strings.Contains(argv[1], `"num_speculative_tokens"`) {
		t.Fatalf("expected nested key rewritten to snake_case, got: %s", argv[1])
	}
	if !strings.Contains(argv[1], `"inner_key"`) {
		t.Fatalf("expected deeply nested key rewritten to snake_case, got: %s", argv[1])
	}
	if strings.Contains(argv[1], "-") && strings.Contains(argv[1], "num-speculative") {
		t.Fatalf("expected no kebab-case keys to survive, got: %s", argv[1])
	}
}

func TestAppendExtras_SkipsInternalKeys(t *testing.T) {
	r := baseRecipe(recipe.BackendVLLM)
	r.ExtraArgs = []byte(`{"venv_path": "/opt/venv", "description": "test", "real_flag": "x"}`)

	argv := appendExtras(nil, r, map[string]struct{}{})
	joined := strings.Join(argv, " ")
	if strings.Contains(joined, "venv_path") || strings.Contains(joined, "description") {
		t.Fatalf("expected internal keys to be skipped, got: %s", joined)
	}
	if !strings.Contains(joined, "--real_flag x") {
		t.Fatalf("expected non-internal key to be emitted, got: %s", joined)
	}
}
